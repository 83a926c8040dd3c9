package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MaxBody 限制请求体大小，超出后读取请求体会返回 *http.MaxBytesError，
// 由处理器映射为 413。maxBytes <= 0 表示不限制。
func MaxBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
