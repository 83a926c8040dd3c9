package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// InvalidCredentialsDetail 凭证缺失或错误时返回的 detail
const InvalidCredentialsDetail = "Invalid or missing credentials"

// BearerAuth 返回 Bearer Token 校验中间件。
// Authorization 头必须为 "Bearer <apiKey>"，缺失、格式错误或不匹配一律返回 403，
// 在读取请求体之前拒绝。apiKey 为空时拒绝所有请求。
func BearerAuth(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)

	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": InvalidCredentialsDetail})
			return
		}
		c.Next()
	}
}

// bearerToken 解析 "Bearer <token>"，前缀区分大小写且只接受单个空格
func bearerToken(header string) (string, bool) {
	rest, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}
	// 仅取紧随前缀的第一个字段，其后的内容忽略
	token, _, _ := strings.Cut(rest, " ")
	if token == "" {
		return "", false
	}
	return token, true
}
