package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"colpali-server/pkg/logger"
)

// RequestIDKey 请求ID在Context中的键名
const RequestIDKey = "request_id"

// RequestIDHeader 请求ID响应头
const RequestIDHeader = "X-Request-ID"

// requestIDContextKey 请求ID在 context.Context 中的键
type requestIDContextKey struct{}

// LoggingConfig 日志中间件配置
type LoggingConfig struct {
	// SkipPaths 跳过日志记录的路径（如健康检查接口）
	SkipPaths []string
	// Logger 日志器实例
	Logger logger.Logger
}

// LoggingMiddleware 返回HTTP日志记录中间件
// config: 中间件配置，如果为nil则使用默认配置
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	// 使用默认配置
	if config == nil {
		config = &LoggingConfig{
			SkipPaths: []string{"/gpu-check", "/metrics"},
			Logger:    logger.GetDefault(),
		}
	}

	// 如果没有指定Logger，使用默认Logger
	if config.Logger == nil {
		config.Logger = logger.GetDefault()
	}

	return func(c *gin.Context) {
		// 沿用上游传入的请求ID，否则生成新的
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		// 创建带有请求ID的context
		ctx := context.WithValue(c.Request.Context(), requestIDContextKey{}, requestID)
		c.Request = c.Request.WithContext(ctx)

		// 检查是否需要跳过日志记录
		if shouldSkipPath(c.Request.URL.Path, config.SkipPaths) {
			c.Next()
			return
		}

		// 记录请求开始时间
		startTime := time.Now()

		// 提取请求信息
		requestInfo := extractRequestInfo(c)

		config.Logger.DebugContext(ctx, "HTTP请求开始",
			"request_id", requestID,
			"method", requestInfo.Method,
			"path", requestInfo.Path,
			"client_ip", requestInfo.ClientIP,
			"user_agent", requestInfo.UserAgent,
			"content_length", requestInfo.ContentLength,
			"headers", requestInfo.Headers,
		)

		// 执行请求处理
		c.Next()

		duration := time.Since(startTime)

		config.Logger.InfoContext(ctx, "HTTP请求完成",
			"request_id", requestID,
			"method", requestInfo.Method,
			"path", requestInfo.Path,
			"status_code", c.Writer.Status(),
			"duration_ms", float64(duration.Nanoseconds())/1e6,
			"response_size", c.Writer.Size(),
			"client_ip", requestInfo.ClientIP,
		)

		// 如果有错误，记录详细错误信息
		for _, err := range c.Errors {
			config.Logger.ErrorContext(ctx, "HTTP请求处理错误",
				"request_id", requestID,
				"error", err.Error(),
				"error_type", err.Type,
			)
		}
	}
}

// RequestInfo HTTP请求信息
type RequestInfo struct {
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	ClientIP      string            `json:"client_ip"`
	UserAgent     string            `json:"user_agent"`
	ContentLength int64             `json:"content_length"`
	Headers       map[string]string `json:"headers"`
}

// generateRequestID 生成请求ID
func generateRequestID() string {
	return uuid.New().String()
}

// extractRequestInfo 提取请求信息，Authorization 只记录是否存在
func extractRequestInfo(c *gin.Context) *RequestInfo {
	headers := make(map[string]string)
	for _, header := range []string{"Content-Type", "Accept", "X-Forwarded-For"} {
		if value := c.GetHeader(header); value != "" {
			headers[header] = value
		}
	}
	if c.GetHeader("Authorization") != "" {
		headers["Authorization"] = "[REDACTED]"
	}

	return &RequestInfo{
		Method:        c.Request.Method,
		Path:          c.Request.URL.Path,
		ClientIP:      c.ClientIP(),
		UserAgent:     c.GetHeader("User-Agent"),
		ContentLength: c.Request.ContentLength,
		Headers:       headers,
	}
}

// shouldSkipPath 检查是否应该跳过某个路径的日志记录
func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// GetRequestID 从Context中获取请求ID
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDKey); exists {
		return requestID.(string)
	}
	return ""
}

// RequestIDFromContext 从 context.Context 中获取请求ID
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}
