package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"colpali-server/internal/app/handlers"
	"colpali-server/internal/app/middleware"
	"colpali-server/pkg/logger"
)

// RouteOptions 路由所需的依赖
type RouteOptions struct {
	// EmbeddingHandler 向量化与健康检查处理器
	EmbeddingHandler *handlers.EmbeddingHandler
	// APIKey /embeddings 的 Bearer Token
	APIKey string
	// MaxBodyBytes 请求体大小上限，0 表示不限制
	MaxBodyBytes int64
	// MetricsPath 指标暴露路径，MetricsHandler 为 nil 时不注册
	MetricsPath    string
	MetricsHandler http.Handler
	// HTTPMetrics HTTP 请求指标，可为 nil
	HTTPMetrics *middleware.HTTPMetrics
}

// SetupRoutes 配置并注册 HTTP 服务器的所有路由规则。
// 参数 engine: Gin 引擎实例。
// 参数 opts: 路由依赖。
// 参数 log: 日志记录器。
func SetupRoutes(engine *gin.Engine, opts *RouteOptions, log logger.Logger) {
	// 应用全局中间件
	setupMiddleware(engine, opts, log)

	// 健康检查 - 无需鉴权
	engine.GET("/gpu-check", opts.EmbeddingHandler.GPUCheck)

	// 批量向量化 - 鉴权在读取请求体之前完成
	engine.POST("/embeddings",
		middleware.BearerAuth(opts.APIKey),
		middleware.MaxBody(opts.MaxBodyBytes),
		opts.EmbeddingHandler.CreateEmbeddings,
	)

	// Prometheus 指标
	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(opts.MetricsHandler))
	}
}

// setupMiddleware 设置全局中间件
func setupMiddleware(engine *gin.Engine, opts *RouteOptions, log logger.Logger) {
	// 设置恢复中间件 - 捕获panic并返回500错误
	engine.Use(gin.Recovery())

	if opts.HTTPMetrics != nil {
		engine.Use(opts.HTTPMetrics.Middleware())
	}

	// 设置日志中间件 - 记录请求日志并生成请求ID
	engine.Use(middleware.LoggingMiddleware(&middleware.LoggingConfig{
		// 跳过健康检查与指标路径的日志记录，减少日志噪音
		SkipPaths: []string{"/gpu-check", "/metrics"},
		Logger:    log,
	}))
}
