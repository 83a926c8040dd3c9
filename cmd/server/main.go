package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colpali-server/configs"
	"colpali-server/internal/app/handlers"
	"colpali-server/internal/app/middleware"
	"colpali-server/internal/app/server"
	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/callbacks"
	"colpali-server/internal/eino/components"
	"colpali-server/internal/eino/flows"
	"colpali-server/internal/eino/nodes"
	"colpali-server/pkg/logger"
	"colpali-server/pkg/metrics"
)

// main 主函数 - 应用程序入口点
func main() {
	// 创建根上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 创建早期logger（使用默认配置）
	earlyLogger := logger.Default()

	// 初始化应用程序
	if err := initializeApplication(ctx, earlyLogger); err != nil {
		earlyLogger.ErrorContext(ctx, "应用程序初始化失败", "error", err)
		os.Exit(1)
	}
}

// initializeApplication 初始化应用程序
func initializeApplication(ctx context.Context, earlyLogger logger.Logger) error {

	// 1. 加载配置，缺少 API_KEY 时直接失败
	config, err := configs.Load(ctx)
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}

	earlyLogger.InfoContext(ctx, "配置加载成功",
		"server_port", config.Server.Port,
		"invoker_provider", config.Eino.Invoker.Provider,
		"model", config.Eino.Invoker.Model,
		"batch_size", config.Eino.Batch.Size)

	// 2. 初始化日志服务
	appLogger := initializeLogger(config.Logging)
	appLogger.InfoContext(ctx, "日志服务初始化完成")

	// 3. 加载模型，进程内只创建一次
	invoker, err := components.NewModelInvoker(ctx, &config.Eino.Invoker, appLogger)
	if err != nil {
		return fmt.Errorf("模型加载失败: %w", err)
	}
	if config.Eino.Batch.ExclusiveInvoker {
		invoker = components.NewExclusiveInvoker(invoker)
	}

	// 4. 初始化指标与批次回调
	registry := metrics.NewRegistry(config.Eino.Callbacks.Metrics.ServiceName, true)
	callbackHandlers, err := callbacks.NewFactory(&config.Eino.Callbacks, appLogger, registry.Registerer()).CreateHandlers()
	if err != nil {
		_ = invoker.Close()
		return fmt.Errorf("回调初始化失败: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(registry.Registerer())
	if err != nil {
		_ = invoker.Close()
		return fmt.Errorf("HTTP 指标初始化失败: %w", err)
	}

	// 5. 初始化编排与应用层
	decoder := nodes.NewImageDecoder(config.Eino.Image.MaxPixels, appLogger)
	embedder := flows.NewBatchEmbedder(invoker, decoder, &config.Eino.Batch, appLogger, callbackHandlers...)

	routes := &server.RouteOptions{
		EmbeddingHandler: handlers.NewEmbeddingHandler(embedder, appLogger),
		APIKey:           config.Auth.APIKey,
		MaxBodyBytes:     config.Server.MaxBodyBytes,
		HTTPMetrics:      httpMetrics,
	}
	if config.Eino.Callbacks.Metrics.Enabled {
		routes.MetricsPath = config.Eino.Callbacks.Metrics.Endpoint
		routes.MetricsHandler = registry.Handler()
	}
	httpServer := server.NewServer(&config.Server, routes, appLogger)

	// 6. 启动服务并等待停止信号
	return runApplication(ctx, httpServer, invoker, appLogger)
}

// initializeLogger 初始化日志服务
func initializeLogger(config configs.LoggingConfig) logger.Logger {
	loggerConfig := logger.Config{
		Level:  logger.ParseLevel(config.Level),
		Output: config.Output,
		Format: config.Format,
	}

	if config.Output == "file" {
		loggerConfig.FilePath = config.FilePath
	}

	return logger.New(loggerConfig)
}

// runApplication 运行应用程序，监听停止信号
// 此函数会阻塞直到收到停止信号、服务器错误或上下文取消
func runApplication(ctx context.Context, httpServer *server.Server, invoker services.ModelInvoker, log logger.Logger) error {
	// 创建错误通道 - 用于接收服务器运行时错误
	errChan := make(chan error, 1)

	// 创建信号通道
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// 启动HTTP服务器（非阻塞）
	// 服务器的运行时错误会通过 errChan 传递
	if err := httpServer.Start(ctx, errChan); err != nil {
		_ = invoker.Close()
		return err
	}

	// 等待停止信号、服务器错误或上下文取消
	select {
	case err := <-errChan:
		log.ErrorContext(ctx, "服务器运行错误", "error", err)
		_ = invoker.Close()
		return err

	case sig := <-signalChan:
		log.InfoContext(ctx, "收到停止信号，开始优雅关闭", "signal", sig.String())
		return gracefulShutdown(ctx, httpServer, invoker, log)

	case <-ctx.Done():
		log.InfoContext(ctx, "上下文取消，开始优雅关闭")
		return gracefulShutdown(ctx, httpServer, invoker, log)
	}
}

// gracefulShutdown 执行优雅关闭：先停止接收请求并等待在途批次完成，再释放模型
func gracefulShutdown(ctx context.Context, httpServer *server.Server, invoker services.ModelInvoker, log logger.Logger) error {
	log.InfoContext(ctx, "开始执行优雅关闭流程")

	// 创建带超时的关闭上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 执行HTTP服务器优雅关闭
	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.ErrorContext(ctx, "HTTP服务器关闭失败", "error", shutdownErr)
	}

	if err := invoker.Close(); err != nil {
		log.ErrorContext(ctx, "模型释放失败", "error", err)
	} else {
		log.InfoContext(ctx, "模型已释放")
	}

	if shutdownErr != nil {
		return fmt.Errorf("HTTP服务器关闭失败: %w", shutdownErr)
	}

	log.InfoContext(ctx, "优雅关闭完成")
	return nil
}
