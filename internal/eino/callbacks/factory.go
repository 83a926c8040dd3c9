package callbacks

import (
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"

	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

// Factory Callback 工厂
type Factory struct {
	cfg        *config.CallbacksConfig
	logger     logger.Logger
	registerer prometheus.Registerer
}

// NewFactory 创建 Callback 工厂
// registerer 为 nil 时即使配置启用也不创建指标回调
func NewFactory(cfg *config.CallbacksConfig, log logger.Logger, registerer prometheus.Registerer) *Factory {
	return &Factory{
		cfg:        cfg,
		logger:     log,
		registerer: registerer,
	}
}

// CreateHandlers 创建所有启用的 Callback 处理器
func (f *Factory) CreateHandlers() ([]callbacks.Handler, error) {
	handlers := make([]callbacks.Handler, 0, 3)

	// 日志回调
	if f.cfg.Logging.Enabled {
		handlers = append(handlers, NewLoggingHandler(f.logger, &f.cfg.Logging))
	}

	// 指标回调
	if f.cfg.Metrics.Enabled && f.registerer != nil {
		metrics, err := NewMetricsHandler(&f.cfg.Metrics, f.registerer)
		if err != nil {
			return nil, fmt.Errorf("创建指标回调失败: %w", err)
		}
		handlers = append(handlers, metrics)
	}

	// 链路追踪回调
	if f.cfg.Tracing.Enabled {
		handlers = append(handlers, NewTracingHandler(&f.cfg.Tracing, f.logger))
	}

	return handlers, nil
}
