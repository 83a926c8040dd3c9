// Package components 提供模型调用方（Model Invoker）的工厂函数与包装器
package components

import (
	"context"
	"fmt"
	"time"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/config"
	"colpali-server/internal/infrastructure/embedding/hashing"
	"colpali-server/internal/infrastructure/embedding/remote"
	"colpali-server/pkg/logger"
)

// NewModelInvoker 根据配置创建模型调用方。
// 支持 remote（GPU 推理后端）、openai（仅文本）、hash（确定性本地模型）。
// 调用方在进程启动时创建一次，之后只读共享。
func NewModelInvoker(ctx context.Context, cfg *config.InvokerConfig, log logger.Logger) (services.ModelInvoker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("invoker config is required")
	}

	log.InfoContext(ctx, "开始加载模型",
		"provider", cfg.Provider,
		"model", cfg.Model)
	start := time.Now()

	var (
		inv services.ModelInvoker
		err error
	)
	switch cfg.Provider {
	case "remote":
		inv, err = remote.NewRemoteInvoker(ctx, cfg, log)
	case "openai":
		inv, err = newOpenAIInvoker(ctx, cfg)
	case "hash":
		inv, err = hashing.New(cfg.Model, cfg.Hash.Dimension, cfg.Hash.PatchGrid)
	default:
		return nil, fmt.Errorf("unsupported invoker provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s invoker: %w", cfg.Provider, err)
	}

	info := inv.Info()
	log.InfoContext(ctx, "模型加载完成",
		"provider", info.Provider,
		"model", info.Model,
		"device", info.Device,
		"load_time_s", fmt.Sprintf("%.2f", time.Since(start).Seconds()))

	return inv, nil
}

func newOpenAIInvoker(ctx context.Context, cfg *config.InvokerConfig) (*EinoInvoker, error) {
	embedder, err := newOpenAIEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewEinoInvoker(embedder, models.ModelInfo{
		Provider: "openai",
		Model:    cfg.Model,
	}), nil
}
