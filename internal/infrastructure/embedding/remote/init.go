package remote

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-retryablehttp"

	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

// NewRemoteInvoker 创建远程推理后端调用方。
// 创建时会请求 {base_url}/info 确认后端可用，并记录模型所在设备；
// 设备为 cpu 时输出警告，推理会非常慢。
func NewRemoteInvoker(ctx context.Context, cfg *config.InvokerConfig, log logger.Logger) (services.ModelInvoker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("remote invoker config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Remote.BaseURL == "" {
		return nil, fmt.Errorf("remote base_url is required")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Remote.RetryMax
	client.HTTPClient.Timeout = cfg.TimeoutDuration()
	client.Logger = log
	// 重试耗尽后保留后端的原始响应，错误信息里带上后端返回的内容
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	inv := &Invoker{
		client:  client,
		baseURL: trimSlash(cfg.Remote.BaseURL),
		model:   cfg.Model,
		apiKey:  cfg.Remote.APIKey,
		headers: cfg.Remote.Headers,
		logger:  log,
	}

	info, err := inv.fetchInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference backend: %w", err)
	}
	inv.info = info

	if info.Device == "cpu" {
		log.WarnContext(ctx, "推理后端运行在 CPU 上，推理速度会非常慢",
			"base_url", inv.baseURL,
			"model", info.Model)
	}

	log.InfoContext(ctx, "远程推理后端连接成功",
		"base_url", inv.baseURL,
		"model", info.Model,
		"device", info.Device,
		"dtype", info.DType,
		"attention", info.Attention)

	return inv, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
