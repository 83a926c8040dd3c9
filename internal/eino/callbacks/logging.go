// Package callbacks 提供批次执行的 Eino Callback 处理器实现
package callbacks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

// LoggingHandler 实现基于日志的 Callback 处理器。
// 每个批次开始、结束或出错时记录批次序号、大小和耗时。
type LoggingHandler struct {
	logger logger.Logger
	cfg    *config.LoggingCallbackConfig
	level  slog.Level
}

// NewLoggingHandler 创建一个新的日志回调处理器。
// 参数 log: 底层日志记录器。
// 参数 cfg: 日志回调配置，Level 决定开始/完成日志的级别。
func NewLoggingHandler(log logger.Logger, cfg *config.LoggingCallbackConfig) callbacks.Handler {
	return &LoggingHandler{
		logger: log,
		cfg:    cfg,
		level:  logger.ParseLevel(cfg.Level),
	}
}

// OnStart 在批次调用模型前被调用。
// 记录 "第 i/n 批，k 个元素"，并将开始时间注入上下文。
func (h *LoggingHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	ctx = context.WithValue(ctx, startTimeKey, time.Now())

	args := []any{"component", info.Component, "name", info.Name, "type", info.Type}
	if batch, ok := input.(*models.BatchInfo); ok {
		args = append(args,
			"batch", fmt.Sprintf("%d/%d", batch.Index+1, batch.Total),
			"size", batch.Size,
			"input_type", batch.InputType.String())
		if batch.Placeholders > 0 {
			args = append(args, "placeholders", batch.Placeholders)
		}
	}

	h.logger.SlogLogger().Log(ctx, h.level, "开始处理批次", args...)
	return ctx
}

// OnEnd 在批次完成时被调用。
// 记录批次耗时（秒）与单个元素平均耗时。
func (h *LoggingHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	args := []any{"name", info.Name}
	if batch, ok := output.(*models.BatchInfo); ok {
		args = append(args,
			"batch", fmt.Sprintf("%d/%d", batch.Index+1, batch.Total),
			"size", batch.Size,
			"elapsed_s", fmt.Sprintf("%.2f", batch.Elapsed.Seconds()),
			"per_item_s", fmt.Sprintf("%.3f", batch.PerItem().Seconds()))
	} else {
		startTime, _ := ctx.Value(startTimeKey).(time.Time)
		args = append(args, "duration_ms", time.Since(startTime).Milliseconds())
	}

	h.logger.SlogLogger().Log(ctx, h.level, "批次处理完成", args...)
	return ctx
}

// OnError 在批次出错时被调用。
func (h *LoggingHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	startTime, _ := ctx.Value(startTimeKey).(time.Time)

	h.logger.ErrorContext(ctx, "批次处理出错",
		"component", info.Component,
		"name", info.Name,
		"duration_ms", time.Since(startTime).Milliseconds(),
		"error", err.Error(),
	)

	return ctx
}

// OnStartWithStreamInput 批次流程不产生流式输入，仅记录开始时间。
func (h *LoggingHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	return h.OnStart(ctx, info, nil)
}

// OnEndWithStreamOutput 批次流程不产生流式输出。
func (h *LoggingHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	return h.OnEnd(ctx, info, nil)
}

// contextKey 定义了上下文键的类型，用于防止键名冲突。
type contextKey string

const (
	// startTimeKey 用于在上下文中存储批次开始执行的时间。
	startTimeKey contextKey = "callback_start_time"
)
