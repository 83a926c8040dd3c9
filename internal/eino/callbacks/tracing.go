package callbacks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

// TracingHandler 链路追踪回调处理器，每个批次对应一个跨度
type TracingHandler struct {
	cfg    *config.TracingCallbackConfig
	logger logger.Logger
	spanID uint64
}

// SpanInfo 跨度信息
type SpanInfo struct {
	TraceID   string
	SpanID    string
	Component string
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Status    string
	Error     error
	Tags      map[string]string
}

// NewTracingHandler 创建链路追踪回调处理器
func NewTracingHandler(cfg *config.TracingCallbackConfig, log logger.Logger) callbacks.Handler {
	return &TracingHandler{
		cfg:    cfg,
		logger: log,
	}
}

// OnStart 批次开始时调用
func (h *TracingHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	// 获取或创建 TraceID，HTTP 层会把请求 ID 作为 TraceID 注入
	traceID := getTraceID(ctx)
	if traceID == "" {
		traceID = generateTraceID()
		ctx = WithTraceID(ctx, traceID)
	}

	span := &SpanInfo{
		TraceID:   traceID,
		SpanID:    h.generateSpanID(),
		Component: string(info.Component),
		Name:      info.Name,
		StartTime: time.Now(),
		Tags: map[string]string{
			"component_type": info.Type,
		},
	}
	if batch, ok := input.(*models.BatchInfo); ok {
		span.Tags["batch_index"] = fmt.Sprint(batch.Index)
		span.Tags["batch_size"] = fmt.Sprint(batch.Size)
		span.Tags["input_type"] = batch.InputType.String()
	}

	ctx = context.WithValue(ctx, currentSpanKey, span)

	h.logger.DebugContext(ctx, "开始跨度",
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"name", span.Name,
		"tags", span.Tags,
	)

	return ctx
}

// OnEnd 批次完成时调用
func (h *TracingHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	span := h.finish(ctx, "OK", nil)
	if span == nil {
		return ctx
	}

	h.logger.DebugContext(ctx, "结束跨度",
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"duration_ms", span.Duration.Milliseconds(),
		"status", span.Status,
	)

	return ctx
}

// OnError 批次出错时调用
func (h *TracingHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	span := h.finish(ctx, "ERROR", err)
	if span == nil {
		return ctx
	}

	h.logger.ErrorContext(ctx, "跨度出错",
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"duration_ms", span.Duration.Milliseconds(),
		"error", err.Error(),
	)

	return ctx
}

// OnStartWithStreamInput 批次流程不产生流式输入
func (h *TracingHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	return h.OnStart(ctx, info, nil)
}

// OnEndWithStreamOutput 批次流程不产生流式输出
func (h *TracingHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	return h.OnEnd(ctx, info, nil)
}

func (h *TracingHandler) finish(ctx context.Context, status string, err error) *SpanInfo {
	if !h.cfg.Enabled {
		return nil
	}

	span := getCurrentSpan(ctx)
	if span == nil {
		return nil
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Status = status
	span.Error = err
	return span
}

// generateSpanID 生成进程内递增的 Span ID
func (h *TracingHandler) generateSpanID() string {
	return fmt.Sprintf("%016x", atomic.AddUint64(&h.spanID, 1))
}

// generateTraceID 生成 Trace ID
func generateTraceID() string {
	return uuid.New().String()
}

// getTraceID 从上下文获取 Trace ID
func getTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// getCurrentSpan 从上下文获取当前跨度
func getCurrentSpan(ctx context.Context) *SpanInfo {
	if span, ok := ctx.Value(currentSpanKey).(*SpanInfo); ok {
		return span
	}
	return nil
}

const (
	traceIDKey     contextKey = "trace_id"
	currentSpanKey contextKey = "current_span"
)

// WithTraceID 设置 Trace ID 到上下文
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ExtractTraceID 从上下文提取 Trace ID
func ExtractTraceID(ctx context.Context) string {
	return getTraceID(ctx)
}
