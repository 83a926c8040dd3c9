package callbacks

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/eino/config"
)

const metricsNamespace = "colpali"

// MetricsHandler 指标回调处理器，将批次遥测写入 Prometheus
type MetricsHandler struct {
	cfg *config.MetricsCallbackConfig

	batches       *prometheus.CounterVec
	items         *prometheus.CounterVec
	placeholders  prometheus.Counter
	batchDuration *prometheus.HistogramVec
	itemDuration  *prometheus.HistogramVec
	inFlight      prometheus.Gauge
}

// NewMetricsHandler 创建指标回调处理器并注册指标
func NewMetricsHandler(cfg *config.MetricsCallbackConfig, reg prometheus.Registerer) (*MetricsHandler, error) {
	h := &MetricsHandler{
		cfg: cfg,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_total",
			Help:      "Number of model invocation batches by input type and outcome.",
		}, []string{"input_type", "status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batch_items_total",
			Help:      "Number of items embedded in successful batches.",
		}, []string{"input_type"}),
		placeholders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "image_placeholders_total",
			Help:      "Number of images replaced by the blank placeholder after a decode failure.",
		}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_duration_seconds",
			Help:      "Model invocation time per batch.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"input_type"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_item_duration_seconds",
			Help:      "Average model invocation time per item within a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"input_type"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "batches_in_flight",
			Help:      "Batches currently inside the model invoker.",
		}),
	}

	for _, c := range []prometheus.Collector{h.batches, h.items, h.placeholders, h.batchDuration, h.itemDuration, h.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register batch metrics: %w", err)
		}
	}

	return h, nil
}

// OnStart 批次开始时调用
func (h *MetricsHandler) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	h.inFlight.Inc()
	if batch, ok := input.(*models.BatchInfo); ok {
		ctx = context.WithValue(ctx, metricsInputTypeKey, batch.InputType.String())
		if batch.Placeholders > 0 {
			h.placeholders.Add(float64(batch.Placeholders))
		}
	}
	return ctx
}

// OnEnd 批次完成时调用
func (h *MetricsHandler) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	h.inFlight.Dec()

	batch, ok := output.(*models.BatchInfo)
	if !ok {
		return ctx
	}

	inputType := batch.InputType.String()
	h.batches.WithLabelValues(inputType, "success").Inc()
	h.items.WithLabelValues(inputType).Add(float64(batch.Size))
	h.batchDuration.WithLabelValues(inputType).Observe(batch.Elapsed.Seconds())
	h.itemDuration.WithLabelValues(inputType).Observe(batch.PerItem().Seconds())

	return ctx
}

// OnError 批次出错时调用
func (h *MetricsHandler) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	if !h.cfg.Enabled {
		return ctx
	}

	h.inFlight.Dec()

	inputType, _ := ctx.Value(metricsInputTypeKey).(string)
	h.batches.WithLabelValues(inputType, "error").Inc()

	return ctx
}

// OnStartWithStreamInput 批次流程不产生流式输入
func (h *MetricsHandler) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo, input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	if input != nil {
		input.Close()
	}
	return ctx
}

// OnEndWithStreamOutput 批次流程不产生流式输出
func (h *MetricsHandler) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo, output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	if output != nil {
		output.Close()
	}
	return ctx
}

const (
	metricsInputTypeKey contextKey = "metrics_input_type"
)
