package callbacks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

var runInfo = &callbacks.RunInfo{
	Name:      "test-model",
	Type:      "hash",
	Component: components.ComponentOfEmbedding,
}

func TestMetricsHandler_RecordsBatches(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewMetricsHandler(&config.MetricsCallbackConfig{Enabled: true}, reg)
	require.NoError(t, err)

	ctx := context.Background()
	batch := &models.BatchInfo{Index: 0, Total: 2, Size: 4, InputType: models.InputTypeImage, Placeholders: 1}

	ctx = h.OnStart(ctx, runInfo, batch)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.inFlight))

	batch.Elapsed = 2 * time.Second
	h.OnEnd(ctx, runInfo, batch)

	assert.Equal(t, float64(0), testutil.ToFloat64(h.inFlight))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.batches.WithLabelValues("image", "success")))
	assert.Equal(t, float64(4), testutil.ToFloat64(h.items.WithLabelValues("image")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.placeholders))

	failed := &models.BatchInfo{Index: 1, Total: 2, Size: 1, InputType: models.InputTypeImage}
	ctx = h.OnStart(context.Background(), runInfo, failed)
	h.OnError(ctx, runInfo, errors.New("out of memory"))

	assert.Equal(t, float64(1), testutil.ToFloat64(h.batches.WithLabelValues("image", "error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.inFlight))
}

func TestMetricsHandler_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := &config.MetricsCallbackConfig{Enabled: true}

	_, err := NewMetricsHandler(cfg, reg)
	require.NoError(t, err)

	_, err = NewMetricsHandler(cfg, reg)
	assert.Error(t, err)
}

func TestTracingHandler_UsesTraceIDFromContext(t *testing.T) {
	h := NewTracingHandler(&config.TracingCallbackConfig{Enabled: true}, logger.New(logger.Config{Output: "discard"}))

	ctx := WithTraceID(context.Background(), "req-123")
	ctx = h.OnStart(ctx, runInfo, &models.BatchInfo{Index: 2, Size: 3, InputType: models.InputTypeText})

	span := getCurrentSpan(ctx)
	require.NotNil(t, span)
	assert.Equal(t, "req-123", span.TraceID)
	assert.Equal(t, "2", span.Tags["batch_index"])

	h.OnEnd(ctx, runInfo, nil)
	assert.Equal(t, "OK", span.Status)
}

func TestTracingHandler_GeneratesTraceID(t *testing.T) {
	h := NewTracingHandler(&config.TracingCallbackConfig{Enabled: true}, logger.New(logger.Config{Output: "discard"}))

	ctx := h.OnStart(context.Background(), runInfo, nil)
	assert.NotEmpty(t, ExtractTraceID(ctx))

	h.OnError(ctx, runInfo, errors.New("boom"))
	assert.Equal(t, "ERROR", getCurrentSpan(ctx).Status)
}

func TestFactory_CreateHandlers(t *testing.T) {
	cfg := config.DefaultEinoConfig().Callbacks
	cfg.Tracing.Enabled = true
	log := logger.New(logger.Config{Output: "discard"})

	handlers, err := NewFactory(&cfg, log, prometheus.NewRegistry()).CreateHandlers()
	require.NoError(t, err)
	assert.Len(t, handlers, 3)

	handlers, err = NewFactory(&cfg, log, nil).CreateHandlers()
	require.NoError(t, err)
	assert.Len(t, handlers, 2)

	cfg.Logging.Enabled = false
	cfg.Tracing.Enabled = false
	handlers, err = NewFactory(&cfg, log, nil).CreateHandlers()
	require.NoError(t, err)
	assert.Empty(t, handlers)
}
