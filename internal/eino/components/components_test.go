package components

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

type fakeEmbedder struct {
	vectors [][]float64
	err     error
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	return f.vectors, f.err
}

func testLogger() logger.Logger {
	return logger.New(logger.Config{Output: "discard"})
}

func TestEinoInvoker_EmbedTexts(t *testing.T) {
	inv := NewEinoInvoker(&fakeEmbedder{vectors: [][]float64{{1, 2}, {3, 4}}}, models.ModelInfo{Provider: "openai"})

	out, err := inv.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []models.Embedding{{{1, 2}}, {{3, 4}}}, out)
}

func TestEinoInvoker_Errors(t *testing.T) {
	inv := NewEinoInvoker(&fakeEmbedder{vectors: [][]float64{{1}}}, models.ModelInfo{Provider: "openai"})

	_, err := inv.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, services.ErrResultCountMismatch)

	_, err = inv.EmbedImages(context.Background(), []*models.RGBImage{models.NewRGBImage(1, 1, color.RGBA{A: 255})})
	assert.ErrorIs(t, err, services.ErrUnsupportedInput)

	boom := errors.New("boom")
	inv = NewEinoInvoker(&fakeEmbedder{err: boom}, models.ModelInfo{})
	_, err = inv.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
}

func TestNewModelInvoker(t *testing.T) {
	cfg := config.DefaultEinoConfig().Invoker
	cfg.Provider = "hash"

	inv, err := NewModelInvoker(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "hash", inv.Info().Provider)
	assert.Equal(t, config.DefaultModel, inv.Info().Model)

	cfg.Provider = "unknown"
	_, err = NewModelInvoker(context.Background(), &cfg, testLogger())
	assert.Error(t, err)

	cfg.Provider = "hash"
	cfg.Hash.Dimension = 0
	_, err = NewModelInvoker(context.Background(), &cfg, testLogger())
	assert.Error(t, err)
}

// slowInvoker 记录同时在调用中的批次数
type slowInvoker struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *slowInvoker) EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		old := s.maxSeen.Load()
		if n <= old || s.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return make([]models.Embedding, len(texts)), nil
}

func (s *slowInvoker) EmbedImages(ctx context.Context, images []*models.RGBImage) ([]models.Embedding, error) {
	return make([]models.Embedding, len(images)), nil
}

func (s *slowInvoker) Info() models.ModelInfo { return models.ModelInfo{Provider: "slow"} }
func (s *slowInvoker) Close() error           { return nil }

func TestExclusiveInvoker_Serializes(t *testing.T) {
	inner := &slowInvoker{}
	inv := NewExclusiveInvoker(inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := inv.EmbedTexts(context.Background(), []string{"x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.maxSeen.Load())
	assert.Equal(t, "slow", inv.Info().Provider)
}

func TestExclusiveInvoker_CanceledWhileWaiting(t *testing.T) {
	inv := NewExclusiveInvoker(&slowInvoker{})
	require.NoError(t, inv.sem.Acquire(context.Background(), 1))
	defer inv.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.EmbedImages(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
