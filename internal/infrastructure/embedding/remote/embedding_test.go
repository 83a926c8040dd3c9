package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/config"
	"colpali-server/pkg/logger"
)

// fakeBackend 模拟推理后端，每个输入返回 [[len(input)]]
type fakeBackend struct {
	device   string
	requests []embedRequest
	auth     string
	short    bool
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(infoResponse{
			Model:     "backend-model",
			Device:    b.device,
			DType:     "bfloat16",
			Attention: "sdpa",
		})
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		b.auth = r.Header.Get("Authorization")
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.requests = append(b.requests, req)

		n := len(req.Inputs)
		if b.short {
			n--
		}
		out := embedResponse{Embeddings: make([]models.Embedding, n)}
		for i := range out.Embeddings {
			out.Embeddings[i] = models.Embedding{{float32(len(req.Inputs[i]))}}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	return mux
}

func newTestInvoker(t *testing.T, backend http.Handler) *Invoker {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := config.DefaultEinoConfig().Invoker
	cfg.Remote.BaseURL = srv.URL + "/"
	cfg.Remote.APIKey = "backend-key"

	inv, err := NewRemoteInvoker(context.Background(), &cfg, logger.New(logger.Config{Output: "discard"}))
	require.NoError(t, err)
	return inv.(*Invoker)
}

func TestNewRemoteInvoker_Info(t *testing.T) {
	backend := &fakeBackend{device: "cuda:0"}
	inv := newTestInvoker(t, backend.handler())

	info := inv.Info()
	assert.Equal(t, "remote", info.Provider)
	assert.Equal(t, "backend-model", info.Model)
	assert.Equal(t, "cuda:0", info.Device)
	assert.Equal(t, "sdpa", info.Attention)
	assert.NoError(t, inv.Close())
}

func TestNewRemoteInvoker_BackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := config.DefaultEinoConfig().Invoker
	cfg.Remote.BaseURL = srv.URL

	_, err := NewRemoteInvoker(context.Background(), &cfg, logger.New(logger.Config{Output: "discard"}))
	assert.Error(t, err)
}

func TestInvoker_EmbedTexts(t *testing.T) {
	backend := &fakeBackend{device: "cuda:0"}
	inv := newTestInvoker(t, backend.handler())

	out, err := inv.EmbedTexts(context.Background(), []string{"hello", "hi"})
	require.NoError(t, err)
	assert.Equal(t, []models.Embedding{{{5}}, {{2}}}, out)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "text", backend.requests[0].InputType)
	assert.Equal(t, config.DefaultModel, backend.requests[0].Model)
	assert.Equal(t, "Bearer backend-key", backend.auth)
}

func TestInvoker_EmbedImages_SendsPNG(t *testing.T) {
	backend := &fakeBackend{device: "cuda:0"}
	inv := newTestInvoker(t, backend.handler())

	img := models.NewRGBImage(3, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	out, err := inv.EmbedImages(context.Background(), []*models.RGBImage{img})
	require.NoError(t, err)
	require.Len(t, out, 1)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "image", backend.requests[0].InputType)

	raw, err := base64.StdEncoding.DecodeString(backend.requests[0].Inputs[0])
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Bounds().Dx())
	assert.Equal(t, 2, decoded.Bounds().Dy())
	r, g, b, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, []uint32{10, 20, 30}, []uint32{r >> 8, g >> 8, b >> 8})
}

func TestInvoker_CountMismatch(t *testing.T) {
	backend := &fakeBackend{device: "cuda:0", short: true}
	inv := newTestInvoker(t, backend.handler())

	_, err := inv.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, services.ErrResultCountMismatch)
}

func TestInvoker_BackendError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","device":"cpu"}`))
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "CUDA out of memory", http.StatusInternalServerError)
	})
	inv := newTestInvoker(t, mux)
	assert.Equal(t, "cpu", inv.Info().Device)

	_, err := inv.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}
