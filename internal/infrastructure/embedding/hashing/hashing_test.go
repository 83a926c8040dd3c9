package hashing

import (
	"context"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colpali-server/internal/domain/models"
)

func TestInvoker_EmbedTexts(t *testing.T) {
	inv, err := New("test", 8, 2)
	require.NoError(t, err)

	out, err := inv.EmbedTexts(context.Background(), []string{"hello world", "", "hello"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, 3, out[0].NumVectors())
	assert.Equal(t, 1, out[1].NumVectors())
	assert.Equal(t, 2, out[2].NumVectors())
	assert.Equal(t, 8, out[0].Dimension())

	// 相同的词得到相同的向量
	assert.Equal(t, out[0][1], out[2][1])
	assert.NotEqual(t, out[0][1], out[0][2])

	var norm float64
	for _, v := range out[0][1] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestInvoker_Deterministic(t *testing.T) {
	a, err := New("test", 16, 3)
	require.NoError(t, err)
	b, err := New("test", 16, 3)
	require.NoError(t, err)

	img := models.NewRGBImage(30, 20, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	first, err := a.EmbedImages(context.Background(), []*models.RGBImage{img})
	require.NoError(t, err)
	second, err := b.EmbedImages(context.Background(), []*models.RGBImage{img})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 9, first[0].NumVectors())
}

func TestInvoker_ImagesDifferByContent(t *testing.T) {
	inv, err := New("test", 16, 2)
	require.NoError(t, err)

	white := models.NewRGBImage(4, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	black := models.NewRGBImage(4, 4, color.RGBA{A: 255})
	tiny := models.NewRGBImage(1, 1, color.RGBA{A: 255})

	out, err := inv.EmbedImages(context.Background(), []*models.RGBImage{white, black, tiny})
	require.NoError(t, err)
	assert.NotEqual(t, out[0], out[1])
	assert.Equal(t, 4, out[2].NumVectors())
}

func TestNew_Validation(t *testing.T) {
	_, err := New("test", 0, 2)
	assert.Error(t, err)
	_, err = New("test", 4, 0)
	assert.Error(t, err)
}

func TestInvoker_NilImage(t *testing.T) {
	inv, err := New("test", 4, 1)
	require.NoError(t, err)
	_, err = inv.EmbedImages(context.Background(), []*models.RGBImage{nil})
	assert.Error(t, err)
}
