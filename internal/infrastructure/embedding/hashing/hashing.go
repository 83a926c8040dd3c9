// Package hashing 提供确定性的多向量哈希模型。
// 不依赖加速器，相同输入总是得到相同输出，用于本地开发与测试。
package hashing

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
)

// queryMarker 文本多向量的首个向量，对应查询前缀
const queryMarker = "<query>"

// Invoker 哈希模型。
// 文本：查询前缀 + 每个空白分隔的词各一个向量；
// 图片：按 grid x grid 切块，每块一个向量，由块序号与块平均颜色决定。
type Invoker struct {
	model     string
	dimension int
	grid      int
}

var _ services.ModelInvoker = (*Invoker)(nil)

// New 创建哈希模型
func New(model string, dimension, grid int) (*Invoker, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("hash dimension must be positive, got %d", dimension)
	}
	if grid <= 0 {
		return nil, fmt.Errorf("hash patch grid must be positive, got %d", grid)
	}
	return &Invoker{
		model:     model,
		dimension: dimension,
		grid:      grid,
	}, nil
}

// EmbedTexts 为每个文本生成多向量
func (h *Invoker) EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error) {
	out := make([]models.Embedding, len(texts))
	for i, text := range texts {
		tokens := append([]string{queryMarker}, strings.Fields(text)...)
		emb := make(models.Embedding, len(tokens))
		for j, token := range tokens {
			emb[j] = h.vector(seedString(token))
		}
		out[i] = emb
	}
	return out, nil
}

// EmbedImages 为每张图片生成 grid*grid 个向量
func (h *Invoker) EmbedImages(ctx context.Context, images []*models.RGBImage) ([]models.Embedding, error) {
	out := make([]models.Embedding, len(images))
	for i, img := range images {
		if img == nil {
			return nil, fmt.Errorf("image %d is nil", i)
		}
		emb := make(models.Embedding, 0, h.grid*h.grid)
		for py := 0; py < h.grid; py++ {
			for px := 0; px < h.grid; px++ {
				r, g, b := patchMean(img, px, py, h.grid)
				seed := seedString(fmt.Sprintf("patch:%d:%d:%d:%d:%d", px, py, r, g, b))
				emb = append(emb, h.vector(seed))
			}
		}
		out[i] = emb
	}
	return out, nil
}

// Info 返回模型描述
func (h *Invoker) Info() models.ModelInfo {
	return models.ModelInfo{
		Provider: "hash",
		Model:    h.model,
		Device:   "cpu",
		DType:    "float32",
	}
}

// Close 无需释放资源
func (h *Invoker) Close() error {
	return nil
}

// vector 用 splitmix64 从种子展开出 L2 归一化的向量
func (h *Invoker) vector(seed uint64) []float32 {
	v := make([]float32, h.dimension)
	var norm float64
	state := seed
	for i := range v {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		f := float64(z>>11)/float64(1<<53)*2 - 1
		v[i] = float32(f)
		norm += f * f
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func seedString(s string) uint64 {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(s))
	return binary.BigEndian.Uint64(hasher.Sum(nil))
}

// patchMean 计算第 (px, py) 块的平均颜色，图片小于网格时块可能为空
func patchMean(img *models.RGBImage, px, py, grid int) (uint8, uint8, uint8) {
	x0, x1 := px*img.Width/grid, (px+1)*img.Width/grid
	y0, y1 := py*img.Height/grid, (py+1)*img.Height/grid
	if x1 <= x0 || y1 <= y0 {
		return 0, 0, 0
	}

	var r, g, b, n uint64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			i := 3 * (y*img.Width + x)
			r += uint64(img.Pix[i])
			g += uint64(img.Pix[i+1])
			b += uint64(img.Pix[i+2])
			n++
		}
	}
	return uint8(r / n), uint8(g / n), uint8(b / n)
}
