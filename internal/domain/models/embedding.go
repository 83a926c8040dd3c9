package models

import (
	"image"
	"image/color"
	"time"
)

// InputType 请求输入类型，只允许 text 或 image 二选一
type InputType string

const (
	// InputTypeText 原始文本输入
	InputTypeText InputType = "text"
	// InputTypeImage base64 编码的图片输入
	InputTypeImage InputType = "image"
)

// Valid 判断输入类型是否为受支持的取值
func (t InputType) Valid() bool {
	return t == InputTypeText || t == InputTypeImage
}

// String 返回输入类型的字面值
func (t InputType) String() string {
	return string(t)
}

// Embedding 单个输入对应的多向量结果，每一行是一个定长向量
type Embedding [][]float32

// NumVectors 返回多向量中向量的个数
func (e Embedding) NumVectors() int {
	return len(e)
}

// Dimension 返回单个向量的维度，空结果返回 0
func (e Embedding) Dimension() int {
	if len(e) == 0 {
		return 0
	}
	return len(e[0])
}

// RGBImage 三通道（RGB）交错存储的图片。
// Pix 长度恒为 3*Width*Height，按行优先排列。
type RGBImage struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewRGBImage 创建指定尺寸、像素全部为 fill 的图片
func NewRGBImage(width, height int, fill color.RGBA) *RGBImage {
	pix := make([]uint8, 3*width*height)
	for i := 0; i < len(pix); i += 3 {
		pix[i] = fill.R
		pix[i+1] = fill.G
		pix[i+2] = fill.B
	}
	return &RGBImage{Width: width, Height: height, Pix: pix}
}

// Channels 固定返回 3
func (img *RGBImage) Channels() int {
	return 3
}

// ColorModel 实现 image.Image
func (img *RGBImage) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds 实现 image.Image
func (img *RGBImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.Width, img.Height)
}

// At 实现 image.Image，越界返回透明黑
func (img *RGBImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return color.RGBA{}
	}
	i := 3 * (y*img.Width + x)
	return color.RGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: 0xff}
}

// ModelInfo 模型调用方的描述信息，用于健康检查与启动日志
type ModelInfo struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Device    string `json:"device,omitempty"`
	DType     string `json:"dtype,omitempty"`
	Attention string `json:"attention,omitempty"`
}

// BatchInfo 单个批次的遥测信息，作为 Eino 回调的输入与输出
type BatchInfo struct {
	// Index 批次序号（从 0 开始）
	Index int
	// Total 本次请求的批次总数
	Total int
	// Start 批次首元素在原始输入中的下标
	Start int
	// Size 批次内元素个数
	Size int
	// InputType 批次输入类型
	InputType InputType
	// Placeholders 图片解码失败而替换为占位图的个数
	Placeholders int
	// Elapsed 模型调用耗时，仅在批次结束后填充
	Elapsed time.Duration
}

// PerItem 返回单个元素的平均耗时
func (b *BatchInfo) PerItem() time.Duration {
	if b.Size == 0 {
		return 0
	}
	return b.Elapsed / time.Duration(b.Size)
}
