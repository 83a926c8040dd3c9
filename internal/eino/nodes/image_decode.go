package nodes

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"colpali-server/internal/domain/models"
	"colpali-server/pkg/logger"
)

const (
	// PlaceholderSize 解码失败时占位图的边长
	PlaceholderSize = 224

	// DefaultMaxImagePixels 默认单张图片最大像素数，超过视为解码失败
	DefaultMaxImagePixels = 89_478_485
)

var (
	// ErrInvalidBase64 base64 内容无法解码
	ErrInvalidBase64 = errors.New("invalid base64 payload")
	// ErrImageTooLarge 图片像素数超过上限
	ErrImageTooLarge = errors.New("image exceeds pixel limit")
	// ErrEmptyImage 图片宽或高为 0
	ErrEmptyImage = errors.New("image has no pixels")
)

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Placeholder 返回一张新的 224x224 白色 RGB 占位图
func Placeholder() *models.RGBImage {
	return models.NewRGBImage(PlaceholderSize, PlaceholderSize, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
}

// ImageDecoder 图片解码节点。
// 单张图片解码失败不会让整个请求失败，而是替换为占位图并记录告警。
type ImageDecoder struct {
	maxPixels int
	logger    logger.Logger
}

// NewImageDecoder 创建图片解码节点，maxPixels <= 0 时使用默认上限
func NewImageDecoder(maxPixels int, log logger.Logger) *ImageDecoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &ImageDecoder{
		maxPixels: maxPixels,
		logger:    log,
	}
}

// Decode 解码第 index 个输入。
// 第二个返回值为 false 表示解码失败，返回的是占位图。
func (d *ImageDecoder) Decode(ctx context.Context, index int, encoded string) (*models.RGBImage, bool) {
	img, err := DecodeImage(encoded, d.maxPixels)
	if err != nil {
		d.logger.WarnContext(ctx, "图片解码失败，使用空白占位图",
			"index", index,
			"error", err.Error())
		return Placeholder(), false
	}
	return img, true
}

// DecodeImage 将 base64 字符串解码为三通道 RGB 图片。
// 支持标准/URL 安全字母表、有无填充以及 data URI 前缀；alpha 通道直接丢弃。
func DecodeImage(encoded string, maxPixels int) (*models.RGBImage, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	return toRGB(img)
}

// decodeBase64 依次尝试各种 base64 变体
func decodeBase64(encoded string) ([]byte, error) {
	payload := strings.Join(strings.Fields(encoded), "")
	if strings.HasPrefix(payload, "data:") {
		if _, data, found := strings.Cut(payload, ","); found {
			payload = data
		}
	}
	if payload == "" {
		return nil, ErrInvalidBase64
	}

	for _, enc := range base64Encodings {
		if raw, err := enc.DecodeString(payload); err == nil {
			return raw, nil
		}
	}
	return nil, ErrInvalidBase64
}

// toRGB 将任意颜色模型转换为三通道 RGB（非预乘，等价于丢弃 alpha）
func toRGB(img image.Image) (*models.RGBImage, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyImage
	}

	out := &models.RGBImage{Width: w, Height: h, Pix: make([]uint8, 3*w*h)}

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+4*w]
			dst := out.Pix[3*y*w : 3*(y+1)*w]
			for x := 0; x < w; x++ {
				copy(dst[3*x:3*x+3], row[4*x:4*x+3])
			}
		}
	default:
		i := 0
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
				i += 3
			}
		}
	}

	return out, nil
}
