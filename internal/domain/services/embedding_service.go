package services

import (
	"context"
	"errors"

	"colpali-server/internal/domain/models"
)

var (
	// ErrUnsupportedInput 模型不支持该输入类型（例如纯文本模型收到图片）
	ErrUnsupportedInput = errors.New("input type not supported by model")
	// ErrResultCountMismatch 模型返回的结果数量与输入数量不一致
	ErrResultCountMismatch = errors.New("embedding count does not match batch size")
)

// ModelInvoker 多向量嵌入模型调用接口。
// 每次调用接收一个同质批次（全部文本或全部图片），按相同顺序返回等量的结果，
// 不得重排、丢弃或重复元素。调用是同步阻塞的，任何错误都视为整个请求失败。
type ModelInvoker interface {
	// EmbedTexts 批量生成文本（查询）多向量
	EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error)

	// EmbedImages 批量生成图片多向量
	EmbedImages(ctx context.Context, images []*models.RGBImage) ([]models.Embedding, error)

	// Info 返回模型描述信息
	Info() models.ModelInfo

	// Close 释放资源
	Close() error
}
