package components

import (
	"context"
	"fmt"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/config"
)

// EinoInvoker 将 Eino Embedder 适配为 ModelInvoker。
// Eino Embedder 每个文本只产出一个向量，结果包装成只含一个向量的多向量；不支持图片。
type EinoInvoker struct {
	embedder embedding.Embedder
	info     models.ModelInfo
}

var _ services.ModelInvoker = (*EinoInvoker)(nil)

// NewEinoInvoker 包装任意 Eino Embedder
func NewEinoInvoker(embedder embedding.Embedder, info models.ModelInfo) *EinoInvoker {
	return &EinoInvoker{embedder: embedder, info: info}
}

// EmbedTexts 调用 Eino Embedder 生成向量
func (e *EinoInvoker) EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error) {
	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d, want %d", services.ErrResultCountMismatch, len(vectors), len(texts))
	}

	out := make([]models.Embedding, len(vectors))
	for i, vec := range vectors {
		v := make([]float32, len(vec))
		for j, f := range vec {
			v[j] = float32(f)
		}
		out[i] = models.Embedding{v}
	}
	return out, nil
}

// EmbedImages 文本向量模型无法处理图片
func (e *EinoInvoker) EmbedImages(ctx context.Context, images []*models.RGBImage) ([]models.Embedding, error) {
	return nil, fmt.Errorf("%w: %s only accepts text", services.ErrUnsupportedInput, e.info.Provider)
}

// Info 返回模型描述
func (e *EinoInvoker) Info() models.ModelInfo {
	return e.info
}

// Close 无需释放资源
func (e *EinoInvoker) Close() error {
	return nil
}

// newOpenAIEmbedder 创建 OpenAI Embedder
func newOpenAIEmbedder(ctx context.Context, cfg *config.InvokerConfig) (embedding.Embedder, error) {
	embedCfg := &openaiembed.EmbeddingConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.TimeoutDuration(),
	}

	// 设置 BaseURL（如果提供）
	if cfg.OpenAI.BaseURL != "" {
		embedCfg.BaseURL = cfg.OpenAI.BaseURL
	}

	// Azure OpenAI 配置
	if cfg.OpenAI.ByAzure {
		embedCfg.ByAzure = true
		embedCfg.APIVersion = cfg.OpenAI.APIVersion
	}

	// 设置维度（如果提供）
	if cfg.OpenAI.Dimensions != nil {
		embedCfg.Dimensions = cfg.OpenAI.Dimensions
	}

	return openaiembed.NewEmbedder(ctx, embedCfg)
}
