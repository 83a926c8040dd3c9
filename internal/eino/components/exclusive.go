package components

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
)

// ExclusiveInvoker 保证进程内同一时刻只有一个批次在调用模型。
// 等待期间 ctx 被取消则放弃调用。
type ExclusiveInvoker struct {
	inner services.ModelInvoker
	sem   *semaphore.Weighted
}

var _ services.ModelInvoker = (*ExclusiveInvoker)(nil)

// NewExclusiveInvoker 包装模型调用方
func NewExclusiveInvoker(inner services.ModelInvoker) *ExclusiveInvoker {
	return &ExclusiveInvoker{
		inner: inner,
		sem:   semaphore.NewWeighted(1),
	}
}

// EmbedTexts 独占调用 EmbedTexts
func (e *ExclusiveInvoker) EmbedTexts(ctx context.Context, texts []string) ([]models.Embedding, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for model: %w", err)
	}
	defer e.sem.Release(1)
	return e.inner.EmbedTexts(ctx, texts)
}

// EmbedImages 独占调用 EmbedImages
func (e *ExclusiveInvoker) EmbedImages(ctx context.Context, images []*models.RGBImage) ([]models.Embedding, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for model: %w", err)
	}
	defer e.sem.Release(1)
	return e.inner.EmbedImages(ctx, images)
}

// Info 返回被包装调用方的描述
func (e *ExclusiveInvoker) Info() models.ModelInfo {
	return e.inner.Info()
}

// Close 关闭被包装的调用方
func (e *ExclusiveInvoker) Close() error {
	return e.inner.Close()
}
