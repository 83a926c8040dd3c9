// Package flows 提供批量向量化的编排流程
package flows

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"golang.org/x/sync/errgroup"

	"colpali-server/internal/domain/models"
	"colpali-server/internal/domain/services"
	"colpali-server/internal/eino/config"
	"colpali-server/internal/eino/nodes"
	"colpali-server/pkg/logger"
)

// ErrInvalidInputType 输入类型不是 text 或 image
var ErrInvalidInputType = errors.New("input_type must be 'text' or 'image'")

// BatchEmbedder 批量向量化编排器。
// 将输入切分为固定大小的批次，逐批（图片模式先解码）调用模型，
// 按原始顺序拼接结果。任意一批失败则整个请求失败，不返回部分结果。
type BatchEmbedder struct {
	invoker          services.ModelInvoker
	decoder          *nodes.ImageDecoder
	cfg              *config.BatchConfig
	logger           logger.Logger
	callbackHandlers []callbacks.Handler
}

// preparedBatch 已准备好送入模型的批次
type preparedBatch struct {
	info   *models.BatchInfo
	texts  []string
	images []*models.RGBImage
}

// NewBatchEmbedder 创建批量向量化编排器。
// 参数 invoker: 进程内共享的模型调用方。
// 参数 decoder: 图片解码节点。
// 参数 cfg: 批处理配置（批次大小、预解码深度）。
// 参数 callbackHandlers: 每个批次触发的回调处理器（日志、指标、追踪）。
func NewBatchEmbedder(
	invoker services.ModelInvoker,
	decoder *nodes.ImageDecoder,
	cfg *config.BatchConfig,
	log logger.Logger,
	callbackHandlers ...callbacks.Handler,
) *BatchEmbedder {
	return &BatchEmbedder{
		invoker:          invoker,
		decoder:          decoder,
		cfg:              cfg,
		logger:           log,
		callbackHandlers: callbackHandlers,
	}
}

// ModelInfo 返回底层模型描述
func (b *BatchEmbedder) ModelInfo() models.ModelInfo {
	return b.invoker.Info()
}

// Embed 对 inputs 逐批向量化，返回与 inputs 等长、顺序一致的多向量列表。
// 空输入返回空列表且不调用模型。ctx 只在批次之间检查，已发出的批次不会被中断。
func (b *BatchEmbedder) Embed(ctx context.Context, inputType models.InputType, inputs []string) ([]models.Embedding, error) {
	if !inputType.Valid() {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidInputType, inputType)
	}

	batches, err := nodes.Partition(inputs, b.cfg.Size)
	if err != nil {
		return nil, err
	}
	total := nodes.BatchCount(len(inputs), b.cfg.Size)

	if inputType == models.InputTypeImage && b.cfg.PrefetchDepth > 0 && total > 1 {
		return b.embedPipelined(ctx, inputType, batches, total, len(inputs))
	}

	results := make([]models.Embedding, 0, len(inputs))
	for job := range batches {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aborted before batch %d/%d: %w", job.Index+1, total, err)
		}

		out, err := b.invoke(ctx, b.prepare(ctx, inputType, job, total))
		if err != nil {
			return nil, err
		}
		results = append(results, out...)
	}
	return results, nil
}

// embedPipelined 生产者解码后续批次，消费者同时调用模型处理当前批次。
// 模型调用始终只有一个在进行，结果顺序与串行模式一致。
func (b *BatchEmbedder) embedPipelined(
	ctx context.Context,
	inputType models.InputType,
	batches iter.Seq[nodes.BatchJob[string]],
	total, n int,
) ([]models.Embedding, error) {
	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan *preparedBatch, b.cfg.PrefetchDepth)

	g.Go(func() error {
		defer close(ready)
		for job := range batches {
			p := b.prepare(gctx, inputType, job, total)
			select {
			case ready <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	results := make([]models.Embedding, 0, n)
	g.Go(func() error {
		for p := range ready {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("aborted before batch %d/%d: %w", p.info.Index+1, total, err)
			}
			out, err := b.invoke(gctx, p)
			if err != nil {
				return err
			}
			results = append(results, out...)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// prepare 构造批次，图片模式下逐个解码，失败的替换为占位图
func (b *BatchEmbedder) prepare(ctx context.Context, inputType models.InputType, job nodes.BatchJob[string], total int) *preparedBatch {
	p := &preparedBatch{
		info: &models.BatchInfo{
			Index:     job.Index,
			Total:     total,
			Start:     job.Start,
			Size:      len(job.Items),
			InputType: inputType,
		},
	}

	if inputType == models.InputTypeText {
		p.texts = job.Items
		return p
	}

	p.images = make([]*models.RGBImage, len(job.Items))
	for i, encoded := range job.Items {
		img, ok := b.decoder.Decode(ctx, job.Start+i, encoded)
		if !ok {
			p.info.Placeholders++
		}
		p.images[i] = img
	}
	return p
}

// invoke 调用模型处理一个批次，并触发批次回调
func (b *BatchEmbedder) invoke(ctx context.Context, p *preparedBatch) ([]models.Embedding, error) {
	info := b.invoker.Info()
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      info.Model,
		Type:      info.Provider,
		Component: components.ComponentOfEmbedding,
	}, b.callbackHandlers...)
	ctx = callbacks.OnStart(ctx, p.info)

	// 批次一旦发出就执行完，不随请求取消
	invokeCtx := context.WithoutCancel(ctx)
	start := time.Now()

	var (
		out []models.Embedding
		err error
	)
	if p.info.InputType == models.InputTypeText {
		out, err = b.invoker.EmbedTexts(invokeCtx, p.texts)
	} else {
		out, err = b.invoker.EmbedImages(invokeCtx, p.images)
	}
	p.info.Elapsed = time.Since(start)

	if err == nil && len(out) != p.info.Size {
		err = fmt.Errorf("%w: got %d, want %d", services.ErrResultCountMismatch, len(out), p.info.Size)
	}
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, fmt.Errorf("batch %d/%d: %w", p.info.Index+1, p.info.Total, err)
	}

	callbacks.OnEnd(ctx, p.info)
	return out, nil
}
