// Package nodes 提供批量嵌入流程中使用的处理节点实现
package nodes

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidBatchSize 批次大小必须为正整数
var ErrInvalidBatchSize = errors.New("batch size must be positive")

// BatchJob 输入序列中的一个连续切片及其在原始序列中的位置。
// Items 与原始切片共享底层数组，只读使用。
type BatchJob[T any] struct {
	// Index 批次序号（从 0 开始）
	Index int
	// Start 首元素在原始序列中的下标
	Start int
	// Items 批次内元素
	Items []T
}

// Partition 将有序输入惰性地切分为固定大小的连续批次。
// 除最后一个批次外每批恰好 size 个元素；按顺序覆盖全部输入，无重叠无遗漏。
// 输入为空时返回空序列；size <= 0 返回 ErrInvalidBatchSize。
func Partition[T any](items []T, size int) (iter.Seq[BatchJob[T]], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}

	return func(yield func(BatchJob[T]) bool) {
		for index, start := 0, 0; start < len(items); index, start = index+1, start+size {
			end := min(start+size, len(items))
			job := BatchJob[T]{
				Index: index,
				Start: start,
				Items: items[start:end:end],
			}
			if !yield(job) {
				return
			}
		}
	}, nil
}

// BatchCount 返回 n 个元素按 size 切分后的批次数，即 ceil(n/size)。
func BatchCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
