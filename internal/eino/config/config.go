// Package config 定义嵌入流程（模型调用、批处理、图片解码、回调）的配置结构
package config

import (
	"fmt"
	"time"
)

// DefaultModel 默认使用的预训练多语言多向量模型
const DefaultModel = "tsystems/colqwen2.5-3b-multilingual-v1.0"

// DefaultBatchSize 默认批次大小
const DefaultBatchSize = 16

// EinoConfig 嵌入流程的总配置结构。
// 包含模型调用方、批处理、图片解码以及回调系统的配置。
type EinoConfig struct {
	Invoker   InvokerConfig   `yaml:"invoker"`
	Batch     BatchConfig     `yaml:"batch"`
	Image     ImageConfig     `yaml:"image"`
	Callbacks CallbacksConfig `yaml:"callbacks"`
}

// InvokerConfig 定义模型调用方（Model Invoker）的配置。
// 支持 remote（GPU 推理后端）、openai（仅文本）和 hash（确定性本地模型）三种提供商。
type InvokerConfig struct {
	Provider string `yaml:"provider"` // remote, openai, hash
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // 秒

	Remote RemoteInvokerConfig `yaml:"remote"`
	OpenAI OpenAIInvokerConfig `yaml:"openai"`
	Hash   HashInvokerConfig   `yaml:"hash"`
}

// RemoteInvokerConfig 定义远程推理后端的专用配置。
type RemoteInvokerConfig struct {
	BaseURL  string            `yaml:"base_url"`
	APIKey   string            `yaml:"api_key"`
	RetryMax int               `yaml:"retry_max"`
	Headers  map[string]string `yaml:"headers"`
}

// OpenAIInvokerConfig 定义 OpenAI 兼容嵌入接口的专用配置（仅支持文本）。
type OpenAIInvokerConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions *int   `yaml:"dimensions"`

	// Azure 专用
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
}

// HashInvokerConfig 定义确定性哈希模型的配置。
type HashInvokerConfig struct {
	Dimension int `yaml:"dimension"`
	PatchGrid int `yaml:"patch_grid"` // 图片按 PatchGrid x PatchGrid 切块，每块一个向量
}

// BatchConfig 定义批处理编排的配置。
type BatchConfig struct {
	// Size 每批元素个数
	Size int `yaml:"size"`
	// PrefetchDepth 图片模式下预解码的批次数，0 表示严格串行
	PrefetchDepth int `yaml:"prefetch_depth"`
	// ExclusiveInvoker 进程内同一时刻只允许一个批次调用模型
	ExclusiveInvoker bool `yaml:"exclusive_invoker"`
}

// ImageConfig 定义图片解码的配置。
type ImageConfig struct {
	MaxPixels int `yaml:"max_pixels"`
}

// CallbacksConfig 定义批次回调系统配置。
type CallbacksConfig struct {
	Logging LoggingCallbackConfig `yaml:"logging"`
	Metrics MetricsCallbackConfig `yaml:"metrics"`
	Tracing TracingCallbackConfig `yaml:"tracing"`
}

// LoggingCallbackConfig 定义日志回调的配置。
type LoggingCallbackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// MetricsCallbackConfig 定义指标监控回调的配置。
type MetricsCallbackConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// TracingCallbackConfig 定义链路追踪回调的配置。
type TracingCallbackConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TimeoutDuration 返回模型调用超时时间
func (c *InvokerConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Validate 检查 EinoConfig 配置的有效性。
func (c *EinoConfig) Validate() error {
	if err := c.Invoker.Validate(); err != nil {
		return fmt.Errorf("invoker: %w", err)
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if c.Image.MaxPixels < 0 {
		return fmt.Errorf("image: max_pixels must not be negative")
	}
	return nil
}

// Validate 检查 InvokerConfig 配置的有效性。
func (c *InvokerConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	switch c.Provider {
	case "remote":
		if c.Remote.BaseURL == "" {
			return fmt.Errorf("remote base_url is required")
		}
		if c.Remote.RetryMax < 0 {
			return fmt.Errorf("remote retry_max must not be negative")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api_key is required")
		}
	case "hash":
		if c.Hash.Dimension <= 0 {
			return fmt.Errorf("hash dimension must be positive")
		}
		if c.Hash.PatchGrid <= 0 {
			return fmt.Errorf("hash patch_grid must be positive")
		}
	default:
		return fmt.Errorf("unsupported provider: %q", c.Provider)
	}
	return nil
}

// Validate 检查 BatchConfig 配置的有效性。
func (c *BatchConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("size must be positive, got %d", c.Size)
	}
	if c.PrefetchDepth < 0 {
		return fmt.Errorf("prefetch_depth must not be negative")
	}
	return nil
}

// DefaultEinoConfig 创建并返回一个包含默认值的 EinoConfig 对象。
// 默认通过 remote 提供商访问本地 GPU 推理后端，批次大小 16，串行处理。
func DefaultEinoConfig() *EinoConfig {
	return &EinoConfig{
		Invoker: InvokerConfig{
			Provider: "remote",
			Model:    DefaultModel,
			Timeout:  300,
			Remote: RemoteInvokerConfig{
				BaseURL: "http://localhost:9000",
			},
			Hash: HashInvokerConfig{
				Dimension: 128,
				PatchGrid: 4,
			},
		},
		Batch: BatchConfig{
			Size: DefaultBatchSize,
		},
		Image: ImageConfig{
			MaxPixels: 89_478_485,
		},
		Callbacks: CallbacksConfig{
			Logging: LoggingCallbackConfig{
				Enabled: true,
				Level:   "info",
			},
			Metrics: MetricsCallbackConfig{
				Enabled:     true,
				Endpoint:    "/metrics",
				ServiceName: "colpali-server",
			},
			Tracing: TracingCallbackConfig{
				Enabled: false,
			},
		},
	}
}
