// Package metrics 提供进程内独立的 Prometheus 注册表
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 包装独立的 Prometheus 注册表。
// 所有通过 Registerer 注册的指标都会带上常量标签 service。
type Registry struct {
	registry   *prometheus.Registry
	registerer prometheus.Registerer
}

// NewRegistry 创建注册表，defaultCollectors 为 true 时注册 Go 运行时与进程指标
func NewRegistry(serviceName string, defaultCollectors bool) *Registry {
	registry := prometheus.NewRegistry()

	wrapped := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": serviceName},
		registry,
	)

	if defaultCollectors {
		wrapped.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	return &Registry{
		registry:   registry,
		registerer: wrapped,
	}
}

// Registerer 返回带 service 标签的注册器
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registerer
}

// Gatherer 返回底层采集器，便于测试读取指标
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler 返回 Prometheus 文本格式的 HTTP 处理器
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
