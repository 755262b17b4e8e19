// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil 接收者上的所有方法都是空操作，组件可以不注入。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 技能指标
	skillInvocationsTotal   *prometheus.CounterVec
	skillInvocationDuration *prometheus.HistogramVec
	graphStepsTotal         *prometheus.CounterVec
	toolCallsTotal          *prometheus.CounterVec

	// 抓取指标
	crawlFetchesTotal *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到 reg
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	c.httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.skillInvocationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skill_invocations_total",
		Help:      "Total number of skill invocations",
	}, []string{"skill", "status"})

	c.skillInvocationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "skill_invocation_duration_seconds",
		Help:      "Skill invocation duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
	}, []string{"skill"})

	c.graphStepsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "graph_steps_total",
		Help:      "Total number of graph node executions",
	}, []string{"graph", "node", "status"})

	c.toolCallsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tool_calls_total",
		Help:      "Total number of tool calls",
	}, []string{"tool", "status"})

	c.crawlFetchesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crawl_fetches_total",
		Help:      "Total number of URL fetches",
	}, []string{"status"})

	c.llmRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_requests_total",
		Help:      "Total number of LLM requests",
	}, []string{"provider", "model", "status"})

	c.llmRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "llm_request_duration_seconds",
		Help:      "LLM request duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "model"})

	c.llmTokensUsed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_tokens_used_total",
		Help:      "Total number of tokens used",
	}, []string{"provider", "model", "type"})

	c.cacheHits = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total number of cache hits",
	}, []string{"cache_type"})

	c.cacheMisses = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total number of cache misses",
	}, []string{"cache_type"})

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 📈 记录方法
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSkillInvocation 记录一次技能调用
func (c *Collector) RecordSkillInvocation(skill, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.skillInvocationsTotal.WithLabelValues(skill, status).Inc()
	c.skillInvocationDuration.WithLabelValues(skill).Observe(duration.Seconds())
}

// RecordGraphStep 记录一次节点执行
func (c *Collector) RecordGraphStep(graph, node, status string) {
	if c == nil {
		return
	}
	c.graphStepsTotal.WithLabelValues(graph, node, status).Inc()
}

// RecordToolCall 记录一次工具调用
func (c *Collector) RecordToolCall(tool, status string) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordCrawlFetch 记录一次 URL 抓取，status 为 ok / error / cached
func (c *Collector) RecordCrawlFetch(status string) {
	if c == nil {
		return
	}
	c.crawlFetchesTotal.WithLabelValues(status).Inc()
}

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// statusClass 将状态码归类为 2xx/3xx/4xx/5xx
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
