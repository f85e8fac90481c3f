// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
//
// 所有 Record 方法对 nil 接收者安全，未启用指标时可以直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// JSON-RPC 指标
	rpcRequestsTotal    *prometheus.CounterVec
	rpcRequestDuration  *prometheus.HistogramVec
	serverRequestsTotal *prometheus.CounterVec
	droppedFramesTotal  prometheus.Counter

	// 子进程指标
	processStartsTotal *prometheus.CounterVec
	processExitsTotal  *prometheus.CounterVec
	activeClients      prometheus.Gauge

	// 诊断指标
	diagnosticsTotal *prometheus.CounterVec
	diagnoseDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// JSON-RPC 指标
	c.rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lsp_requests_total",
			Help:      "Total number of JSON-RPC requests sent to the language server",
		},
		[]string{"method", "status"}, // status: ok, error, timeout, exited, canceled
	)

	c.rpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lsp_request_duration_seconds",
			Help:      "JSON-RPC request round-trip duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)

	c.serverRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lsp_server_requests_total",
			Help:      "Total number of requests initiated by the language server",
		},
		[]string{"method", "handled"},
	)

	c.droppedFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lsp_dropped_frames_total",
			Help:      "Total number of frames dropped because the body was not valid JSON",
		},
	)

	// 子进程指标
	c.processStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lsp_process_starts_total",
			Help:      "Total number of language server process spawns",
		},
		[]string{"status"},
	)

	c.processExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lsp_process_exits_total",
			Help:      "Total number of language server process exits",
		},
		[]string{"reason"}, // reason: clean, crashed, framing, stopped
	)

	c.activeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lsp_active_clients",
			Help:      "Number of workspace clients held by the registry",
		},
	)

	// 诊断指标
	c.diagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Total number of diagnostics returned",
		},
		[]string{"severity"},
	)

	c.diagnoseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diagnose_duration_seconds",
			Help:      "End-to-end diagnose duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔌 JSON-RPC 指标记录
// =============================================================================

// RecordRequest 记录一次客户端请求的结算结果
func (c *Collector) RecordRequest(method, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.rpcRequestsTotal.WithLabelValues(method, status).Inc()
	c.rpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordServerRequest 记录服务端发起的请求
func (c *Collector) RecordServerRequest(method string, handled bool) {
	if c == nil {
		return
	}
	c.serverRequestsTotal.WithLabelValues(method, boolLabel(handled)).Inc()
}

// RecordDroppedFrame 记录被丢弃的帧
func (c *Collector) RecordDroppedFrame() {
	if c == nil {
		return
	}
	c.droppedFramesTotal.Inc()
}

// =============================================================================
// ⚙️ 子进程指标记录
// =============================================================================

// RecordProcessStart 记录子进程启动
func (c *Collector) RecordProcessStart(ok bool) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	c.processStartsTotal.WithLabelValues(status).Inc()
}

// RecordProcessExit 记录子进程退出
func (c *Collector) RecordProcessExit(reason string) {
	if c == nil {
		return
	}
	c.processExitsTotal.WithLabelValues(reason).Inc()
}

// SetActiveClients 更新注册表中的客户端数量
func (c *Collector) SetActiveClients(n int) {
	if c == nil {
		return
	}
	c.activeClients.Set(float64(n))
}

// =============================================================================
// 🩺 诊断指标记录
// =============================================================================

// RecordDiagnostics 按严重级别记录诊断数量
func (c *Collector) RecordDiagnostics(severity string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.diagnosticsTotal.WithLabelValues(severity).Add(float64(n))
}

// RecordDiagnose 记录一次完整的诊断操作
func (c *Collector) RecordDiagnose(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.diagnoseDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
