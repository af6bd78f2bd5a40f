package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics 查询与上传接口的请求指标
type HTTPMetrics struct {
	RequestsTotal      *prometheus.CounterVec   // service/route/method/status_code
	RequestDuration    *prometheus.HistogramVec // service/route
	RequestsInProgress *prometheus.GaugeVec
	ErrorsTotal        *prometheus.CounterVec // 按业务错误码
}

// DefaultHTTPMetrics 默认的 HTTP 指标实例
var DefaultHTTPMetrics *HTTPMetrics

// HTTPBuckets 单位秒。同步上传整段日志会落在秒级, 查询一般在 200ms 内
var HTTPBuckets = []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2.5, 5, 10, 30}

// 不计入请求指标的探活路径
var unmonitoredPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/healthz": {},
	"/readyz":  {},
}

func init() {
	DefaultHTTPMetrics = NewHTTPMetrics("tracker")
}

// NewHTTPMetrics 使用全局注册表
func NewHTTPMetrics(namespace string) *HTTPMetrics {
	return NewHTTPMetricsWithRegistry(namespace, GetRegisterer())
}

// NewHTTPMetricsWithRegistry 测试时传入独立注册表
func NewHTTPMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(registerer)

	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template, method and status code",
		}, []string{"service", "route", "method", "status_code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template",
			Buckets:   HTTPBuckets,
		}, []string{"service", "route"}),
		RequestsInProgress: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_progress",
			Help:      "HTTP requests currently being served",
		}, []string{"service"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Application errors returned over HTTP by code and category",
		}, []string{"service", "code", "category"}),
	}
}

// RecordError 响应层写出 AppError 时调用
func (m *HTTPMetrics) RecordError(service string, code int, category string) {
	m.ErrorsTotal.WithLabelValues(normalizeServiceName(service), strconv.Itoa(code), category).Inc()
}

// RecordRequest route 必须是路由模板, 例如 /api/v1/reports/:id
func (m *HTTPMetrics) RecordRequest(service, route, method string, statusCode int, duration time.Duration) {
	service = normalizeServiceName(service)
	if route == "" {
		route = "unknown"
	}
	m.RequestsTotal.WithLabelValues(service, route, method, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(service, route).Observe(duration.Seconds())
}

func (m *HTTPMetrics) IncInProgress(service string) {
	m.RequestsInProgress.WithLabelValues(normalizeServiceName(service)).Inc()
}

func (m *HTTPMetrics) DecInProgress(service string) {
	m.RequestsInProgress.WithLabelValues(normalizeServiceName(service)).Dec()
}

// IsHealthCheckEndpoint 探活与抓取路径不记指标
func IsHealthCheckEndpoint(path string) bool {
	_, ok := unmonitoredPaths[path]
	return ok
}

// PathLimitTracker 限制未匹配路由的原始路径标签数量, 超出后归为 "other"
type PathLimitTracker struct {
	mu       sync.Mutex
	paths    map[string]struct{}
	maxPaths int
}

func NewPathLimitTracker(maxPaths int) *PathLimitTracker {
	return &PathLimitTracker{paths: make(map[string]struct{}), maxPaths: maxPaths}
}

// TrackPath 返回可用作标签的路径
func (t *PathLimitTracker) TrackPath(path string) string {
	if path == "" {
		return "unknown"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.paths[path]; ok {
		return path
	}
	if len(t.paths) >= t.maxPaths {
		return "other"
	}
	t.paths[path] = struct{}{}
	return path
}

// GetTrackedCount 已登记的路径数
func (t *PathLimitTracker) GetTrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}
