package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResourceMetrics 存储依赖指标: 数据库连接池与报告缓存所用的 Redis
type ResourceMetrics struct {
	DBPool         *prometheus.GaugeVec   // state: open/in_use/idle/max
	DBWaits        *prometheus.CounterVec // 等待连接次数
	DBWaitDuration *prometheus.CounterVec

	RedisOps        *prometheus.CounterVec
	RedisOpDuration *prometheus.HistogramVec
	RedisPool       *prometheus.GaugeVec
	RedisErrors     *prometheus.CounterVec
}

// DefaultResourceMetrics 默认的资源指标实例
var DefaultResourceMetrics *ResourceMetrics

// RedisOperationBuckets 缓存读写通常在毫秒级, 单位秒
var RedisOperationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

func init() {
	DefaultResourceMetrics = NewResourceMetrics("tracker")
}

// NewResourceMetrics 使用全局注册表
func NewResourceMetrics(namespace string) *ResourceMetrics {
	return NewResourceMetricsWithRegistry(namespace, GetRegisterer())
}

// NewResourceMetricsWithRegistry 测试时传入独立注册表
func NewResourceMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *ResourceMetrics {
	factory := promauto.With(registerer)

	return &ResourceMetrics{
		DBPool: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Database pool connections by state (open/in_use/idle/max)",
		}, []string{"service", "dialect", "state"}),
		DBWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_waits_total",
			Help:      "Connections the ingest transaction or queries had to wait for",
		}, []string{"service", "dialect"}),
		DBWaitDuration: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_wait_seconds_total",
			Help:      "Time spent waiting for a pooled connection",
		}, []string{"service", "dialect"}),

		RedisOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report_cache_redis",
			Name:      "operations_total",
			Help:      "Report cache Redis operations by command and result",
		}, []string{"operation", "result", "service"}),
		RedisOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "report_cache_redis",
			Name:      "operation_duration_seconds",
			Help:      "Report cache Redis operation latency",
			Buckets:   RedisOperationBuckets,
		}, []string{"operation", "service"}),
		RedisPool: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report_cache_redis",
			Name:      "pool_connections",
			Help:      "Report cache Redis pool connections by state (total/idle/stale/active)",
		}, []string{"state", "service"}),
		RedisErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report_cache_redis",
			Name:      "errors_total",
			Help:      "Report cache Redis errors by kind (nil/timeout/operation_error)",
		}, []string{"error_type", "service"}),
	}
}

// RecordDBPoolStats waitCount 与 waitDuration 传增量
func (m *ResourceMetrics) RecordDBPoolStats(
	service string,
	dialect string,
	openConnections, inUse, idle int,
	maxOpen int,
	waitCount int64,
	waitDuration time.Duration,
) {
	service = normalizeServiceName(service)
	for state, v := range map[string]int{"open": openConnections, "in_use": inUse, "idle": idle, "max": maxOpen} {
		m.DBPool.WithLabelValues(service, dialect, state).Set(float64(v))
	}
	if waitCount > 0 {
		m.DBWaits.WithLabelValues(service, dialect).Add(float64(waitCount))
	}
	if waitDuration > 0 {
		m.DBWaitDuration.WithLabelValues(service, dialect).Add(waitDuration.Seconds())
	}
}

// RecordRedisOperation operation 为命令名 GET/SET/DEL
func (m *ResourceMetrics) RecordRedisOperation(operation string, success bool, duration time.Duration, service string) {
	service = normalizeServiceName(service)
	result := "success"
	if !success {
		result = "error"
	}
	m.RedisOps.WithLabelValues(operation, result, service).Inc()
	m.RedisOpDuration.WithLabelValues(operation, service).Observe(duration.Seconds())
}

// RecordRedisError 缓存未命中也记为 "nil"
func (m *ResourceMetrics) RecordRedisError(errorType, service string) {
	m.RedisErrors.WithLabelValues(errorType, normalizeServiceName(service)).Inc()
}

// RecordRedisPoolStats active = total - idle
func (m *ResourceMetrics) RecordRedisPoolStats(totalConns, idleConns, staleConns int, service string) {
	service = normalizeServiceName(service)
	m.RedisPool.WithLabelValues("total", service).Set(float64(totalConns))
	m.RedisPool.WithLabelValues("idle", service).Set(float64(idleConns))
	m.RedisPool.WithLabelValues("stale", service).Set(float64(staleConns))
	m.RedisPool.WithLabelValues("active", service).Set(float64(totalConns - idleConns))
}
