// File: internal/pkg/metrics/tracker_metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TrackerMetrics 战斗追踪业务指标收集器
type TrackerMetrics struct {
	// 提交批次（按结果: success/error）
	SubmissionsTotal *prometheus.CounterVec

	// 日志行数（按结果: parsed/rejected）
	LinesTotal *prometheus.CounterVec

	// 写入的回合数
	TurnsTotal *prometheus.CounterVec

	// 新战斗数（按切换原因）
	BattlesStartedTotal *prometheus.CounterVec

	// 退役战斗数
	BattlesRetiredTotal *prometheus.CounterVec

	// 报告终结数（按报告类型）
	ReportsFinalizedTotal *prometheus.CounterVec

	// 汇总跳过（重复消费）
	RollupSkippedTotal *prometheus.CounterVec

	// 单批次摄取耗时
	IngestDuration *prometheus.HistogramVec

	// 摄取队列深度
	IngestQueueDepth *prometheus.GaugeVec

	// 当前等待新回合的跟随者
	FollowersWaiting *prometheus.GaugeVec

	// 跟随请求（按结果: hit/waited/evicted/cancelled）
	FollowRequestsTotal *prometheus.CounterVec

	// 报告缓存
	ReportCacheTotal *prometheus.CounterVec
}

// DefaultTrackerMetrics 默认的业务指标实例
var DefaultTrackerMetrics *TrackerMetrics

// IngestBuckets 摄取耗时 buckets（秒）, 单批次通常在几十毫秒内
var IngestBuckets = []float64{
	0.005,
	0.01,
	0.025,
	0.05,
	0.1,
	0.25,
	0.5,
	1,
	2.5,
}

func init() {
	DefaultTrackerMetrics = NewTrackerMetrics("tracker")
}

// NewTrackerMetrics 创建新的业务指标收集器
func NewTrackerMetrics(namespace string) *TrackerMetrics {
	return NewTrackerMetricsWithRegistry(namespace, GetRegisterer())
}

// NewTrackerMetricsWithRegistry 创建新的业务指标收集器（使用自定义注册表）
func NewTrackerMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *TrackerMetrics {
	factory := promauto.With(registerer)

	return &TrackerMetrics{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "submissions_total",
				Help:      "Total number of submission batches by result",
			},
			[]string{"result", "service"},
		),
		LinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "lines_total",
				Help:      "Total number of log lines by parse result (parsed/rejected)",
			},
			[]string{"result", "service"},
		),
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "turns_total",
				Help:      "Total number of turns persisted",
			},
			[]string{"service"},
		),
		BattlesStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "started_total",
				Help:      "Total number of battles started by boundary reason",
			},
			[]string{"reason", "service"},
		),
		BattlesRetiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "battle",
				Name:      "retired_total",
				Help:      "Total number of battles retired",
			},
			[]string{"service"},
		),
		ReportsFinalizedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "finalized_total",
				Help:      "Total number of reports finalized by report type",
			},
			[]string{"type", "service"},
		),
		RollupSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "rollup_skipped_total",
				Help:      "Total number of rollup consumptions skipped because the battle was already consumed",
			},
			[]string{"type", "service"},
		),
		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Submission processing duration in seconds",
				Buckets:   IngestBuckets,
			},
			[]string{"service"},
		),
		IngestQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "queue_depth",
				Help:      "Number of submissions waiting in the ingest queue",
			},
			[]string{"service"},
		),
		FollowersWaiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "follow",
				Name:      "waiting",
				Help:      "Number of followers currently waiting for the next turn",
			},
			[]string{"service"},
		),
		FollowRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "follow",
				Name:      "requests_total",
				Help:      "Total number of turn-follow requests by result",
			},
			[]string{"result", "service"},
		),
		ReportCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "cache_total",
				Help:      "Report cache lookups by result (hit/miss/evicted)",
			},
			[]string{"result", "service"},
		),
	}
}

// RecordSubmission 记录一次提交的处理结果
func (m *TrackerMetrics) RecordSubmission(success bool, parsed, rejected, turns int, duration time.Duration, service string) {
	service = normalizeServiceName(service)
	result := "success"
	if !success {
		result = "error"
	}
	m.SubmissionsTotal.WithLabelValues(result, service).Inc()
	m.IngestDuration.WithLabelValues(service).Observe(duration.Seconds())
	if !success {
		return
	}
	m.LinesTotal.WithLabelValues("parsed", service).Add(float64(parsed))
	m.LinesTotal.WithLabelValues("rejected", service).Add(float64(rejected))
	m.TurnsTotal.WithLabelValues(service).Add(float64(turns))
}

// RecordBattleStarted 记录新战斗
func (m *TrackerMetrics) RecordBattleStarted(reason, service string) {
	m.BattlesStartedTotal.WithLabelValues(reason, normalizeServiceName(service)).Inc()
}

// RecordBattleRetired 记录战斗退役
func (m *TrackerMetrics) RecordBattleRetired(service string) {
	m.BattlesRetiredTotal.WithLabelValues(normalizeServiceName(service)).Inc()
}

// RecordReportFinalized 记录报告终结
func (m *TrackerMetrics) RecordReportFinalized(reportType, service string) {
	m.ReportsFinalizedTotal.WithLabelValues(reportType, normalizeServiceName(service)).Inc()
}

// RecordRollupSkipped 记录被拒绝的重复汇总
func (m *TrackerMetrics) RecordRollupSkipped(reportType, service string) {
	m.RollupSkippedTotal.WithLabelValues(reportType, normalizeServiceName(service)).Inc()
}

// SetQueueDepth 设置摄取队列深度
func (m *TrackerMetrics) SetQueueDepth(depth int, service string) {
	m.IngestQueueDepth.WithLabelValues(normalizeServiceName(service)).Set(float64(depth))
}

// IncFollowersWaiting 跟随者开始等待
func (m *TrackerMetrics) IncFollowersWaiting(service string) {
	m.FollowersWaiting.WithLabelValues(normalizeServiceName(service)).Inc()
}

// DecFollowersWaiting 跟随者结束等待
func (m *TrackerMetrics) DecFollowersWaiting(service string) {
	m.FollowersWaiting.WithLabelValues(normalizeServiceName(service)).Dec()
}

// RecordFollowRequest 记录跟随请求结果
//
// 参数:
//   - result: "hit" / "waited" / "evicted" / "cancelled" / "invalid"
func (m *TrackerMetrics) RecordFollowRequest(result, service string) {
	m.FollowRequestsTotal.WithLabelValues(result, normalizeServiceName(service)).Inc()
}

// RecordReportCache 记录报告缓存命中情况
func (m *TrackerMetrics) RecordReportCache(result, service string) {
	m.ReportCacheTotal.WithLabelValues(result, normalizeServiceName(service)).Inc()
}
