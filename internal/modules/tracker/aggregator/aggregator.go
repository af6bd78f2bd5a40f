package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

type rollupFactory func(summary *entity.Summary) (Rollup, error)

// rollups 支持汇总的报告类型
var rollups = map[string]rollupFactory{
	reporter.TypeTotalGains: newTotalGainsRollup,
	reporter.TypeTime:       newTimeRollup,
}

// Supports 报告类型是否有对应的汇总
func Supports(reportType string) bool {
	_, ok := rollups[reportType]
	return ok
}

// NewRollup 由存储的汇总还原, summary 为空时从零开始
func NewRollup(reportType string, summary *entity.Summary) (Rollup, error) {
	factory, ok := rollups[reportType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", reporter.ErrUnknownType, reportType)
	}
	if summary == nil {
		summary = &entity.Summary{Type: reportType}
	}
	r, err := factory(summary)
	if err != nil {
		return nil, fmt.Errorf("还原汇总 %s 失败: %w", reportType, err)
	}
	return r, nil
}

// Aggregator 在退役事务内把已结算报告并入汇总
type Aggregator struct {
	summaries interfaces.SummaryRepository
	metrics   *metrics.TrackerMetrics
	logger    log.Logger
	service   string
}

// New 创建 Aggregator
func New(summaries interfaces.SummaryRepository, m *metrics.TrackerMetrics, logger log.Logger) *Aggregator {
	if m == nil {
		m = metrics.DefaultTrackerMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Aggregator{
		summaries: summaries,
		metrics:   m,
		logger:    logger.With("component", "aggregator"),
		service:   metrics.GetServiceName(),
	}
}

// Apply 合并一份已结算报告; 返回是否实际写入汇总
func (a *Aggregator) Apply(ctx context.Context, execer boil.ContextExecutor, report *entity.BattleReport) (bool, error) {
	if !Supports(report.Type) {
		return false, nil
	}

	summary, err := a.summaries.Get(ctx, execer, report.Type)
	if errors.Is(err, interfaces.ErrSummaryNotFound) {
		summary = &entity.Summary{Type: report.Type}
	} else if err != nil {
		return false, err
	}

	r, err := NewRollup(report.Type, summary)
	if err != nil {
		return false, err
	}

	if err := r.Consume(report); err != nil {
		if errors.Is(err, ErrAlreadyConsumed) {
			a.logger.WarnContext(ctx, "报告已并入汇总, 跳过",
				log.String("battle_id", report.BattleID),
				log.String("type", report.Type),
			)
			a.metrics.RecordRollupSkipped(report.Type, a.service)
			return false, nil
		}
		return false, fmt.Errorf("合并报告 %s/%s 失败: %w", report.BattleID, report.Type, err)
	}

	if err := r.Encode(summary); err != nil {
		return false, err
	}
	if err := a.summaries.Upsert(ctx, execer, summary); err != nil {
		return false, err
	}
	return true, nil
}

// List 读取全部汇总
func (a *Aggregator) List(ctx context.Context, execer boil.ContextExecutor) ([]*entity.Summary, error) {
	return a.summaries.List(ctx, execer)
}
