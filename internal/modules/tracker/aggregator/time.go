package aggregator

import (
	"fmt"

	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/repository/entity"
)

// TimeRollup 累加回合数与耗时
type TimeRollup struct {
	rollupBase
	data reporter.TimeData
}

func newTimeRollup(summary *entity.Summary) (Rollup, error) {
	r := &TimeRollup{rollupBase: rollupBase{reportType: reporter.TypeTime}}
	if err := decodeInto(summary.Data, &r.data); err != nil {
		return nil, err
	}
	if err := decodeInto(summary.State, &r.state); err != nil {
		return nil, err
	}
	return r, nil
}

// Data 累计值
func (r *TimeRollup) Data() reporter.TimeData { return r.data }

func (r *TimeRollup) Consume(report *entity.BattleReport) error {
	if err := r.admit(report); err != nil {
		return err
	}
	var d reporter.TimeData
	if err := decodeInto(report.Data, &d); err != nil {
		return fmt.Errorf("解析耗时报告失败: %w", err)
	}
	r.data.Count += d.Count
	r.data.Total += d.Total
	r.data.TotalCapped += d.TotalCapped
	r.commit(report)
	return nil
}

func (r *TimeRollup) Encode(summary *entity.Summary) error {
	return r.encode(summary, r.data)
}
