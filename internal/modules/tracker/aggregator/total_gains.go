package aggregator

import (
	"fmt"

	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/repository/entity"
)

// TotalGainsRollup 逐项累加各场战斗的战利品
type TotalGainsRollup struct {
	rollupBase
	data map[string]float64
}

func newTotalGainsRollup(summary *entity.Summary) (Rollup, error) {
	r := &TotalGainsRollup{
		rollupBase: rollupBase{reportType: reporter.TypeTotalGains},
		data:       map[string]float64{},
	}
	if err := decodeInto(summary.Data, &r.data); err != nil {
		return nil, err
	}
	if err := decodeInto(summary.State, &r.state); err != nil {
		return nil, err
	}
	if r.data == nil {
		r.data = map[string]float64{}
	}
	return r, nil
}

// Data 累计值
func (r *TotalGainsRollup) Data() map[string]float64 { return r.data }

func (r *TotalGainsRollup) Consume(report *entity.BattleReport) error {
	if err := r.admit(report); err != nil {
		return err
	}
	var gains map[string]float64
	if err := decodeInto(report.Data, &gains); err != nil {
		return fmt.Errorf("解析战利品报告失败: %w", err)
	}
	for k, v := range gains {
		r.data[k] += v
	}
	r.commit(report)
	return nil
}

func (r *TotalGainsRollup) Encode(summary *entity.Summary) error {
	return r.encode(summary, r.data)
}
