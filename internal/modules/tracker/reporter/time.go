package reporter

import (
	"math"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/repository/entity"
)

// TypeTime 回合耗时统计
const TypeTime = "Time"

// DefaultTimeGapCap 单个回合间隔的封顶秒数
const DefaultTimeGapCap = 10.0

// TimeData 公开数据
type TimeData struct {
	Count       int64   `json:"count"`
	Total       float64 `json:"total"`
	TotalCapped float64 `json:"total_capped"`
}

// TimeState 私有状态
type TimeState struct {
	LastTurnTime *float64 `json:"last_turn_time,omitempty"`
}

// Time 统计回合数与回合间耗时, 封顶值避免挂机间隔拉偏节奏
type Time struct {
	base
	gapCap float64
	data   TimeData
	state  TimeState
}

func newTime(report *entity.BattleReport, opts Options) (Reporter, error) {
	r := &Time{
		base:   base{battleID: report.BattleID, finalized: report.Finalized},
		gapCap: opts.timeGapCap(),
	}
	if err := decodeInto(report.Data, &r.data); err != nil {
		return nil, err
	}
	if !report.Finalized {
		if err := decodeInto(report.State, &r.state); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Time) Type() string { return TypeTime }

// Data 当前统计
func (r *Time) Data() TimeData { return r.data }

// State 当前私有状态
func (r *Time) State() TimeState { return r.state }

func (r *Time) Consume(battleID string, turn battle.Turn) {
	r.mustBelong(TypeTime, battleID)

	r.data.Count++
	if r.state.LastTurnTime != nil {
		elapsed := turn.Time - *r.state.LastTurnTime
		r.data.Total += elapsed
		r.data.TotalCapped += math.Min(elapsed, r.gapCap)
	}

	t := turn.Time
	r.state.LastTurnTime = &t
}

func (r *Time) Finalize() bool {
	if !r.finalize() {
		return false
	}
	r.state = TimeState{}
	return true
}

func (r *Time) Encode(report *entity.BattleReport) error {
	return encode(report, r.data, r.state, r.finalized)
}
