// Package aggregator 将已结算的战斗报告合并为跨战斗汇总
package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"

	"battle-tracker/internal/repository/entity"
)

var (
	// ErrAlreadyConsumed 同一场战斗的报告被重复合并
	ErrAlreadyConsumed = errors.New("report already consumed by rollup")
	// ErrNotFinalized 报告尚未结算
	ErrNotFinalized = errors.New("report is not finalized")
	// ErrTypeMismatch 报告类型与汇总类型不一致
	ErrTypeMismatch = errors.New("report type does not match rollup")
)

// RollupState 汇总私有状态
type RollupState struct {
	BattleCount  int64  `json:"battle_count"`
	LastBattleID string `json:"last_battle_id,omitempty"`
}

// Rollup 单个报告类型的跨战斗汇总
type Rollup interface {
	Type() string
	State() RollupState
	Consume(report *entity.BattleReport) error
	Encode(summary *entity.Summary) error
}

type rollupBase struct {
	reportType string
	state      RollupState
}

func (b *rollupBase) Type() string { return b.reportType }

func (b *rollupBase) State() RollupState { return b.state }

// admit 校验报告可被合并
func (b *rollupBase) admit(report *entity.BattleReport) error {
	if report.Type != b.reportType {
		return fmt.Errorf("%w: %s != %s", ErrTypeMismatch, report.Type, b.reportType)
	}
	if !report.Finalized {
		return ErrNotFinalized
	}
	if b.state.LastBattleID == report.BattleID {
		return ErrAlreadyConsumed
	}
	return nil
}

func (b *rollupBase) commit(report *entity.BattleReport) {
	b.state.BattleCount++
	b.state.LastBattleID = report.BattleID
}

func (b *rollupBase) encode(summary *entity.Summary, data any) error {
	rawData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化汇总数据失败: %w", err)
	}
	rawState, err := json.Marshal(b.state)
	if err != nil {
		return fmt.Errorf("序列化汇总状态失败: %w", err)
	}
	summary.Type = b.reportType
	summary.Data = rawData
	summary.State = rawState
	return nil
}

func decodeInto(raw []byte, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
