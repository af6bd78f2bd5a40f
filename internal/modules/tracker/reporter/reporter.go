// Package reporter 维护单场战斗的增量统计报告
package reporter

import (
	"encoding/json"
	"errors"
	"fmt"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/repository/entity"
)

// ErrUnknownType 报告类型未注册
var ErrUnknownType = errors.New("unknown reporter type")

// Reporter 增量报告
type Reporter interface {
	Type() string
	BattleID() string

	// Consume 消费一个回合; battleID 与报告所属战斗不一致时 panic
	Consume(battleID string, turn battle.Turn)

	// Finalize 清空 state 并标记结算, 仅首次调用返回 true
	Finalize() bool
	Finalized() bool

	// Encode 写回实体的 data/state/finalized
	Encode(report *entity.BattleReport) error
}

type base struct {
	battleID  string
	finalized bool
}

func (b *base) BattleID() string { return b.battleID }

func (b *base) Finalized() bool { return b.finalized }

func (b *base) finalize() bool {
	if b.finalized {
		return false
	}
	b.finalized = true
	return true
}

func (b *base) mustBelong(reporterType, battleID string) {
	if battleID != b.battleID {
		panic(fmt.Sprintf("reporter %s bound to battle %s received turn of battle %s", reporterType, b.battleID, battleID))
	}
}

var emptyState = []byte("{}")

func encode(report *entity.BattleReport, data any, state any, finalized bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("序列化报告数据失败: %w", err)
	}
	report.Data = raw

	if finalized || state == nil {
		report.State = append([]byte(nil), emptyState...)
	} else {
		rawState, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("序列化报告状态失败: %w", err)
		}
		report.State = rawState
	}
	report.Finalized = finalized
	return nil
}

// decodeInto 空 JSON 视为零值
func decodeInto(raw []byte, dest any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
