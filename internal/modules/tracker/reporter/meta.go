package reporter

import (
	"encoding/json"
	"fmt"

	"battle-tracker/internal/domain/battle"
)

// TypeMeta 回合元数据报告, 不参与结算
const TypeMeta = "meta"

// Meta 回合元数据; 指针字段用于区分缺失
type Meta struct {
	BattleType *string `json:"battle_type,omitempty"`
	LastRound  *int64  `json:"last_round,omitempty"`
	MaxRounds  *int64  `json:"max_rounds,omitempty"`
}

// NewMeta 由 ROUND_START 生成元数据
func NewMeta(rs battle.RoundStart) Meta {
	bt, cur, maxRounds := rs.BattleType, rs.Current, rs.Max
	return Meta{BattleType: &bt, LastRound: &cur, MaxRounds: &maxRounds}
}

// Complete 三个字段是否齐全
func (m Meta) Complete() bool {
	return m.BattleType != nil && m.LastRound != nil && m.MaxRounds != nil
}

// SetLastRound 更新最近回合
func (m *Meta) SetLastRound(round int64) {
	m.LastRound = &round
}

// DecodeMeta 解析存储的元数据
func DecodeMeta(raw []byte) (Meta, error) {
	var m Meta
	if err := decodeInto(raw, &m); err != nil {
		return Meta{}, fmt.Errorf("解析回合元数据失败: %w", err)
	}
	return m, nil
}

// Encode 序列化元数据
func (m Meta) Encode() ([]byte, error) {
	return json.Marshal(m)
}
