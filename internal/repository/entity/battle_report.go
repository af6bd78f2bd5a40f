package entity

import "github.com/aarondl/sqlboiler/v4/types"

// BattleReport 单场战斗的单类报告, (battle_id, type) 唯一
type BattleReport struct {
	ID       int64  `db:"id" json:"id"`
	BattleID string `db:"battle_id" json:"battle_id"`
	Type     string `db:"type" json:"type"`

	// Data 对外公开的汇总; State 仅战斗进行中有效, 结算后为 {}
	Data  types.JSON `db:"data" json:"data"`
	State types.JSON `db:"state" json:"-"`

	Finalized bool  `db:"finalized" json:"finalized"`
	UpdatedAt int64 `db:"updated_at" json:"updated_at"`
}

// TableName 返回表名
func (BattleReport) TableName() string {
	return "battle_reports"
}
