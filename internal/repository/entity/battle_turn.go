package entity

import "github.com/aarondl/sqlboiler/v4/types"

// BattleTurn 进行中战斗的回合, 不可变
type BattleTurn struct {
	ID       int64  `db:"id" json:"id"`
	BattleID string `db:"battle_id" json:"battle_id"`

	// 战斗内从 0 递增
	Seq int `db:"seq" json:"seq"`

	Events     types.JSON `db:"events" json:"events"`
	Meta       types.JSON `db:"meta" json:"meta"`
	TimeOffset float64    `db:"time_offset" json:"time_offset"`
}

// TableName 返回表名
func (BattleTurn) TableName() string {
	return "battle_turns"
}
