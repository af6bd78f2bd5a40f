package entity

import "github.com/aarondl/sqlboiler/v4/types"

// Summary 跨战斗累计汇总, 按报告类型唯一
type Summary struct {
	Type      string     `db:"type" json:"type"`
	Data      types.JSON `db:"data" json:"data"`
	State     types.JSON `db:"state" json:"state"`
	UpdatedAt int64      `db:"updated_at" json:"updated_at"`
}

// TableName 返回表名
func (Summary) TableName() string {
	return "summaries"
}
