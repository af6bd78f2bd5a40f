package entity

import (
	"github.com/aarondl/null/v8"
	"github.com/aarondl/sqlboiler/v4/types"
)

// Battle 战斗实体
type Battle struct {
	// 主键: 32 位十六进制 uuid
	ID string `db:"id" json:"id"`

	Active    bool    `db:"active" json:"active"`
	StartTime float64 `db:"start_time" json:"start_time"`

	// 退役后的回合归档 (zlib 压缩 JSON)
	Archive []byte `db:"archive" json:"-"`

	Unparsed types.JSON `db:"unparsed" json:"unparsed"`
	Meta     types.JSON `db:"meta" json:"meta"`

	// 时间戳 (unix 毫秒)
	CreatedAt int64      `db:"created_at" json:"created_at"`
	RetiredAt null.Int64 `db:"retired_at" json:"retired_at,omitempty"`
}

// TableName 返回表名
func (Battle) TableName() string {
	return "battles"
}

// IsRetired 是否已退役
func (b *Battle) IsRetired() bool {
	return !b.Active && b.RetiredAt.Valid
}
