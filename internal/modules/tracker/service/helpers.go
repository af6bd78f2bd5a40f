package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aarondl/sqlboiler/v4/types"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/repository/entity"
)

// metaType 回合元数据报告
const metaType = reporter.TypeMeta

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// archivedTurn 数据库回合行 -> 归档视图
func archivedTurn(row *entity.BattleTurn) (battle.ArchivedTurn, error) {
	turn := battle.ArchivedTurn{Time: row.TimeOffset, Events: []battle.Event{}}
	if len(row.Events) > 0 {
		if err := json.Unmarshal(row.Events, &turn.Events); err != nil {
			return battle.ArchivedTurn{}, fmt.Errorf("解析回合事件失败: %w", err)
		}
	}
	if len(row.Meta) > 0 {
		var meta map[string]any
		if err := json.Unmarshal(row.Meta, &meta); err != nil {
			return battle.ArchivedTurn{}, fmt.Errorf("解析回合元数据失败: %w", err)
		}
		if len(meta) > 0 {
			turn.Meta = meta
		}
	}
	return turn, nil
}

func marshalJSON(v any, fallback string) (types.JSON, error) {
	if v == nil {
		return types.JSON(fallback), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return types.JSON(fallback), nil
	}
	return raw, nil
}

// appendRejects 追加无法解析的行
func appendRejects(existing types.JSON, rejects []string) (types.JSON, error) {
	var all []string
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &all); err != nil {
			return nil, fmt.Errorf("解析未识别行列表失败: %w", err)
		}
	}
	all = append(all, rejects...)
	return marshalJSON(all, "[]")
}
