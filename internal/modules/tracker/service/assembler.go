// Package service 战斗日志摄取、会话切换与查询
package service

import (
	"context"
	"fmt"
	"sort"

	"battle-tracker/internal/domain/battle"
)

// LineParser 批量行解析, 输出与输入一一对应, nil 表示无法解析
type LineParser interface {
	ParseBatch(ctx context.Context, lines []string) ([]*battle.Event, error)
}

// Assembler 把原始提交重组为回合
type Assembler struct {
	parser LineParser
}

// NewAssembler 创建 Assembler
func NewAssembler(parser LineParser) *Assembler {
	return &Assembler{parser: parser}
}

// Assemble 按时间戳稳定排序后整批解析, 再按原始提交顺序输出回合
func (a *Assembler) Assemble(ctx context.Context, subs []battle.RawSubmission) ([]battle.Turn, []string, error) {
	order := make([]int, len(subs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return subs[order[i]].Time < subs[order[j]].Time
	})

	// offsets[i] 为第 i 个提交在展开后行列表中的起点
	offsets := make([]int, len(subs))
	lines := make([]string, 0, len(subs))
	for _, idx := range order {
		offsets[idx] = len(lines)
		lines = append(lines, subs[idx].Lines...)
	}

	parsed, err := a.parser.ParseBatch(ctx, lines)
	if err != nil {
		return nil, nil, err
	}
	if len(parsed) != len(lines) {
		return nil, nil, fmt.Errorf("解析结果数量不匹配: %d != %d", len(parsed), len(lines))
	}

	turns := make([]battle.Turn, 0, len(subs))
	var rejects []string
	for i, sub := range subs {
		turn := battle.Turn{Time: sub.Time, Events: make([]battle.Event, 0, len(sub.Lines))}
		for j, line := range sub.Lines {
			ev := parsed[offsets[i]+j]
			if ev == nil {
				rejects = append(rejects, line)
				continue
			}
			turn.Events = append(turn.Events, *ev)
		}
		turns = append(turns, turn)
	}
	return turns, rejects, nil
}
