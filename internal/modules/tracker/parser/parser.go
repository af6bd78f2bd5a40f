// Package parser 将战斗日志文本行解析为结构化事件
package parser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/sync/errgroup"

	"battle-tracker/internal/domain/battle"
)

const (
	defaultChunkSize    = 256
	defaultMatchTimeout = 50 * time.Millisecond
)

type pattern struct {
	name    string
	re      *regexp2.Regexp
	groups  []string
	numeric map[string]bool
}

// Parser 行解析器, 可并发使用
type Parser struct {
	patterns  []*pattern
	workers   int
	chunkSize int
}

// New 编译全部模式; workers <= 0 时按单协程解析
func New(workers int) (*Parser, error) {
	defs := patternTable()
	patterns := make([]*pattern, 0, len(defs))
	for _, def := range defs {
		re, err := regexp2.Compile(def.expr, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("编译解析模式 %s 失败: %w", def.name, err)
		}
		re.MatchTimeout = defaultMatchTimeout

		p := &pattern{name: def.name, re: re, numeric: make(map[string]bool, len(def.numeric))}
		for _, n := range def.numeric {
			p.numeric[n] = true
		}
		for _, g := range re.GetGroupNames() {
			if _, err := strconv.Atoi(g); err == nil {
				continue
			}
			p.groups = append(p.groups, g)
		}
		patterns = append(patterns, p)
	}

	if workers <= 0 {
		workers = 1
	}
	return &Parser{patterns: patterns, workers: workers, chunkSize: defaultChunkSize}, nil
}

// MustNew 同 New, 编译失败时 panic
func MustNew(workers int) *Parser {
	p, err := New(workers)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse 解析单行; 无法识别时返回 false
func (p *Parser) Parse(line string) (battle.Event, bool) {
	for _, patt := range p.patterns {
		m, err := patt.re.FindStringMatch(line)
		if err != nil || m == nil {
			// 匹配超时按未命中处理
			continue
		}

		fields := make(map[string]any, len(patt.groups))
		for _, name := range patt.groups {
			g := m.GroupByName(name)
			if g == nil || len(g.Captures) == 0 {
				continue
			}
			raw := g.String()
			if patt.numeric[name] {
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					continue
				}
				fields[name] = v
				continue
			}
			fields[name] = raw
		}
		return battle.NewEvent(patt.name, fields), true
	}
	return battle.Event{}, false
}

// ParseBatch 按行解析, 输出与输入一一对应, nil 表示无法解析
func (p *Parser) ParseBatch(ctx context.Context, lines []string) ([]*battle.Event, error) {
	results := make([]*battle.Event, len(lines))
	if len(lines) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for start := 0; start < len(lines); start += p.chunkSize {
		start := start
		end := min(start+p.chunkSize, len(lines))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if ev, ok := p.Parse(lines[i]); ok {
					results[i] = &ev
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("批量解析日志失败: %w", err)
	}
	return results, nil
}

// PatternNames 按匹配顺序返回事件类型
func (p *Parser) PatternNames() []string {
	names := make([]string, len(p.patterns))
	for i, patt := range p.patterns {
		names[i] = patt.name
	}
	return names
}
