package reporter

import (
	"fmt"

	"battle-tracker/internal/repository/entity"
)

// Options 报告参数
type Options struct {
	TimeGapCap float64
}

func (o Options) timeGapCap() float64 {
	if o.TimeGapCap <= 0 {
		return DefaultTimeGapCap
	}
	return o.TimeGapCap
}

// Factory 由存储的报告实体还原 Reporter
type Factory func(report *entity.BattleReport, opts Options) (Reporter, error)

type registration struct {
	name    string
	factory Factory
}

// registrations 固定的报告类型, 顺序即消费顺序
var registrations = []registration{
	{TypeTotalGains, newTotalGains},
	{TypeTime, newTime},
}

// Registry 报告类型注册表
type Registry struct {
	opts      Options
	order     []string
	factories map[string]Factory
}

// NewRegistry 创建注册表
func NewRegistry(opts Options) *Registry {
	r := &Registry{opts: opts, factories: make(map[string]Factory, len(registrations))}
	for _, reg := range registrations {
		r.order = append(r.order, reg.name)
		r.factories[reg.name] = reg.factory
	}
	return r
}

// Types 按注册顺序返回全部类型
func (r *Registry) Types() []string {
	return append([]string(nil), r.order...)
}

// Has 类型是否已注册
func (r *Registry) Has(reportType string) bool {
	_, ok := r.factories[reportType]
	return ok
}

// New 为战斗创建一份空报告
func (r *Registry) New(battleID, reportType string) (Reporter, *entity.BattleReport, error) {
	report := &entity.BattleReport{
		BattleID: battleID,
		Type:     reportType,
		Data:     []byte("{}"),
		State:    []byte("{}"),
	}
	rp, err := r.Load(report)
	if err != nil {
		return nil, nil, err
	}
	return rp, report, nil
}

// Load 从实体还原 Reporter
func (r *Registry) Load(report *entity.BattleReport) (Reporter, error) {
	factory, ok := r.factories[report.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, report.Type)
	}
	rp, err := factory(report, r.opts)
	if err != nil {
		return nil, fmt.Errorf("还原报告 %s/%s 失败: %w", report.BattleID, report.Type, err)
	}
	return rp, nil
}
