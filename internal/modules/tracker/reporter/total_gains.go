package reporter

import (
	"regexp"
	"strconv"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/repository/entity"
)

// TypeTotalGains 战利品汇总
const TypeTotalGains = "TotalGains"

var dropCountPattern = regexp.MustCompile(`^(\d+)x? (.*)`)

// TotalGains 按名称累计掉落、货币与经验
type TotalGains struct {
	base
	data map[string]float64
}

func newTotalGains(report *entity.BattleReport, _ Options) (Reporter, error) {
	r := &TotalGains{
		base: base{battleID: report.BattleID, finalized: report.Finalized},
		data: map[string]float64{},
	}
	if err := decodeInto(report.Data, &r.data); err != nil {
		return nil, err
	}
	if r.data == nil {
		r.data = map[string]float64{}
	}
	return r, nil
}

func (r *TotalGains) Type() string { return TypeTotalGains }

// Data 当前累计值
func (r *TotalGains) Data() map[string]float64 { return r.data }

func (r *TotalGains) Consume(battleID string, turn battle.Turn) {
	r.mustBelong(TypeTotalGains, battleID)

	for _, ev := range turn.Events {
		switch ev.Type {
		case battle.EventDrop:
			item, _ := ev.String("item")
			name, count := splitDropCount(item)
			r.add(name, count)
		case battle.EventGem:
			r.addField(ev, "type", 1)
		case battle.EventCredits:
			r.addNumber("Credits", ev)
		case battle.EventProficiency:
			if v, ok := ev.Number("value"); ok {
				r.addField(ev, "type", v)
			}
		case battle.EventExperience:
			r.addNumber("Experience", ev)
		case battle.EventAutoSalvage:
			if v, ok := ev.Number("value"); ok {
				r.addField(ev, "item", v)
			}
		case battle.EventAutoSell:
			r.addNumber("Salvage Credits", ev)
		case battle.EventTokenBonus, battle.EventEventItem, battle.EventClearBonus:
			r.addField(ev, "item", 1)
		}
	}
}

func (r *TotalGains) Finalize() bool { return r.finalize() }

func (r *TotalGains) Encode(report *entity.BattleReport) error {
	return encode(report, r.data, nil, r.finalized)
}

func (r *TotalGains) add(name string, quantity float64) {
	r.data[name] += quantity
}

func (r *TotalGains) addNumber(name string, ev battle.Event) {
	if v, ok := ev.Number("value"); ok {
		r.add(name, v)
	}
}

func (r *TotalGains) addField(ev battle.Event, key string, quantity float64) {
	if name, ok := ev.String(key); ok {
		r.add(name, quantity)
	}
}

// splitDropCount "3x Gold Coin" -> ("Gold Coin", 3); 无数量前缀时数量为 1
func splitDropCount(item string) (string, float64) {
	m := dropCountPattern.FindStringSubmatch(item)
	if m == nil {
		return item, 1
	}
	count, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return item, 1
	}
	return m[2], count
}
