package battle

import "math"

// RawSubmission 客户端上报的一次原始提交
type RawSubmission struct {
	Lines []string `json:"lines" validate:"required,dive,log_line"`
	Time  float64  `json:"time" validate:"gte=0"`
}

// Turn 由一次提交组装出的回合, Time 为绝对时间戳
type Turn struct {
	Events []Event        `json:"events"`
	Time   float64        `json:"time"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ArchivedTurn 归档/查询视图中的回合, Time 为相对战斗开始的偏移
type ArchivedTurn struct {
	Events []Event        `json:"events"`
	Time   float64        `json:"time"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// RoundStart ROUND_START 事件携带的回合信息
type RoundStart struct {
	BattleType string
	Current    int64
	Max        int64
}

// FirstRoundStart 返回批次中第一个 ROUND_START 事件
func FirstRoundStart(turns []Turn) (Event, bool) {
	for _, turn := range turns {
		for _, ev := range turn.Events {
			if ev.Type == EventRoundStart {
				return ev, true
			}
		}
	}
	return Event{}, false
}

// ParseRoundStart 提取回合信息; 字段缺失或格式不对时返回 false, 视为无边界信号
func ParseRoundStart(ev Event) (RoundStart, bool) {
	if ev.Type != EventRoundStart {
		return RoundStart{}, false
	}
	battleType, ok := ev.Fields["battle_type"].(string)
	if !ok || battleType == "" {
		return RoundStart{}, false
	}
	current, ok := wholeNumber(ev, "current")
	if !ok {
		return RoundStart{}, false
	}
	maxRounds, ok := wholeNumber(ev, "max")
	if !ok {
		return RoundStart{}, false
	}
	return RoundStart{BattleType: battleType, Current: current, Max: maxRounds}, true
}

func wholeNumber(ev Event, key string) (int64, bool) {
	f, ok := ev.Number(key)
	if !ok || f < 0 || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
