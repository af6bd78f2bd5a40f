package battle

import (
	"encoding/json"
	"fmt"
)

// 事件类型
const (
	EventRoundStart  = "ROUND_START"
	EventDrop        = "DROP"
	EventGem         = "GEM"
	EventCredits     = "CREDITS"
	EventProficiency = "PROFICIENCY"
	EventExperience  = "EXPERIENCE"
	EventAutoSalvage = "AUTO_SALVAGE"
	EventAutoSell    = "AUTO_SELL"
	EventTokenBonus  = "TOKEN_BONUS"
	EventEventItem   = "EVENT_ITEM"
	EventClearBonus  = "CLEAR_BONUS"
)

const eventTypeKey = "event_type"

// Event 解析后的单条战斗事件
// 序列化为扁平结构: {"event_type": "...", "<field>": string | number}
type Event struct {
	Type   string
	Fields map[string]any
}

// NewEvent 创建事件
func NewEvent(eventType string, fields map[string]any) Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return Event{Type: eventType, Fields: fields}
}

// String 读取字符串字段, 数字字段按 %v 格式化
func (e Event) String(key string) (string, bool) {
	v, ok := e.Fields[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return fmt.Sprintf("%v", val), true
	default:
		return "", false
	}
}

// Number 读取数字字段
func (e Event) Number(key string) (float64, bool) {
	v, ok := e.Fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// MarshalJSON 扁平化输出
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat[eventTypeKey] = e.Type
	return json.Marshal(flat)
}

// UnmarshalJSON 从扁平结构还原
func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	eventType, _ := flat[eventTypeKey].(string)
	if eventType == "" {
		return fmt.Errorf("事件缺少 %s 字段", eventTypeKey)
	}
	delete(flat, eventTypeKey)
	e.Type = eventType
	e.Fields = flat
	return nil
}
