package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

var (
	ncMu sync.RWMutex
	nc   *nats.Conn
)

// 事件主题
const (
	SubjectTurn          = "tracker.turn"
	SubjectBattleStarted = "tracker.battle.started"
	SubjectBattleRetired = "tracker.battle.retired"
)

// SetNatsConn 设置全局 NATS 连接（由 main 提供）
func SetNatsConn(conn *nats.Conn) {
	ncMu.Lock()
	defer ncMu.Unlock()
	nc = conn
}

// Conn 返回当前连接, 可能为 nil
func Conn() *nats.Conn {
	ncMu.RLock()
	defer ncMu.RUnlock()
	return nc
}

// Publish 以 JSON 发布事件, 没有连接时静默降级
func Publish(ctx context.Context, subject string, payload interface{}) error {
	conn := Conn()
	if conn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event failed: %w", subject, err)
	}
	return conn.Publish(subject, data)
}

// TurnEvent 新回合广播
type TurnEvent struct {
	Index      int64          `json:"index"`
	BattleID   string         `json:"battle_id"`
	Seq        int            `json:"seq"`
	TimeOffset float64        `json:"time_offset"`
	Events     []any          `json:"events"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// BattleEvent 战斗开始/退役
type BattleEvent struct {
	BattleID  string  `json:"battle_id"`
	StartTime float64 `json:"start_time"`
	Reason    string  `json:"reason,omitempty"`
}

// Publisher 基于全局连接的发布器, 供业务层依赖注入
type Publisher struct{}

// NewPublisher 创建发布器
func NewPublisher() *Publisher {
	return &Publisher{}
}

func (Publisher) PublishTurn(ctx context.Context, evt TurnEvent) error {
	return Publish(ctx, SubjectTurn, evt)
}

func (Publisher) PublishBattleStarted(ctx context.Context, evt BattleEvent) error {
	return Publish(ctx, SubjectBattleStarted, evt)
}

func (Publisher) PublishBattleRetired(ctx context.Context, evt BattleEvent) error {
	return Publish(ctx, SubjectBattleRetired, evt)
}
