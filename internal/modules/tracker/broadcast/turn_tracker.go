// Package broadcast 保留最近若干回合并唤醒等待中的跟随者
package broadcast

import (
	"context"
	"errors"
	"sync"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/pkg/metrics"
)

// DefaultWindow 默认保留的回合数
const DefaultWindow = 100

var (
	// ErrInvalidIndex 负数序号
	ErrInvalidIndex = errors.New("turn index must be non-negative")
	// ErrTurnEvicted 回合已移出历史窗口
	ErrTurnEvicted = errors.New("turn evicted from history window")
)

// TrackedTurn 带全局序号的回合
type TrackedTurn struct {
	Index    int64               `json:"index"`
	BattleID string              `json:"battle_id"`
	Seq      int                 `json:"seq"`
	Turn     battle.ArchivedTurn `json:"turn"`
}

// TurnTracker 固定窗口的回合环形缓冲, 单写多读
type TurnTracker struct {
	mu      sync.Mutex
	window  int64
	ring    []TrackedTurn
	next    int64
	changed chan struct{}

	metrics *metrics.TrackerMetrics
	service string
}

// NewTurnTracker window <= 0 时使用 DefaultWindow
func NewTurnTracker(window int, m *metrics.TrackerMetrics) *TurnTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	if m == nil {
		m = metrics.DefaultTrackerMetrics
	}
	return &TurnTracker{
		window:  int64(window),
		ring:    make([]TrackedTurn, window),
		changed: make(chan struct{}),
		metrics: m,
		service: metrics.GetServiceName(),
	}
}

// Window 窗口大小
func (t *TurnTracker) Window() int {
	return int(t.window)
}

// Insert 追加回合并唤醒全部等待者, 返回分配的序号
func (t *TurnTracker) Insert(battleID string, seq int, turn battle.ArchivedTurn) int64 {
	t.mu.Lock()
	idx := t.next
	t.ring[idx%t.window] = TrackedTurn{Index: idx, BattleID: battleID, Seq: seq, Turn: turn}
	t.next++

	// 关闭旧通道即广播, 每个等待者醒来后重新检查条件
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
	return idx
}

// NextIndex 下一个将要分配的序号
func (t *TurnTracker) NextIndex() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

// Oldest 窗口内最早的序号
func (t *TurnTracker) Oldest() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oldestLocked()
}

func (t *TurnTracker) oldestLocked() int64 {
	return max(t.next-t.window, 0)
}

// Get 读取 index 对应的回合; 尚未产生时阻塞直到插入或 ctx 结束
func (t *TurnTracker) Get(ctx context.Context, index int64) (TrackedTurn, error) {
	if index < 0 {
		return TrackedTurn{}, ErrInvalidIndex
	}

	waiting := false
	defer func() {
		if waiting {
			t.metrics.DecFollowersWaiting(t.service)
		}
	}()

	for {
		t.mu.Lock()
		if index < t.oldestLocked() {
			t.mu.Unlock()
			t.metrics.RecordFollowRequest("evicted", t.service)
			return TrackedTurn{}, ErrTurnEvicted
		}
		if index < t.next {
			turn := t.ring[index%t.window]
			t.mu.Unlock()
			if waiting {
				t.metrics.RecordFollowRequest("waited", t.service)
			} else {
				t.metrics.RecordFollowRequest("hit", t.service)
			}
			return turn, nil
		}
		changed := t.changed
		t.mu.Unlock()

		if !waiting {
			waiting = true
			t.metrics.IncFollowersWaiting(t.service)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			t.metrics.RecordFollowRequest("cancelled", t.service)
			return TrackedTurn{}, ctx.Err()
		}
	}
}
