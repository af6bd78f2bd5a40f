package nats

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// HealthChecker 定期采样事件发布连接的状态, 供 /health 使用
type HealthChecker struct {
	conn     *nats.Conn
	interval time.Duration

	mu         sync.RWMutex
	status     string
	reconnects uint64
	changedAt  time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Snapshot 最近一次采样
type Snapshot struct {
	Status     string    `json:"status"`
	Reconnects uint64    `json:"reconnects"`
	ChangedAt  time.Time `json:"changed_at"`
}

// NewHealthChecker conn 为 nil 时状态恒为 disabled
func NewHealthChecker(conn *nats.Conn, checkInterval time.Duration) *HealthChecker {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Second
	}
	hc := &HealthChecker{
		conn:     conn,
		interval: checkInterval,
		stopCh:   make(chan struct{}),
	}
	hc.sample()
	return hc
}

// Start 阻塞直到 ctx 取消或 Stop
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hc.stopCh:
			return
		case <-ticker.C:
			hc.sample()
		}
	}
}

// Stop 可重复调用
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
}

// IsHealthy 仅 connected 视为健康
func (hc *HealthChecker) IsHealthy() bool {
	return hc.Status() == "connected"
}

// Status connected / reconnecting / closed / disabled 等
func (hc *HealthChecker) Status() string {
	if hc == nil {
		return "disabled"
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.status
}

func (hc *HealthChecker) Snapshot() Snapshot {
	if hc == nil {
		return Snapshot{Status: "disabled"}
	}
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return Snapshot{Status: hc.status, Reconnects: hc.reconnects, ChangedAt: hc.changedAt}
}

func (hc *HealthChecker) sample() {
	status := "disabled"
	var reconnects uint64
	if hc.conn != nil {
		status = strings.ToLower(hc.conn.Status().String())
		reconnects = hc.conn.Stats().Reconnects
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()
	if status != hc.status {
		hc.status = status
		hc.changedAt = time.Now()
	}
	hc.reconnects = reconnects
}
