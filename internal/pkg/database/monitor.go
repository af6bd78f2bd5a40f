package database

import (
	"context"
	"time"

	"battle-tracker/internal/pkg/metrics"
)

// StartPoolMonitor 定期上报连接池统计, ctx 取消后退出
func (d *DB) StartPoolMonitor(ctx context.Context, service string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastWaitCount int64
	var lastWaitDuration time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := d.Stats()
			// 计数器只累加增量
			metrics.DefaultResourceMetrics.RecordDBPoolStats(
				service,
				string(d.Dialect),
				stats.OpenConnections,
				stats.InUse,
				stats.Idle,
				d.maxOpenConns,
				stats.WaitCount-lastWaitCount,
				stats.WaitDuration-lastWaitDuration,
			)
			lastWaitCount = stats.WaitCount
			lastWaitDuration = stats.WaitDuration
		}
	}
}
