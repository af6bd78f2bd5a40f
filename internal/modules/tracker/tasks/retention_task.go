package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/repository/interfaces"
)

const retentionBatchSize = 100

// Purger 删除单个战斗
type Purger interface {
	Purge(ctx context.Context, battleID string, removeRaw bool) (bool, error)
}

// RetentionTask 定时删除过期的已退役战斗
type RetentionTask struct {
	battles  interfaces.BattleRepository
	purger   Purger
	days     int
	schedule string
	logger   log.Logger
	cron     *cron.Cron
	now      func() time.Time
}

// NewRetentionTask days <= 0 时 Start 不做任何事
func NewRetentionTask(battles interfaces.BattleRepository, purger Purger, days int, schedule string, logger log.Logger) *RetentionTask {
	if schedule == "" {
		schedule = "0 30 3 * * *"
	}
	return &RetentionTask{
		battles:  battles,
		purger:   purger,
		days:     days,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start 启动定时任务
func (t *RetentionTask) Start() {
	if t.days <= 0 {
		t.logger.Info("【定时任务】战斗保留期未配置, 跳过清理任务")
		return
	}

	// Cron 表达式: 秒 分 时 日 月 周
	t.cron = cron.New(cron.WithSeconds())
	_, err := t.cron.AddFunc(t.schedule, func() {
		t.logger.Info("【定时任务】开始清理过期战斗")
		n, err := t.RunOnce(context.Background())
		if err != nil {
			t.logger.Error("【定时任务】清理过期战斗失败", err, "deleted_count", n)
			return
		}
		t.logger.Info("【定时任务】过期战斗清理完成", "deleted_count", n)
	})
	if err != nil {
		t.logger.Error("【定时任务】添加清理任务失败", err, "schedule", t.schedule)
		return
	}

	t.cron.Start()
	t.logger.Info("【定时任务】已启动 - 战斗保留期清理", "schedule", t.schedule, "retention_days", t.days)
}

// RunOnce 分批删除退役时间早于保留期的战斗, 同时删除原始日志
func (t *RetentionTask) RunOnce(ctx context.Context) (int, error) {
	cutoff := t.now().AddDate(0, 0, -t.days).UnixMilli()

	deleted := 0
	for {
		ids, err := t.battles.ListRetiredBefore(ctx, nil, cutoff, retentionBatchSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}

		batch := 0
		for _, id := range ids {
			ok, err := t.purger.Purge(ctx, id, true)
			if err != nil {
				return deleted, err
			}
			if ok {
				batch++
			}
		}
		deleted += batch
		if batch == 0 || len(ids) < retentionBatchSize {
			return deleted, nil
		}
	}
}

// Stop 停止定时任务（优雅关闭）
func (t *RetentionTask) Stop() {
	if t.cron != nil {
		t.logger.Info("【定时任务】正在停止定时任务...")
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【定时任务】定时任务已停止")
	}
}
