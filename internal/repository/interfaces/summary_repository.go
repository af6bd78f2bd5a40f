package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/repository/entity"
)

// SummaryRepository 跨战斗汇总仓储接口
type SummaryRepository interface {
	// Get 获取指定类型的汇总, 不存在返回 ErrSummaryNotFound
	Get(ctx context.Context, execer boil.ContextExecutor, summaryType string) (*entity.Summary, error)

	// Upsert 插入或更新
	Upsert(ctx context.Context, execer boil.ContextExecutor, summary *entity.Summary) error

	// List 获取全部汇总
	List(ctx context.Context, execer boil.ContextExecutor) ([]*entity.Summary, error)
}
