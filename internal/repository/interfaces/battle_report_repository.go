package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/repository/entity"
)

// BattleReportRepository 战斗报告仓储接口
type BattleReportRepository interface {
	// Get 获取指定类型的报告, 不存在返回 ErrReportNotFound
	Get(ctx context.Context, execer boil.ContextExecutor, battleID, reportType string) (*entity.BattleReport, error)

	// Upsert 按 (battle_id, type) 插入或更新
	Upsert(ctx context.Context, execer boil.ContextExecutor, report *entity.BattleReport) error

	// ListByBattle 获取战斗的全部报告
	ListByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) ([]*entity.BattleReport, error)

	// ListUnfinalized 其他战斗中未结算的报告 (不含 meta)
	ListUnfinalized(ctx context.Context, execer boil.ContextExecutor, excludeBattleID string) ([]*entity.BattleReport, error)

	// DeleteByBattle 删除战斗的全部报告
	DeleteByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) (int64, error)
}
