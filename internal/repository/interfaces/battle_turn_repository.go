package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/repository/entity"
)

// BattleTurnRepository 进行中战斗的回合仓储接口
type BattleTurnRepository interface {
	// Append 追加回合
	Append(ctx context.Context, execer boil.ContextExecutor, turn *entity.BattleTurn) error

	// ListByBattle 按 seq 升序返回回合
	ListByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) ([]*entity.BattleTurn, error)

	// CountByBattle 回合数, 即下一个 seq
	CountByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) (int, error)

	// DeleteByBattle 删除战斗的全部回合
	DeleteByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) (int64, error)
}
