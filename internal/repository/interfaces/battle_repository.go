package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/repository/entity"
)

// BattleRepository 战斗仓储接口
type BattleRepository interface {
	// Create 创建战斗, ID 为空时自动生成
	Create(ctx context.Context, execer boil.ContextExecutor, battle *entity.Battle) error

	// GetByID 根据ID获取战斗, 不存在返回 ErrBattleNotFound
	GetByID(ctx context.Context, execer boil.ContextExecutor, id string) (*entity.Battle, error)

	// GetActive 获取当前进行中的战斗, 不存在返回 ErrBattleNotFound
	GetActive(ctx context.Context, execer boil.ContextExecutor) (*entity.Battle, error)

	// ListIDs 按创建顺序列出全部战斗ID
	ListIDs(ctx context.Context, execer boil.ContextExecutor) ([]string, error)

	// Update 更新可变字段
	Update(ctx context.Context, execer boil.ContextExecutor, battle *entity.Battle) error

	// Retire 写入归档并标记为非活跃
	Retire(ctx context.Context, execer boil.ContextExecutor, id string, archive []byte, retiredAt int64) error

	// Delete 删除战斗, 返回是否存在
	Delete(ctx context.Context, execer boil.ContextExecutor, id string) (bool, error)

	// ListRetiredBefore 列出退役时间早于 cutoff 的战斗ID
	ListRetiredBefore(ctx context.Context, execer boil.ContextExecutor, cutoff int64, limit int) ([]string, error)
}
