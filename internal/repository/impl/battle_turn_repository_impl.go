package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

type battleTurnRepositoryImpl struct {
	db *sql.DB
}

// NewBattleTurnRepository 创建回合仓储实例
func NewBattleTurnRepository(db *sql.DB) interfaces.BattleTurnRepository {
	return &battleTurnRepositoryImpl{db: db}
}

// Append 追加回合
func (r *battleTurnRepositoryImpl) Append(ctx context.Context, execer boil.ContextExecutor, turn *entity.BattleTurn) error {
	turn.Events = jsonOr(turn.Events, "[]")
	turn.Meta = jsonOr(turn.Meta, "{}")

	query := `
		INSERT INTO battle_turns (battle_id, seq, events, meta, time_offset)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := pick(execer, r.db).QueryRowContext(ctx, query,
		turn.BattleID, turn.Seq, turn.Events, turn.Meta, turn.TimeOffset,
	).Scan(&turn.ID)
	if err != nil {
		return fmt.Errorf("追加回合失败: %w", err)
	}
	return nil
}

// ListByBattle 按顺序获取回合
func (r *battleTurnRepositoryImpl) ListByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) ([]*entity.BattleTurn, error) {
	query := `SELECT id, battle_id, seq, events, meta, time_offset FROM battle_turns WHERE battle_id = $1 ORDER BY seq`
	rows, err := pick(execer, r.db).QueryContext(ctx, query, battleID)
	if err != nil {
		return nil, fmt.Errorf("查询回合失败: %w", err)
	}
	defer rows.Close()

	turns := make([]*entity.BattleTurn, 0)
	for rows.Next() {
		var t entity.BattleTurn
		if err := rows.Scan(&t.ID, &t.BattleID, &t.Seq, &t.Events, &t.Meta, &t.TimeOffset); err != nil {
			return nil, fmt.Errorf("读取回合失败: %w", err)
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历回合失败: %w", err)
	}
	return turns, nil
}

// CountByBattle 统计回合数
func (r *battleTurnRepositoryImpl) CountByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) (int, error) {
	var n int
	err := pick(execer, r.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM battle_turns WHERE battle_id = $1`, battleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计回合数失败: %w", err)
	}
	return n, nil
}

// DeleteByBattle 删除战斗的全部回合
func (r *battleTurnRepositoryImpl) DeleteByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) (int64, error) {
	result, err := pick(execer, r.db).ExecContext(ctx, `DELETE FROM battle_turns WHERE battle_id = $1`, battleID)
	if err != nil {
		return 0, fmt.Errorf("删除回合失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取影响行数失败: %w", err)
	}
	return n, nil
}
