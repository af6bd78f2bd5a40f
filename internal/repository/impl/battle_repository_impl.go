package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

const battleColumns = `id, active, start_time, archive, unparsed, meta, created_at, retired_at`

type battleRepositoryImpl struct {
	db *sql.DB
}

// NewBattleRepository 创建战斗仓储实例
func NewBattleRepository(db *sql.DB) interfaces.BattleRepository {
	return &battleRepositoryImpl{db: db}
}

func scanBattle(row rowScanner) (*entity.Battle, error) {
	var b entity.Battle
	if err := row.Scan(&b.ID, &b.Active, &b.StartTime, &b.Archive, &b.Unparsed, &b.Meta, &b.CreatedAt, &b.RetiredAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// Create 创建战斗
func (r *battleRepositoryImpl) Create(ctx context.Context, execer boil.ContextExecutor, battle *entity.Battle) error {
	if battle.ID == "" {
		battle.ID = newBattleID()
	}
	if battle.CreatedAt == 0 {
		battle.CreatedAt = nowMillis()
	}
	battle.Unparsed = jsonOr(battle.Unparsed, "[]")
	battle.Meta = jsonOr(battle.Meta, "{}")

	query := `INSERT INTO battles (` + battleColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := pick(execer, r.db).ExecContext(ctx, query,
		battle.ID, battle.Active, battle.StartTime, battle.Archive,
		battle.Unparsed, battle.Meta, battle.CreatedAt, battle.RetiredAt,
	)
	if err != nil {
		return fmt.Errorf("创建战斗失败: %w", err)
	}
	return nil
}

// GetByID 根据ID获取战斗
func (r *battleRepositoryImpl) GetByID(ctx context.Context, execer boil.ContextExecutor, id string) (*entity.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE id = $1`
	b, err := scanBattle(pick(execer, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询战斗失败: %w", err)
	}
	return b, nil
}

// GetActive 获取进行中的战斗
func (r *battleRepositoryImpl) GetActive(ctx context.Context, execer boil.ContextExecutor) (*entity.Battle, error) {
	query := `SELECT ` + battleColumns + ` FROM battles WHERE active = $1 LIMIT 1`
	b, err := scanBattle(pick(execer, r.db).QueryRowContext(ctx, query, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrBattleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询进行中战斗失败: %w", err)
	}
	return b, nil
}

// ListIDs 列出全部战斗ID
func (r *battleRepositoryImpl) ListIDs(ctx context.Context, execer boil.ContextExecutor) ([]string, error) {
	rows, err := pick(execer, r.db).QueryContext(ctx, `SELECT id FROM battles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("查询战斗列表失败: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("读取战斗ID失败: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历战斗列表失败: %w", err)
	}
	return ids, nil
}

// Update 更新战斗可变字段
func (r *battleRepositoryImpl) Update(ctx context.Context, execer boil.ContextExecutor, battle *entity.Battle) error {
	battle.Unparsed = jsonOr(battle.Unparsed, "[]")
	battle.Meta = jsonOr(battle.Meta, "{}")

	query := `UPDATE battles SET active = $1, start_time = $2, unparsed = $3, meta = $4 WHERE id = $5`
	result, err := pick(execer, r.db).ExecContext(ctx, query,
		battle.Active, battle.StartTime, battle.Unparsed, battle.Meta, battle.ID,
	)
	if err != nil {
		return fmt.Errorf("更新战斗失败: %w", err)
	}
	return expectAffected(result, interfaces.ErrBattleNotFound)
}

// Retire 写入归档并退役
func (r *battleRepositoryImpl) Retire(ctx context.Context, execer boil.ContextExecutor, id string, archive []byte, retiredAt int64) error {
	query := `UPDATE battles SET active = $1, archive = $2, retired_at = $3 WHERE id = $4`
	result, err := pick(execer, r.db).ExecContext(ctx, query, false, archive, retiredAt, id)
	if err != nil {
		return fmt.Errorf("退役战斗失败: %w", err)
	}
	return expectAffected(result, interfaces.ErrBattleNotFound)
}

// Delete 删除战斗
func (r *battleRepositoryImpl) Delete(ctx context.Context, execer boil.ContextExecutor, id string) (bool, error) {
	result, err := pick(execer, r.db).ExecContext(ctx, `DELETE FROM battles WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("删除战斗失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("获取影响行数失败: %w", err)
	}
	return n > 0, nil
}

// ListRetiredBefore 列出过期的退役战斗
func (r *battleRepositoryImpl) ListRetiredBefore(ctx context.Context, execer boil.ContextExecutor, cutoff int64, limit int) ([]string, error) {
	query := `SELECT id FROM battles WHERE active = $1 AND retired_at IS NOT NULL AND retired_at < $2 ORDER BY retired_at LIMIT $3`
	rows, err := pick(execer, r.db).QueryContext(ctx, query, false, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("查询过期战斗失败: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("读取战斗ID失败: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取影响行数失败: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
