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

type summaryRepositoryImpl struct {
	db *sql.DB
}

// NewSummaryRepository 创建汇总仓储实例
func NewSummaryRepository(db *sql.DB) interfaces.SummaryRepository {
	return &summaryRepositoryImpl{db: db}
}

// Get 获取汇总
func (r *summaryRepositoryImpl) Get(ctx context.Context, execer boil.ContextExecutor, summaryType string) (*entity.Summary, error) {
	var s entity.Summary
	err := pick(execer, r.db).QueryRowContext(ctx,
		`SELECT type, data, state, updated_at FROM summaries WHERE type = $1`, summaryType,
	).Scan(&s.Type, &s.Data, &s.State, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询汇总失败: %w", err)
	}
	return &s, nil
}

// Upsert 插入或更新汇总
func (r *summaryRepositoryImpl) Upsert(ctx context.Context, execer boil.ContextExecutor, summary *entity.Summary) error {
	summary.Data = jsonOr(summary.Data, "{}")
	summary.State = jsonOr(summary.State, "{}")
	summary.UpdatedAt = nowMillis()

	query := `
		INSERT INTO summaries (type, data, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (type) DO UPDATE SET
			data = excluded.data,
			state = excluded.state,
			updated_at = excluded.updated_at`
	_, err := pick(execer, r.db).ExecContext(ctx, query, summary.Type, summary.Data, summary.State, summary.UpdatedAt)
	if err != nil {
		return fmt.Errorf("保存汇总失败: %w", err)
	}
	return nil
}

// List 获取全部汇总
func (r *summaryRepositoryImpl) List(ctx context.Context, execer boil.ContextExecutor) ([]*entity.Summary, error) {
	rows, err := pick(execer, r.db).QueryContext(ctx, `SELECT type, data, state, updated_at FROM summaries ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("查询汇总列表失败: %w", err)
	}
	defer rows.Close()

	summaries := make([]*entity.Summary, 0)
	for rows.Next() {
		var s entity.Summary
		if err := rows.Scan(&s.Type, &s.Data, &s.State, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("读取汇总失败: %w", err)
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历汇总列表失败: %w", err)
	}
	return summaries, nil
}
