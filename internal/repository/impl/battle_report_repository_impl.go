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

const reportColumns = `id, battle_id, type, data, state, finalized, updated_at`

type battleReportRepositoryImpl struct {
	db *sql.DB
}

// NewBattleReportRepository 创建战斗报告仓储实例
func NewBattleReportRepository(db *sql.DB) interfaces.BattleReportRepository {
	return &battleReportRepositoryImpl{db: db}
}

func scanReport(row rowScanner) (*entity.BattleReport, error) {
	var rp entity.BattleReport
	if err := row.Scan(&rp.ID, &rp.BattleID, &rp.Type, &rp.Data, &rp.State, &rp.Finalized, &rp.UpdatedAt); err != nil {
		return nil, err
	}
	return &rp, nil
}

func (r *battleReportRepositoryImpl) list(ctx context.Context, execer boil.ContextExecutor, query string, args ...any) ([]*entity.BattleReport, error) {
	rows, err := pick(execer, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询战斗报告失败: %w", err)
	}
	defer rows.Close()

	reports := make([]*entity.BattleReport, 0)
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("读取战斗报告失败: %w", err)
		}
		reports = append(reports, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历战斗报告失败: %w", err)
	}
	return reports, nil
}

// Get 获取报告
func (r *battleReportRepositoryImpl) Get(ctx context.Context, execer boil.ContextExecutor, battleID, reportType string) (*entity.BattleReport, error) {
	query := `SELECT ` + reportColumns + ` FROM battle_reports WHERE battle_id = $1 AND type = $2`
	rp, err := scanReport(pick(execer, r.db).QueryRowContext(ctx, query, battleID, reportType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询战斗报告失败: %w", err)
	}
	return rp, nil
}

// Upsert 插入或更新报告; 已结算的报告不会被改回未结算
func (r *battleReportRepositoryImpl) Upsert(ctx context.Context, execer boil.ContextExecutor, report *entity.BattleReport) error {
	report.Data = jsonOr(report.Data, "{}")
	report.State = jsonOr(report.State, "{}")
	report.UpdatedAt = nowMillis()

	query := `
		INSERT INTO battle_reports (battle_id, type, data, state, finalized, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (battle_id, type) DO UPDATE SET
			data = excluded.data,
			state = excluded.state,
			finalized = (battle_reports.finalized OR excluded.finalized),
			updated_at = excluded.updated_at
		RETURNING id`
	err := pick(execer, r.db).QueryRowContext(ctx, query,
		report.BattleID, report.Type, report.Data, report.State, report.Finalized, report.UpdatedAt,
	).Scan(&report.ID)
	if err != nil {
		return fmt.Errorf("保存战斗报告失败: %w", err)
	}
	return nil
}

// ListByBattle 获取战斗的全部报告
func (r *battleReportRepositoryImpl) ListByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) ([]*entity.BattleReport, error) {
	query := `SELECT ` + reportColumns + ` FROM battle_reports WHERE battle_id = $1 ORDER BY id`
	return r.list(ctx, execer, query, battleID)
}

// ListUnfinalized 其他战斗中未结算的报告
func (r *battleReportRepositoryImpl) ListUnfinalized(ctx context.Context, execer boil.ContextExecutor, excludeBattleID string) ([]*entity.BattleReport, error) {
	query := `SELECT ` + reportColumns + ` FROM battle_reports
		WHERE finalized = $1 AND type <> $2 AND battle_id <> $3
		ORDER BY id`
	return r.list(ctx, execer, query, false, metaReportType, excludeBattleID)
}

// DeleteByBattle 删除战斗的全部报告
func (r *battleReportRepositoryImpl) DeleteByBattle(ctx context.Context, execer boil.ContextExecutor, battleID string) (int64, error) {
	result, err := pick(execer, r.db).ExecContext(ctx, `DELETE FROM battle_reports WHERE battle_id = $1`, battleID)
	if err != nil {
		return 0, fmt.Errorf("删除战斗报告失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取影响行数失败: %w", err)
	}
	return n, nil
}
