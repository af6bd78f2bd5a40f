package service

import (
	"context"
	"encoding/json"
	"errors"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/pkg/archive"
	"battle-tracker/internal/pkg/reportcache"
	"battle-tracker/internal/pkg/xerrors"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

// ReportCache 已退役战斗的报告缓存
type ReportCache interface {
	Get(ctx context.Context, battleID string) (reportcache.Reports, bool)
	Set(ctx context.Context, battleID string, reports reportcache.Reports)
}

// SummaryView 跨战斗汇总
type SummaryView struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	BattleCount int64           `json:"battle_count"`
	UpdatedAt   int64           `json:"updated_at"`
}

// BattleView 战斗概要
type BattleView struct {
	ID        string   `json:"id"`
	Active    bool     `json:"active"`
	StartTime float64  `json:"start_time"`
	Unparsed  []string `json:"unparsed"`
	CreatedAt int64    `json:"created_at"`
	RetiredAt *int64   `json:"retired_at,omitempty"`
}

// QueryService 只读查询
type QueryService struct {
	battles   interfaces.BattleRepository
	turns     interfaces.BattleTurnRepository
	reports   interfaces.BattleReportRepository
	summaries interfaces.SummaryRepository
	cache     ReportCache
}

// NewQueryService cache 可为 nil
func NewQueryService(
	battles interfaces.BattleRepository,
	turns interfaces.BattleTurnRepository,
	reports interfaces.BattleReportRepository,
	summaries interfaces.SummaryRepository,
	cache ReportCache,
) *QueryService {
	return &QueryService{battles: battles, turns: turns, reports: reports, summaries: summaries, cache: cache}
}

// ListBattleIDs 全部战斗ID, 按创建顺序
func (s *QueryService) ListBattleIDs(ctx context.Context) ([]string, error) {
	ids, err := s.battles.ListIDs(ctx, nil)
	if err != nil {
		return nil, xerrors.NewDatabaseError("list", "battles", err)
	}
	return ids, nil
}

func (s *QueryService) getBattle(ctx context.Context, battleID string) (*entity.Battle, error) {
	b, err := s.battles.GetByID(ctx, nil, battleID)
	if errors.Is(err, interfaces.ErrBattleNotFound) {
		return nil, xerrors.NewBattleNotFoundError(battleID)
	}
	if err != nil {
		return nil, xerrors.NewDatabaseError("get", "battles", err)
	}
	return b, nil
}

// GetBattle 战斗概要
func (s *QueryService) GetBattle(ctx context.Context, battleID string) (*BattleView, error) {
	b, err := s.getBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	view := &BattleView{
		ID:        b.ID,
		Active:    b.Active,
		StartTime: b.StartTime,
		Unparsed:  []string{},
		CreatedAt: b.CreatedAt,
	}
	if len(b.Unparsed) > 0 {
		if err := json.Unmarshal(b.Unparsed, &view.Unparsed); err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeDataIntegrityError, "未识别行列表损坏")
		}
	}
	if b.RetiredAt.Valid {
		v := b.RetiredAt.Int64
		view.RetiredAt = &v
	}
	return view, nil
}

// GetReports 报告类型 -> 公开数据; 已退役且全部结算的战斗走缓存
func (s *QueryService) GetReports(ctx context.Context, battleID string) (reportcache.Reports, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, battleID); ok {
			return cached, nil
		}
	}

	b, err := s.getBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	rows, err := s.reports.ListByBattle(ctx, nil, battleID)
	if err != nil {
		return nil, xerrors.NewDatabaseError("list", "battle_reports", err)
	}

	out := make(reportcache.Reports, len(rows))
	settled := !b.Active
	for _, row := range rows {
		data := json.RawMessage(row.Data)
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		out[row.Type] = data
		if !row.Finalized && row.Type != metaType {
			settled = false
		}
	}

	if settled && s.cache != nil {
		s.cache.Set(ctx, battleID, out)
	}
	return out, nil
}

// GetEvents 进行中的战斗返回实时回合, 已退役的返回归档
func (s *QueryService) GetEvents(ctx context.Context, battleID string) ([]battle.ArchivedTurn, error) {
	b, err := s.getBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}

	if !b.Active {
		turns, err := archive.Decode(b.Archive)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeBattleArchiveError, "战斗归档数据损坏").
				WithMetadata("battle_id", battleID)
		}
		return turns, nil
	}

	rows, err := s.turns.ListByBattle(ctx, nil, battleID)
	if err != nil {
		return nil, xerrors.NewDatabaseError("list", "battle_turns", err)
	}
	turns := make([]battle.ArchivedTurn, 0, len(rows))
	for _, row := range rows {
		turn, err := archivedTurn(row)
		if err != nil {
			return nil, xerrors.Wrap(err, xerrors.CodeDataIntegrityError, "回合数据损坏")
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// ListSummaries 跨战斗汇总
func (s *QueryService) ListSummaries(ctx context.Context) ([]SummaryView, error) {
	rows, err := s.summaries.List(ctx, nil)
	if err != nil {
		return nil, xerrors.NewDatabaseError("list", "summaries", err)
	}

	views := make([]SummaryView, 0, len(rows))
	for _, row := range rows {
		var state struct {
			BattleCount int64 `json:"battle_count"`
		}
		if len(row.State) > 0 {
			_ = json.Unmarshal(row.State, &state)
		}
		data := json.RawMessage(row.Data)
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		views = append(views, SummaryView{
			Type:        row.Type,
			Data:        data,
			BattleCount: state.BattleCount,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return views, nil
}
