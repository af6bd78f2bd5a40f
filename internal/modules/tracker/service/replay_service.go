package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aarondl/null/v8"
	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/archive"
	"battle-tracker/internal/pkg/database"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/rawlog"
	"battle-tracker/internal/pkg/xerrors"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

// ErrReplayActiveBattle 不能重放进行中的战斗
var ErrReplayActiveBattle = errors.New("cannot replay the active battle")

// ReplayResult 单个文件的重放结果
type ReplayResult struct {
	BattleID string `json:"battle_id"`
	Turns    int    `json:"turns"`
	Rejects  int    `json:"rejects"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// ReplayService 由原始日志重建已退役的战斗; 不修改跨战斗汇总
type ReplayService struct {
	db        boil.ContextBeginner
	assembler *Assembler
	registry  *reporter.Registry
	battles   interfaces.BattleRepository
	turns     interfaces.BattleTurnRepository
	reports   interfaces.BattleReportRepository
	rawLogs   *rawlog.Store
	logger    log.Logger
}

// NewReplayService 创建 ReplayService
func NewReplayService(
	db boil.ContextBeginner,
	assembler *Assembler,
	registry *reporter.Registry,
	battles interfaces.BattleRepository,
	turns interfaces.BattleTurnRepository,
	reports interfaces.BattleReportRepository,
	rawLogs *rawlog.Store,
	logger log.Logger,
) *ReplayService {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &ReplayService{
		db:        db,
		assembler: assembler,
		registry:  registry,
		battles:   battles,
		turns:     turns,
		reports:   reports,
		rawLogs:   rawLogs,
		logger:    logger.With("component", "replay"),
	}
}

// ReplayAll 重放目录下全部 .hv 文件; 单个文件失败不影响其他文件
func (s *ReplayService) ReplayAll(ctx context.Context) ([]ReplayResult, error) {
	files, err := s.rawLogs.List()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeFileSystemError, "列出原始日志失败")
	}

	results := make([]ReplayResult, 0, len(files))
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.ReplayFile(ctx, path)
		if errors.Is(err, ErrReplayActiveBattle) {
			results = append(results, ReplayResult{BattleID: res.BattleID, Skipped: true})
			continue
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "重放失败", err, log.String("file", path))
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		results = append(results, *res)
	}
	return results, errors.Join(errs...)
}

// ReplayFile 清除并重建单个战斗: 归档, 未识别行, 全部报告 (已结算)
func (s *ReplayService) ReplayFile(ctx context.Context, path string) (*ReplayResult, error) {
	header, subs, err := rawlog.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeFileSystemError, "读取原始日志失败").WithMetadata("file", path)
	}
	res := &ReplayResult{BattleID: header.PK}

	turns, rejects, err := s.assembler.Assemble(ctx, subs)
	if err != nil {
		return res, err
	}
	res.Turns = len(turns)
	res.Rejects = len(rejects)

	archived := make([]battle.ArchivedTurn, len(turns))
	for i, turn := range turns {
		archived[i] = battle.ArchivedTurn{Events: turn.Events, Time: turn.Time - header.Time, Meta: turn.Meta}
	}
	blob, err := archive.Encode(archived)
	if err != nil {
		return res, err
	}
	unparsed, err := marshalJSON(rejects, "[]")
	if err != nil {
		return res, err
	}

	err = database.WithTx(ctx, s.db, func(ctx context.Context, tx boil.ContextExecutor) error {
		existing, err := s.battles.GetByID(ctx, tx, header.PK)
		if err == nil && existing.Active {
			return ErrReplayActiveBattle
		}
		if err != nil && !errors.Is(err, interfaces.ErrBattleNotFound) {
			return err
		}

		if _, err := purgeBattle(ctx, tx, s.battles, s.turns, s.reports, header.PK); err != nil {
			return err
		}

		b := &entity.Battle{
			ID:        header.PK,
			Active:    false,
			StartTime: header.Time,
			Archive:   blob,
			Unparsed:  unparsed,
			RetiredAt: null.Int64From(nowMillis()),
		}
		if err := s.battles.Create(ctx, tx, b); err != nil {
			return err
		}

		for _, reportType := range s.registry.Types() {
			rp, report, err := s.registry.New(b.ID, reportType)
			if err != nil {
				return err
			}
			for _, turn := range turns {
				rp.Consume(b.ID, turn)
			}
			rp.Finalize()
			if err := rp.Encode(report); err != nil {
				return err
			}
			if err := s.reports.Upsert(ctx, tx, report); err != nil {
				return err
			}
		}

		if meta, ok := replayMeta(turns); ok {
			raw, err := meta.Encode()
			if err != nil {
				return err
			}
			return s.reports.Upsert(ctx, tx, &entity.BattleReport{BattleID: b.ID, Type: metaType, Data: raw})
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	s.logger.InfoContext(ctx, "战斗已重放",
		log.String("battle_id", res.BattleID),
		log.Int("turns", res.Turns),
		log.Int("rejects", res.Rejects),
	)
	return res, nil
}

// replayMeta 首个回合开始事件决定类型与上限, 最后一个决定 last_round
func replayMeta(turns []battle.Turn) (reporter.Meta, bool) {
	var (
		meta  reporter.Meta
		found bool
	)
	for _, turn := range turns {
		for _, ev := range turn.Events {
			rs, ok := battle.ParseRoundStart(ev)
			if !ok {
				continue
			}
			if !found {
				meta, found = reporter.NewMeta(rs), true
				continue
			}
			meta.SetLastRound(rs.Current)
		}
	}
	return meta, found
}
