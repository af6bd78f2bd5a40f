package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/aggregator"
	"battle-tracker/internal/modules/tracker/broadcast"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/database"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/notify"
	"battle-tracker/internal/pkg/rawlog"
	"battle-tracker/internal/pkg/xerrors"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

// EventPublisher 提交成功后的外部通知
type EventPublisher interface {
	PublishTurn(ctx context.Context, evt notify.TurnEvent) error
	PublishBattleStarted(ctx context.Context, evt notify.BattleEvent) error
	PublishBattleRetired(ctx context.Context, evt notify.BattleEvent) error
}

// CacheInvalidator 报告缓存失效
type CacheInvalidator interface {
	Delete(ctx context.Context, battleID, reason string)
}

// SubmitResult 一次提交的处理结果
type SubmitResult struct {
	BattleID    string `json:"battle_id"`
	IsNewBattle bool   `json:"is_new_battle"`
	Reason      string `json:"reason,omitempty"`
	RetiredID   string `json:"retired_battle_id,omitempty"`
	Turns       int    `json:"turns"`
	Rejects     int    `json:"rejects"`
	FirstIndex  int64  `json:"first_index"`
}

// IngestDeps IngestService 依赖
type IngestDeps struct {
	DB         boil.ContextBeginner
	Assembler  *Assembler
	Sessions   *SessionManager
	Registry   *reporter.Registry
	Aggregator *aggregator.Aggregator
	Battles    interfaces.BattleRepository
	Turns      interfaces.BattleTurnRepository
	Reports    interfaces.BattleReportRepository
	Tracker    *broadcast.TurnTracker
	Publisher  EventPublisher
	RawLogs    *rawlog.Store
	Cache      CacheInvalidator
	Metrics    *metrics.TrackerMetrics
	Logger     log.Logger
}

// IngestService 唯一的写入方, 所有提交串行执行
type IngestService struct {
	deps    IngestDeps
	logger  log.Logger
	metrics *metrics.TrackerMetrics
	service string

	mu sync.Mutex
}

// NewIngestService 创建 IngestService
func NewIngestService(deps IngestDeps) *IngestService {
	if deps.Logger == nil {
		deps.Logger = log.GetLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultTrackerMetrics
	}
	return &IngestService{
		deps:    deps,
		logger:  deps.Logger.With("component", "ingest"),
		metrics: deps.Metrics,
		service: metrics.GetServiceName(),
	}
}

// storedTurn 已写入数据库、待广播的回合
type storedTurn struct {
	seq  int
	turn battle.ArchivedTurn
}

// txOutcome 事务内产生、提交后才生效的结果
type txOutcome struct {
	res       *Resolution
	stored    []storedTurn
	finalized []*entity.BattleReport
}

// Submit 处理一批原始提交: 组装, 定位战斗, 持久化, 更新报告; 提交后再广播
func (s *IngestService) Submit(ctx context.Context, subs []battle.RawSubmission) (*SubmitResult, error) {
	if len(subs) == 0 {
		return nil, xerrors.FromCode(xerrors.CodeIngestEmptyBatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	turns, rejects, err := s.deps.Assembler.Assemble(ctx, subs)
	if err != nil {
		s.metrics.RecordSubmission(false, 0, 0, 0, time.Since(start), s.service)
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "解析日志失败")
	}

	var rs *battle.RoundStart
	if ev, ok := battle.FirstRoundStart(turns); ok {
		if parsed, ok := battle.ParseRoundStart(ev); ok {
			rs = &parsed
		} else {
			s.logger.WarnContext(ctx, "回合开始事件字段不完整, 忽略边界信号", log.Any("fields", ev.Fields))
		}
	}

	var out txOutcome
	err = database.WithTx(ctx, s.deps.DB, func(ctx context.Context, tx boil.ContextExecutor) error {
		// 重试时从头开始
		out = txOutcome{}
		return s.persist(ctx, tx, turns, rejects, rs, &out)
	})
	if err != nil {
		s.metrics.RecordSubmission(false, 0, len(rejects), 0, time.Since(start), s.service)
		s.logger.ErrorContext(ctx, "提交写入失败, 已回滚", err, log.Int("turns", len(turns)))
		return nil, xerrors.Wrap(err, xerrors.CodeDatabaseError, "写入战斗日志失败")
	}

	for _, line := range rejects {
		s.logger.WarnContext(ctx, "无法解析的日志行", log.String("battle_id", out.res.Battle.ID), log.String("line", line))
	}

	result := s.afterCommit(ctx, subs, &out)
	result.Rejects = len(rejects)

	parsedLines := 0
	for _, t := range turns {
		parsedLines += len(t.Events)
	}
	s.metrics.RecordSubmission(true, parsedLines, len(rejects), len(turns), time.Since(start), s.service)
	return result, nil
}

func (s *IngestService) persist(
	ctx context.Context,
	tx boil.ContextExecutor,
	turns []battle.Turn,
	rejects []string,
	rs *battle.RoundStart,
	out *txOutcome,
) error {
	res, err := s.deps.Sessions.Resolve(ctx, tx, rs, turns[0].Time)
	if err != nil {
		return err
	}
	out.res = res
	b := res.Battle

	if len(rejects) > 0 {
		b.Unparsed, err = appendRejects(b.Unparsed, rejects)
		if err != nil {
			return err
		}
		if err := s.deps.Battles.Update(ctx, tx, b); err != nil {
			return err
		}
	}

	seq, err := s.deps.Turns.CountByBattle(ctx, tx, b.ID)
	if err != nil {
		return err
	}

	lastOffset := 0.0
	for i, turn := range turns {
		offset := turn.Time - b.StartTime
		if i > 0 && offset < lastOffset {
			s.logger.WarnContext(ctx, "回合时间倒退",
				log.String("battle_id", b.ID),
				log.Float64("offset", offset),
				log.Float64("previous", lastOffset),
			)
		}
		lastOffset = offset

		events, err := marshalJSON(turn.Events, "[]")
		if err != nil {
			return err
		}
		meta, err := marshalJSON(turn.Meta, "{}")
		if err != nil {
			return err
		}
		row := &entity.BattleTurn{BattleID: b.ID, Seq: seq + i, Events: events, Meta: meta, TimeOffset: offset}
		if err := s.deps.Turns.Append(ctx, tx, row); err != nil {
			return err
		}
		out.stored = append(out.stored, storedTurn{
			seq:  row.Seq,
			turn: battle.ArchivedTurn{Events: turn.Events, Time: offset, Meta: turn.Meta},
		})
	}

	if err := s.consume(ctx, tx, b.ID, turns); err != nil {
		return err
	}

	if res.IsNewBattle {
		finalized, err := s.finalizeOthers(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		out.finalized = finalized
	}
	return nil
}

// consume 每种报告各消费一遍本批次回合
func (s *IngestService) consume(ctx context.Context, tx boil.ContextExecutor, battleID string, turns []battle.Turn) error {
	for _, reportType := range s.deps.Registry.Types() {
		var (
			rp     reporter.Reporter
			report *entity.BattleReport
		)
		stored, err := s.deps.Reports.Get(ctx, tx, battleID, reportType)
		switch {
		case errors.Is(err, interfaces.ErrReportNotFound):
			rp, report, err = s.deps.Registry.New(battleID, reportType)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			report = stored
			rp, err = s.deps.Registry.Load(stored)
			if err != nil {
				return xerrors.NewReportCorruptedError(battleID, reportType, err)
			}
		}

		if rp.Finalized() {
			s.logger.WarnContext(ctx, "报告已结算, 跳过", log.String("battle_id", battleID), log.String("type", reportType))
			continue
		}
		for _, turn := range turns {
			rp.Consume(battleID, turn)
		}
		if err := rp.Encode(report); err != nil {
			return err
		}
		if err := s.deps.Reports.Upsert(ctx, tx, report); err != nil {
			return err
		}
	}
	return nil
}

// finalizeOthers 结算其他战斗的未结算报告, 并入汇总
func (s *IngestService) finalizeOthers(ctx context.Context, tx boil.ContextExecutor, activeID string) ([]*entity.BattleReport, error) {
	pending, err := s.deps.Reports.ListUnfinalized(ctx, tx, activeID)
	if err != nil {
		return nil, err
	}

	var finalized []*entity.BattleReport
	for _, report := range pending {
		rp, err := s.deps.Registry.Load(report)
		if errors.Is(err, reporter.ErrUnknownType) {
			s.logger.WarnContext(ctx, "未注册的报告类型, 跳过结算", log.String("battle_id", report.BattleID), log.String("type", report.Type))
			continue
		}
		if err != nil {
			return nil, xerrors.NewReportCorruptedError(report.BattleID, report.Type, err)
		}

		if !rp.Finalize() {
			continue
		}
		if err := rp.Encode(report); err != nil {
			return nil, err
		}
		if err := s.deps.Reports.Upsert(ctx, tx, report); err != nil {
			return nil, err
		}
		if s.deps.Aggregator != nil {
			if _, err := s.deps.Aggregator.Apply(ctx, tx, report); err != nil {
				return nil, err
			}
		}
		finalized = append(finalized, report)
	}
	return finalized, nil
}

// afterCommit 事务提交后的副作用, 失败只记录日志
func (s *IngestService) afterCommit(ctx context.Context, subs []battle.RawSubmission, out *txOutcome) *SubmitResult {
	res := out.res
	b := res.Battle
	s.deps.Sessions.Commit(res)

	result := &SubmitResult{
		BattleID:    b.ID,
		IsNewBattle: res.IsNewBattle,
		Reason:      string(res.Reason),
		Turns:       len(out.stored),
		FirstIndex:  -1,
	}
	if res.Retired != nil {
		result.RetiredID = res.Retired.ID
	}

	if res.IsNewBattle {
		s.metrics.RecordBattleStarted(string(res.Reason), s.service)
		s.publish(ctx, "battle.started", func(p EventPublisher) error {
			return p.PublishBattleStarted(ctx, notify.BattleEvent{BattleID: b.ID, StartTime: b.StartTime, Reason: string(res.Reason)})
		})
	}
	if res.Retired != nil {
		s.metrics.RecordBattleRetired(s.service)
		s.logger.InfoContext(ctx, "战斗已退役",
			log.String("battle_id", res.Retired.ID),
			log.Int("archived_turns", res.RetiredTurns),
		)
		s.publish(ctx, "battle.retired", func(p EventPublisher) error {
			return p.PublishBattleRetired(ctx, notify.BattleEvent{BattleID: res.Retired.ID, StartTime: res.Retired.StartTime, Reason: string(res.Reason)})
		})
	}

	for _, rp := range out.finalized {
		s.metrics.RecordReportFinalized(rp.Type, s.service)
		if s.deps.Cache != nil {
			s.deps.Cache.Delete(ctx, rp.BattleID, "finalized")
		}
	}

	for _, st := range out.stored {
		idx := int64(-1)
		if s.deps.Tracker != nil {
			idx = s.deps.Tracker.Insert(b.ID, st.seq, st.turn)
		}
		if result.FirstIndex < 0 {
			result.FirstIndex = idx
		}
		s.publish(ctx, "turn", func(p EventPublisher) error {
			events := make([]any, len(st.turn.Events))
			for i, ev := range st.turn.Events {
				events[i] = ev
			}
			return p.PublishTurn(ctx, notify.TurnEvent{
				Index:      idx,
				BattleID:   b.ID,
				Seq:        st.seq,
				TimeOffset: st.turn.Time,
				Events:     events,
				Meta:       st.turn.Meta,
			})
		})
	}

	if s.deps.RawLogs.Enabled() {
		var header *rawlog.Header
		if res.IsNewBattle {
			header = &rawlog.Header{PK: b.ID, Time: b.StartTime}
		}
		if err := s.deps.RawLogs.Append(b.ID, header, subs); err != nil {
			s.logger.ErrorContext(ctx, "写入原始日志失败", err, log.String("battle_id", b.ID))
		}
	}
	return result
}

func (s *IngestService) publish(ctx context.Context, what string, fn func(EventPublisher) error) {
	if s.deps.Publisher == nil {
		return
	}
	if err := fn(s.deps.Publisher); err != nil {
		s.logger.WarnContext(ctx, "发送通知失败", log.String("event", what), log.Any("error", err))
	}
}

// Purge 删除战斗及其回合与报告; removeRaw 为 true 时同时删除原始日志
func (s *IngestService) Purge(ctx context.Context, battleID string, removeRaw bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted bool
	err := database.WithTx(ctx, s.deps.DB, func(ctx context.Context, tx boil.ContextExecutor) error {
		var err error
		deleted, err = purgeBattle(ctx, tx, s.deps.Battles, s.deps.Turns, s.deps.Reports, battleID)
		return err
	})
	if err != nil {
		return false, xerrors.Wrap(err, xerrors.CodeDatabaseError, "删除战斗失败")
	}

	s.deps.Sessions.Forget(battleID)
	if s.deps.Cache != nil {
		s.deps.Cache.Delete(ctx, battleID, "purged")
	}
	if removeRaw {
		if err := s.deps.RawLogs.Remove(battleID); err != nil {
			s.logger.ErrorContext(ctx, "删除原始日志失败", err, log.String("battle_id", battleID))
		}
	}
	if deleted {
		s.logger.InfoContext(ctx, "战斗已删除", log.String("battle_id", battleID))
	}
	return deleted, nil
}

// purgeBattle 在事务内删除战斗相关的全部行
func purgeBattle(
	ctx context.Context,
	tx boil.ContextExecutor,
	battles interfaces.BattleRepository,
	turns interfaces.BattleTurnRepository,
	reports interfaces.BattleReportRepository,
	battleID string,
) (bool, error) {
	if _, err := reports.DeleteByBattle(ctx, tx, battleID); err != nil {
		return false, err
	}
	if _, err := turns.DeleteByBattle(ctx, tx, battleID); err != nil {
		return false, err
	}
	return battles.Delete(ctx, tx, battleID)
}
