package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aarondl/null/v8"
	"github.com/aarondl/sqlboiler/v4/boil"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/archive"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

// BoundaryReason 新战斗产生的原因
type BoundaryReason string

const (
	ReasonFirstBattle       BoundaryReason = "first_battle"
	ReasonBattleTypeChanged BoundaryReason = "battle_type_changed"
	ReasonMaxRoundsChanged  BoundaryReason = "max_rounds_changed"
	ReasonRoundRegressed    BoundaryReason = "round_regressed"
	ReasonMetaIncomplete    BoundaryReason = "meta_incomplete"
)

// Resolution 一个批次的战斗归属
type Resolution struct {
	Battle      *entity.Battle
	IsNewBattle bool
	Reason      BoundaryReason

	// 本批次退役的战斗, 没有切换时为 nil
	Retired      *entity.Battle
	RetiredTurns int
}

// SessionManager 战斗边界状态机, 持有当前进行中战斗的缓存
type SessionManager struct {
	battles interfaces.BattleRepository
	turns   interfaces.BattleTurnRepository
	reports interfaces.BattleReportRepository
	logger  log.Logger
	clock   func() int64

	mu       sync.RWMutex
	activeID string
	// Load 成功后缓存才可信
	loaded bool
}

// NewSessionManager 创建 SessionManager
func NewSessionManager(
	battles interfaces.BattleRepository,
	turns interfaces.BattleTurnRepository,
	reports interfaces.BattleReportRepository,
	logger log.Logger,
) *SessionManager {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &SessionManager{
		battles: battles,
		turns:   turns,
		reports: reports,
		logger:  logger.With("component", "session_manager"),
		clock:   nowMillis,
	}
}

// Load 从存储刷新进行中战斗缓存
func (m *SessionManager) Load(ctx context.Context) error {
	active, err := m.battles.GetActive(ctx, nil)
	if errors.Is(err, interfaces.ErrBattleNotFound) {
		m.setActive("")
		return nil
	}
	if err != nil {
		return err
	}
	m.setActive(active.ID)
	return nil
}

// ActiveBattleID 当前进行中的战斗, 没有时为空
func (m *SessionManager) ActiveBattleID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID
}

// Commit 事务提交后更新缓存; 事务回滚时不调用, 缓存保持提交前的状态
func (m *SessionManager) Commit(res *Resolution) {
	if res == nil || res.Battle == nil {
		return
	}
	m.setActive(res.Battle.ID)
}

// Forget 战斗被清除后调用, 之后的批次直接开启新战斗
func (m *SessionManager) Forget(battleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == battleID {
		m.activeID = ""
	}
}

func (m *SessionManager) setActive(id string) {
	m.mu.Lock()
	m.activeID = id
	m.loaded = true
	m.mu.Unlock()
}

// knownIdle 缓存已加载且没有进行中的战斗
func (m *SessionManager) knownIdle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded && m.activeID == ""
}

// Resolve 在事务内决定批次归属; rs 为 nil 表示批次中没有有效的回合开始事件
func (m *SessionManager) Resolve(ctx context.Context, tx boil.ContextExecutor, rs *battle.RoundStart, startTime float64) (*Resolution, error) {
	if m.knownIdle() {
		return m.startBattle(ctx, tx, rs, startTime, ReasonFirstBattle, nil)
	}

	active, err := m.battles.GetActive(ctx, tx)
	if errors.Is(err, interfaces.ErrBattleNotFound) {
		return m.startBattle(ctx, tx, rs, startTime, ReasonFirstBattle, nil)
	}
	if err != nil {
		return nil, err
	}

	// 没有回合信号: 延续当前战斗
	if rs == nil {
		return &Resolution{Battle: active}, nil
	}

	stored, err := m.reports.Get(ctx, tx, active.ID, reporter.TypeMeta)
	if errors.Is(err, interfaces.ErrReportNotFound) {
		if err := m.saveMeta(ctx, tx, active.ID, reporter.NewMeta(*rs)); err != nil {
			return nil, err
		}
		return &Resolution{Battle: active}, nil
	}
	if err != nil {
		return nil, err
	}

	meta, err := reporter.DecodeMeta(stored.Data)
	if err != nil {
		// 损坏的元数据与缺字段同样处理
		m.logger.WarnContext(ctx, "回合元数据无法解析", log.String("battle_id", active.ID), log.Any("error", err))
		meta = reporter.Meta{}
	}

	reason := detectBoundary(meta, *rs)
	if reason == "" {
		meta.SetLastRound(rs.Current)
		if err := m.saveMeta(ctx, tx, active.ID, meta); err != nil {
			return nil, err
		}
		return &Resolution{Battle: active}, nil
	}

	retiredTurns, err := m.retire(ctx, tx, active)
	if err != nil {
		return nil, err
	}
	res, err := m.startBattle(ctx, tx, rs, startTime, reason, active)
	if err != nil {
		return nil, err
	}
	res.RetiredTurns = retiredTurns
	return res, nil
}

// detectBoundary 与已存元数据比较; 缺少任一字段也视为边界
func detectBoundary(meta reporter.Meta, rs battle.RoundStart) BoundaryReason {
	switch {
	case !meta.Complete():
		return ReasonMetaIncomplete
	case *meta.BattleType != rs.BattleType:
		return ReasonBattleTypeChanged
	case *meta.MaxRounds != rs.Max:
		return ReasonMaxRoundsChanged
	case rs.Current < *meta.LastRound:
		return ReasonRoundRegressed
	default:
		return ""
	}
}

func (m *SessionManager) startBattle(
	ctx context.Context,
	tx boil.ContextExecutor,
	rs *battle.RoundStart,
	startTime float64,
	reason BoundaryReason,
	retired *entity.Battle,
) (*Resolution, error) {
	b := &entity.Battle{Active: true, StartTime: startTime}
	if err := m.battles.Create(ctx, tx, b); err != nil {
		return nil, err
	}
	if rs != nil {
		if err := m.saveMeta(ctx, tx, b.ID, reporter.NewMeta(*rs)); err != nil {
			return nil, err
		}
	}

	m.logger.InfoContext(ctx, "开始新战斗",
		log.String("battle_id", b.ID),
		log.String("reason", string(reason)),
		log.Float64("start_time", startTime),
	)
	return &Resolution{Battle: b, IsNewBattle: true, Reason: reason, Retired: retired}, nil
}

// retire 把进行中的回合写入归档并退役战斗
func (m *SessionManager) retire(ctx context.Context, tx boil.ContextExecutor, b *entity.Battle) (int, error) {
	rows, err := m.turns.ListByBattle(ctx, tx, b.ID)
	if err != nil {
		return 0, err
	}

	turns := make([]battle.ArchivedTurn, 0, len(rows))
	for _, row := range rows {
		turn, err := archivedTurn(row)
		if err != nil {
			return 0, fmt.Errorf("读取回合 %s/%d 失败: %w", b.ID, row.Seq, err)
		}
		turns = append(turns, turn)
	}

	blob, err := archive.Encode(turns)
	if err != nil {
		return 0, err
	}
	retiredAt := m.clock()
	if err := m.battles.Retire(ctx, tx, b.ID, blob, retiredAt); err != nil {
		return 0, err
	}
	if _, err := m.turns.DeleteByBattle(ctx, tx, b.ID); err != nil {
		return 0, err
	}

	b.Active = false
	b.Archive = blob
	b.RetiredAt = null.Int64From(retiredAt)
	return len(turns), nil
}

func (m *SessionManager) saveMeta(ctx context.Context, tx boil.ContextExecutor, battleID string, meta reporter.Meta) error {
	raw, err := meta.Encode()
	if err != nil {
		return fmt.Errorf("序列化回合元数据失败: %w", err)
	}
	return m.reports.Upsert(ctx, tx, &entity.BattleReport{
		BattleID: battleID,
		Type:     reporter.TypeMeta,
		Data:     raw,
	})
}
