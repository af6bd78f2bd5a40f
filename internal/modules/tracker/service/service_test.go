package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/parser"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/database"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/notify"
	"battle-tracker/internal/pkg/rawlog"
	"battle-tracker/internal/pkg/xerrors"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/impl"
	"battle-tracker/internal/repository/interfaces"
)

// fakePublisher 记录全部通知
type fakePublisher struct {
	mu      sync.Mutex
	turns   []notify.TurnEvent
	started []notify.BattleEvent
	retired []notify.BattleEvent
}

func (f *fakePublisher) PublishTurn(_ context.Context, evt notify.TurnEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, evt)
	return nil
}

func (f *fakePublisher) PublishBattleStarted(_ context.Context, evt notify.BattleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, evt)
	return nil
}

func (f *fakePublisher) PublishBattleRetired(_ context.Context, evt notify.BattleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retired = append(f.retired, evt)
	return nil
}

type testEnv struct {
	db        *database.DB
	c         *ServiceContainer
	publisher *fakePublisher
	logDir    string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := database.Open(ctx, database.Config{URL: filepath.Join(dir, "tracker.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, impl.EnsureSchema(ctx, db))

	pub := &fakePublisher{}
	logDir := filepath.Join(dir, "battle_logs")
	c := NewServiceContainer(db, ContainerOptions{
		Parser:    parser.MustNew(2),
		Window:    100,
		QueueSize: 4,
		RawLogDir: logDir,
		Publisher: pub,
		Metrics:   metrics.NewTrackerMetricsWithRegistry("test", prometheus.NewRegistry()),
		Logger:    log.NewNopLogger(),
	})
	require.NoError(t, c.Sessions.Load(ctx))
	return &testEnv{db: db, c: c, publisher: pub, logDir: logDir}
}

func roundStart(current, maxRounds int, battleType string) string {
	return fmt.Sprintf("Initializing %s (Round %d / %d) ...", battleType, current, maxRounds)
}

func submit(t *testing.T, env *testEnv, ts float64, lines ...string) *SubmitResult {
	t.Helper()
	res, err := env.c.Ingest.Submit(context.Background(), []battle.RawSubmission{{Lines: lines, Time: ts}})
	require.NoError(t, err)
	return res
}

func TestIngest_RoundRegressionStartsOneNewBattle(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	first := submit(t, env, 100, roundStart(1, 10, "Arena"))
	assert.True(t, first.IsNewBattle)
	assert.Equal(t, string(ReasonFirstBattle), first.Reason)

	for i, ts := range []float64{101, 102} {
		res := submit(t, env, ts, roundStart(i+2, 10, "Arena"), "You gain 10 Credits!")
		assert.False(t, res.IsNewBattle)
		assert.Equal(t, first.BattleID, res.BattleID)
	}

	regressed := submit(t, env, 200, roundStart(1, 10, "Arena"))
	assert.True(t, regressed.IsNewBattle)
	assert.Equal(t, string(ReasonRoundRegressed), regressed.Reason)
	assert.Equal(t, first.BattleID, regressed.RetiredID)

	after := submit(t, env, 201, roundStart(2, 10, "Arena"))
	assert.False(t, after.IsNewBattle)
	assert.Equal(t, regressed.BattleID, after.BattleID)

	ids, err := env.c.Query.ListBattleIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.BattleID, regressed.BattleID}, ids)

	old, err := env.c.Query.GetBattle(ctx, first.BattleID)
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.NotNil(t, old.RetiredAt)

	events, err := env.c.Query.GetEvents(ctx, first.BattleID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []float64{0, 1, 2}, []float64{events[0].Time, events[1].Time, events[2].Time})

	live, err := env.c.Query.GetEvents(ctx, regressed.BattleID)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, 1.0, live[1].Time)

	n, err := env.c.turnRepo.CountByBattle(ctx, nil, first.BattleID)
	require.NoError(t, err)
	assert.Zero(t, n, "退役战斗不保留实时回合")

	assert.Equal(t, regressed.BattleID, env.c.Sessions.ActiveBattleID())
	assert.Len(t, env.publisher.started, 2)
	assert.Len(t, env.publisher.retired, 1)
	assert.Len(t, env.publisher.turns, 5)
}

func TestIngest_FinalizesAndRollsUpOnce(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	first := submit(t, env, 10, roundStart(1, 3, "Arena"), "Slime dropped [3x Gold Coin]")
	submit(t, env, 12, roundStart(2, 3, "Arena"), "Rat dropped [Shield]", "You gain 5 Credits!")
	second := submit(t, env, 50, roundStart(1, 20, "Grindfest"))
	assert.Equal(t, string(ReasonBattleTypeChanged), second.Reason)

	reports, err := env.c.Query.GetReports(ctx, first.BattleID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Gold Coin":3,"Shield":1,"Credits":5}`, string(reports[reporter.TypeTotalGains]))
	assert.JSONEq(t, `{"count":2,"total":2,"total_capped":2}`, string(reports[reporter.TypeTime]))
	assert.Contains(t, reports, reporter.TypeMeta)

	for _, reportType := range []string{reporter.TypeTotalGains, reporter.TypeTime} {
		rp, err := env.c.reportRepo.Get(ctx, nil, first.BattleID, reportType)
		require.NoError(t, err)
		assert.True(t, rp.Finalized)
		assert.JSONEq(t, `{}`, string(rp.State))
	}

	// 第三场战斗再次触发结算, 已结算的报告不会被重复并入汇总
	submit(t, env, 90, roundStart(1, 20, "Arena"))

	summaries, err := env.c.Query.ListSummaries(ctx)
	require.NoError(t, err)
	byType := map[string]SummaryView{}
	for _, s := range summaries {
		byType[s.Type] = s
	}
	require.Contains(t, byType, reporter.TypeTotalGains)
	assert.JSONEq(t, `{"Gold Coin":3,"Shield":1,"Credits":5}`, string(byType[reporter.TypeTotalGains].Data))
	assert.Equal(t, int64(2), byType[reporter.TypeTotalGains].BattleCount)
	assert.Equal(t, int64(2), byType[reporter.TypeTime].BattleCount)
}

func TestIngest_RejectsAndContinuation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	// 没有回合开始事件: 新建战斗但不写元数据
	first := submit(t, env, 5, "You gain 1 Credits!", "??? unknown line")
	assert.True(t, first.IsNewBattle)
	assert.Equal(t, 1, first.Rejects)

	second := submit(t, env, 6, "another unknown line")
	assert.Equal(t, first.BattleID, second.BattleID)
	assert.False(t, second.IsNewBattle)

	_, err := env.c.reportRepo.Get(ctx, nil, first.BattleID, reporter.TypeMeta)
	require.Error(t, err)

	// 第一个回合开始事件只补写元数据
	third := submit(t, env, 7, roundStart(4, 10, "Arena"))
	assert.False(t, third.IsNewBattle)
	_, err = env.c.reportRepo.Get(ctx, nil, first.BattleID, reporter.TypeMeta)
	require.NoError(t, err)

	view, err := env.c.Query.GetBattle(ctx, first.BattleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"??? unknown line", "another unknown line"}, view.Unparsed)

	events, err := env.c.Query.GetEvents(ctx, first.BattleID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Len(t, events[0].Events, 1)
	assert.Empty(t, events[1].Events)
}

func TestIngest_IncompleteMetaIsBoundary(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	first := submit(t, env, 1, roundStart(1, 10, "Arena"))
	require.NoError(t, env.c.reportRepo.Upsert(ctx, nil, &entity.BattleReport{
		BattleID: first.BattleID,
		Type:     reporter.TypeMeta,
		Data:     []byte(`{"battle_type":"Arena"}`),
	}))

	res := submit(t, env, 2, roundStart(2, 10, "Arena"))
	assert.True(t, res.IsNewBattle)
	assert.Equal(t, string(ReasonMetaIncomplete), res.Reason)
}

func TestIngest_EmptyBatch(t *testing.T) {
	env := setupEnv(t)
	_, err := env.c.Ingest.Submit(context.Background(), nil)
	require.True(t, xerrors.HasCode(err, xerrors.CodeIngestEmptyBatch))
}

func TestIngest_BroadcastsAfterCommit(t *testing.T) {
	env := setupEnv(t)

	res, err := env.c.Ingest.Submit(context.Background(), []battle.RawSubmission{
		{Lines: []string{roundStart(1, 5, "Arena")}, Time: 1},
		{Lines: []string{"You gain 3 EXP!"}, Time: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.FirstIndex)
	assert.Equal(t, int64(2), env.c.Tracker.NextIndex())

	got, err := env.c.Tracker.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, res.BattleID, got.BattleID)
	assert.Equal(t, 1, got.Seq)
	assert.Equal(t, 1.0, got.Turn.Time)
}

func TestIngest_PurgeCommits(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	first := submit(t, env, 1, roundStart(1, 10, "Arena"))
	deleted, err := env.c.Ingest.Purge(ctx, first.BattleID, true)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, env.c.Sessions.ActiveBattleID())

	_, err = env.c.Query.GetReports(ctx, first.BattleID)
	require.True(t, xerrors.HasCode(err, xerrors.CodeBattleNotFound))

	files, err := env.c.RawLogs.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	// 删除后重新开始
	next := submit(t, env, 2, roundStart(1, 10, "Arena"))
	assert.True(t, next.IsNewBattle)
}

func TestReplay_RebuildsRetiredBattle(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	first := submit(t, env, 10, roundStart(1, 3, "Arena"), "You gain 7 Credits!")
	submit(t, env, 11, roundStart(2, 3, "Arena"), "bad line")
	submit(t, env, 30, roundStart(1, 3, "Arena"))

	before, err := env.c.Query.GetEvents(ctx, first.BattleID)
	require.NoError(t, err)

	header, subs, err := rawlog.ReadFile(env.c.RawLogs.Path(first.BattleID))
	require.NoError(t, err)
	assert.Equal(t, first.BattleID, header.PK)
	assert.Equal(t, 10.0, header.Time)
	assert.Len(t, subs, 2)

	results, err := env.c.Replay.ReplayAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var replayed, skipped int
	for _, r := range results {
		if r.Skipped {
			skipped++
			continue
		}
		replayed++
		assert.Equal(t, first.BattleID, r.BattleID)
		assert.Equal(t, 1, r.Rejects)
	}
	assert.Equal(t, 1, replayed)
	assert.Equal(t, 1, skipped)

	after, err := env.c.Query.GetEvents(ctx, first.BattleID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	reports, err := env.c.Query.GetReports(ctx, first.BattleID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Credits":7}`, string(reports[reporter.TypeTotalGains]))
	assert.JSONEq(t, `{"battle_type":"Arena","last_round":2,"max_rounds":3}`, string(reports[reporter.TypeMeta]))

	summaries, err := env.c.Query.ListSummaries(ctx)
	require.NoError(t, err)
	for _, s := range summaries {
		assert.Equal(t, int64(1), s.BattleCount, "重放不修改汇总: %s", s.Type)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	env := setupEnv(t)

	_, err := env.c.Replay.ReplayFile(context.Background(), env.c.RawLogs.Path("ffffffffffffffffffffffffffffffff"))
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeFileSystemError))
}

// countingBattles 统计 GetActive 查询次数
type countingBattles struct {
	interfaces.BattleRepository
	getActive int
}

func (c *countingBattles) GetActive(ctx context.Context, execer boil.ContextExecutor) (*entity.Battle, error) {
	c.getActive++
	return c.BattleRepository.GetActive(ctx, execer)
}

func TestSessionManager_IdleCacheSkipsLookup(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	battles := &countingBattles{BattleRepository: impl.NewBattleRepository(env.db.DB)}
	m := NewSessionManager(battles, impl.NewBattleTurnRepository(env.db.DB), impl.NewBattleReportRepository(env.db.DB), log.NewNopLogger())
	require.NoError(t, m.Load(ctx))
	require.Equal(t, 1, battles.getActive)

	rs := &battle.RoundStart{BattleType: "Arena", Current: 1, Max: 3}
	var first *Resolution
	err := database.WithTx(ctx, env.db, func(ctx context.Context, tx boil.ContextExecutor) error {
		var err error
		first, err = m.Resolve(ctx, tx, rs, 10)
		return err
	})
	require.NoError(t, err)
	assert.True(t, first.IsNewBattle)
	assert.Equal(t, ReasonFirstBattle, first.Reason)
	assert.Equal(t, 1, battles.getActive, "空闲缓存不再查询进行中战斗")

	m.Commit(first)
	assert.Equal(t, first.Battle.ID, m.ActiveBattleID())

	err = database.WithTx(ctx, env.db, func(ctx context.Context, tx boil.ContextExecutor) error {
		res, err := m.Resolve(ctx, tx, &battle.RoundStart{BattleType: "Arena", Current: 2, Max: 3}, 11)
		if err == nil {
			assert.False(t, res.IsNewBattle)
			assert.Equal(t, first.Battle.ID, res.Battle.ID)
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, battles.getActive)

	m.Forget(first.Battle.ID)
	assert.Empty(t, m.ActiveBattleID())
}

func TestSessionManager_UnloadedCacheQueriesStore(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	submit(t, env, 10, roundStart(1, 3, "Arena"))

	battles := &countingBattles{BattleRepository: impl.NewBattleRepository(env.db.DB)}
	m := NewSessionManager(battles, impl.NewBattleTurnRepository(env.db.DB), impl.NewBattleReportRepository(env.db.DB), log.NewNopLogger())

	err := database.WithTx(ctx, env.db, func(ctx context.Context, tx boil.ContextExecutor) error {
		res, err := m.Resolve(ctx, tx, nil, 11)
		if err == nil {
			assert.False(t, res.IsNewBattle)
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, battles.getActive)
}
