package impl

import (
	"context"
	"testing"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-tracker/internal/pkg/database"
	"battle-tracker/internal/repository/entity"
	"battle-tracker/internal/repository/interfaces"
)

func TestBattleRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBattleRepository(db.DB)
	ctx := context.Background()

	b := &entity.Battle{Active: true, StartTime: 1000.5}
	require.NoError(t, repo.Create(ctx, nil, b))
	assert.Len(t, b.ID, 32)
	assert.NotZero(t, b.CreatedAt)

	got, err := repo.GetByID(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 1000.5, got.StartTime)
	assert.JSONEq(t, `[]`, string(got.Unparsed))
	assert.JSONEq(t, `{}`, string(got.Meta))
	assert.False(t, got.IsRetired())

	active, err := repo.GetActive(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	_, err = repo.GetByID(ctx, nil, "ffffffffffffffffffffffffffffffff")
	require.ErrorIs(t, err, interfaces.ErrBattleNotFound)
}

func TestBattleRepository_SingleActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBattleRepository(db.DB)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, nil, &entity.Battle{Active: true}))
	err := repo.Create(ctx, nil, &entity.Battle{Active: true})
	require.Error(t, err, "同一时间只能有一个进行中的战斗")
}

func TestBattleRepository_RetireThenCreateInTx(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBattleRepository(db.DB)
	ctx := context.Background()

	old := &entity.Battle{Active: true}
	require.NoError(t, repo.Create(ctx, nil, old))

	var next entity.Battle
	err := database.WithTx(ctx, db, func(ctx context.Context, tx boil.ContextExecutor) error {
		if err := repo.Retire(ctx, tx, old.ID, []byte{0x78, 0x9c}, 42); err != nil {
			return err
		}
		next = entity.Battle{Active: true, StartTime: 7}
		return repo.Create(ctx, tx, &next)
	})
	require.NoError(t, err)

	retired, err := repo.GetByID(ctx, nil, old.ID)
	require.NoError(t, err)
	assert.False(t, retired.Active)
	assert.True(t, retired.IsRetired())
	assert.Equal(t, int64(42), retired.RetiredAt.Int64)
	assert.Equal(t, []byte{0x78, 0x9c}, retired.Archive)

	active, err := repo.GetActive(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, next.ID, active.ID)

	ids, err := repo.ListIDs(ctx, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{old.ID, next.ID}, ids)

	expired, err := repo.ListRetiredBefore(ctx, nil, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, expired)
}

func TestBattleRepository_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBattleRepository(db.DB)
	ctx := context.Background()

	b := &entity.Battle{Active: true}
	require.NoError(t, repo.Create(ctx, nil, b))

	b.Unparsed = types.JSON(`["garbage"]`)
	b.Meta = types.JSON(`{"battle_type":"Arena"}`)
	require.NoError(t, repo.Update(ctx, nil, b))

	got, err := repo.GetByID(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `["garbage"]`, string(got.Unparsed))
	assert.JSONEq(t, `{"battle_type":"Arena"}`, string(got.Meta))

	deleted, err := repo.Delete(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	err = repo.Update(ctx, nil, b)
	require.ErrorIs(t, err, interfaces.ErrBattleNotFound)
}

func TestBattleTurnRepository_AppendAndList(t *testing.T) {
	db := setupTestDB(t)
	battles := NewBattleRepository(db.DB)
	turns := NewBattleTurnRepository(db.DB)
	ctx := context.Background()

	b := &entity.Battle{Active: true}
	require.NoError(t, battles.Create(ctx, nil, b))

	for i := 0; i < 3; i++ {
		turn := &entity.BattleTurn{
			BattleID:   b.ID,
			Seq:        i,
			Events:     types.JSON(`[{"event_type":"CREDITS","value":1}]`),
			TimeOffset: float64(i),
		}
		require.NoError(t, turns.Append(ctx, nil, turn))
		assert.NotZero(t, turn.ID)
	}

	err := turns.Append(ctx, nil, &entity.BattleTurn{BattleID: b.ID, Seq: 1})
	require.Error(t, err, "序号重复")

	list, err := turns.ListByBattle(ctx, nil, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, turn := range list {
		assert.Equal(t, i, turn.Seq)
		assert.JSONEq(t, `{}`, string(turn.Meta))
	}

	n, err := turns.CountByBattle(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := turns.DeleteByBattle(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestBattleReportRepository_UpsertKeepsFinalized(t *testing.T) {
	db := setupTestDB(t)
	battles := NewBattleRepository(db.DB)
	reports := NewBattleReportRepository(db.DB)
	ctx := context.Background()

	b := &entity.Battle{Active: true}
	require.NoError(t, battles.Create(ctx, nil, b))

	rp := &entity.BattleReport{BattleID: b.ID, Type: "Time", Data: types.JSON(`{"count":1}`)}
	require.NoError(t, reports.Upsert(ctx, nil, rp))
	firstID := rp.ID

	rp.Finalized = true
	rp.Data = types.JSON(`{"count":2}`)
	require.NoError(t, reports.Upsert(ctx, nil, rp))
	assert.Equal(t, firstID, rp.ID)

	rp.Finalized = false
	require.NoError(t, reports.Upsert(ctx, nil, rp))

	got, err := reports.Get(ctx, nil, b.ID, "Time")
	require.NoError(t, err)
	assert.True(t, got.Finalized)
	assert.JSONEq(t, `{"count":2}`, string(got.Data))

	_, err = reports.Get(ctx, nil, b.ID, "TotalGains")
	require.ErrorIs(t, err, interfaces.ErrReportNotFound)
}

func TestBattleReportRepository_ListUnfinalized(t *testing.T) {
	db := setupTestDB(t)
	battles := NewBattleRepository(db.DB)
	reports := NewBattleReportRepository(db.DB)
	ctx := context.Background()

	old := &entity.Battle{}
	cur := &entity.Battle{Active: true}
	require.NoError(t, battles.Create(ctx, nil, old))
	require.NoError(t, battles.Create(ctx, nil, cur))

	for _, rp := range []*entity.BattleReport{
		{BattleID: old.ID, Type: "Time"},
		{BattleID: old.ID, Type: "TotalGains", Finalized: true},
		{BattleID: old.ID, Type: metaReportType},
		{BattleID: cur.ID, Type: "Time"},
	} {
		require.NoError(t, reports.Upsert(ctx, nil, rp))
	}

	list, err := reports.ListUnfinalized(ctx, nil, cur.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, old.ID, list[0].BattleID)
	assert.Equal(t, "Time", list[0].Type)

	all, err := reports.ListByBattle(ctx, nil, old.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	removed, err := reports.DeleteByBattle(ctx, nil, old.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestBattleRepository_DeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	battles := NewBattleRepository(db.DB)
	turns := NewBattleTurnRepository(db.DB)
	reports := NewBattleReportRepository(db.DB)
	ctx := context.Background()

	b := &entity.Battle{Active: true}
	require.NoError(t, battles.Create(ctx, nil, b))
	require.NoError(t, turns.Append(ctx, nil, &entity.BattleTurn{BattleID: b.ID, Seq: 0}))
	require.NoError(t, reports.Upsert(ctx, nil, &entity.BattleReport{BattleID: b.ID, Type: "Time"}))

	_, err := battles.Delete(ctx, nil, b.ID)
	require.NoError(t, err)

	n, err := turns.CountByBattle(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := reports.ListByBattle(ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSummaryRepository_Upsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSummaryRepository(db.DB)
	ctx := context.Background()

	_, err := repo.Get(ctx, nil, "Time")
	require.ErrorIs(t, err, interfaces.ErrSummaryNotFound)

	s := &entity.Summary{Type: "Time", Data: types.JSON(`{"count":3}`), State: types.JSON(`{"battle_count":1}`)}
	require.NoError(t, repo.Upsert(ctx, nil, s))

	s.Data = types.JSON(`{"count":5}`)
	require.NoError(t, repo.Upsert(ctx, nil, s))
	require.NoError(t, repo.Upsert(ctx, nil, &entity.Summary{Type: "TotalGains"}))

	got, err := repo.Get(ctx, nil, "Time")
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":5}`, string(got.Data))
	assert.JSONEq(t, `{"battle_count":1}`, string(got.State))

	list, err := repo.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Time", list[0].Type)
	assert.Equal(t, "TotalGains", list[1].Type)
}
