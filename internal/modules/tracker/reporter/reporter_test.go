package reporter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/repository/entity"
)

const testBattleID = "0123456789abcdef0123456789abcdef"

func ev(eventType string, fields map[string]any) battle.Event {
	return battle.NewEvent(eventType, fields)
}

func turnAt(t float64, events ...battle.Event) battle.Turn {
	return battle.Turn{Time: t, Events: events}
}

func TestTotalGains_DropCounts(t *testing.T) {
	reg := NewRegistry(Options{})
	rp, _, err := reg.New(testBattleID, TypeTotalGains)
	require.NoError(t, err)

	rp.Consume(testBattleID, turnAt(1,
		ev(battle.EventDrop, map[string]any{"monster": "Slime", "item": "3x Gold Coin"}),
		ev(battle.EventDrop, map[string]any{"monster": "Slime", "item": "Shield"}),
		ev(battle.EventDrop, map[string]any{"monster": "Rat", "item": "2 Gold Coin"}),
	))

	data := rp.(*TotalGains).Data()
	assert.Equal(t, 5.0, data["Gold Coin"])
	assert.Equal(t, 1.0, data["Shield"])
}

func TestTotalGains_EventKinds(t *testing.T) {
	tests := []struct {
		name  string
		event battle.Event
		key   string
		want  float64
	}{
		{"宝石", ev(battle.EventGem, map[string]any{"monster": "Rat", "type": "Mystic Gem"}), "Mystic Gem", 1},
		{"金币", ev(battle.EventCredits, map[string]any{"value": 120.0}), "Credits", 120},
		{"熟练度", ev(battle.EventProficiency, map[string]any{"value": 0.5, "type": "staff"}), "staff", 0.5},
		{"经验", ev(battle.EventExperience, map[string]any{"value": 900.0}), "Experience", 900},
		{"自动分解", ev(battle.EventAutoSalvage, map[string]any{"value": 2.0, "item": "Scrap Cloth"}), "Scrap Cloth", 2},
		{"自动出售", ev(battle.EventAutoSell, map[string]any{"value": 250.0}), "Salvage Credits", 250},
		{"代币奖励", ev(battle.EventTokenBonus, map[string]any{"item": "Token of Blood"}), "Token of Blood", 1},
		{"活动物品", ev(battle.EventEventItem, map[string]any{"item": "Snowflake"}), "Snowflake", 1},
		{"通关奖励", ev(battle.EventClearBonus, map[string]any{"item": "Crystal"}), "Crystal", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp, _, err := NewRegistry(Options{}).New(testBattleID, TypeTotalGains)
			require.NoError(t, err)

			rp.Consume(testBattleID, turnAt(1, tt.event, tt.event))
			assert.Equal(t, tt.want*2, rp.(*TotalGains).Data()[tt.key])
		})
	}
}

func TestTotalGains_IgnoresOtherEvents(t *testing.T) {
	rp, report, err := NewRegistry(Options{}).New(testBattleID, TypeTotalGains)
	require.NoError(t, err)

	rp.Consume(testBattleID, turnAt(1, ev("PLAYER_BASIC", map[string]any{"value": 10.0})))
	require.NoError(t, rp.Encode(report))
	assert.JSONEq(t, `{}`, string(report.Data))
}

func TestTime_CountAndCappedTotal(t *testing.T) {
	rp, _, err := NewRegistry(Options{TimeGapCap: 10}).New(testBattleID, TypeTime)
	require.NoError(t, err)

	times := []float64{100, 101.5, 103, 160, 161, 161, 300}
	for _, ts := range times {
		rp.Consume(testBattleID, turnAt(ts))
	}

	data := rp.(*Time).Data()
	assert.Equal(t, int64(len(times)), data.Count)
	assert.InDelta(t, 200.0, data.Total, 1e-9)
	assert.InDelta(t, 1.5+1.5+10+1+0+10, data.TotalCapped, 1e-9)
	assert.LessOrEqual(t, data.TotalCapped, data.Total)
}

func TestTime_FirstTurnAtZero(t *testing.T) {
	rp, _, err := NewRegistry(Options{}).New(testBattleID, TypeTime)
	require.NoError(t, err)

	rp.Consume(testBattleID, turnAt(0))
	rp.Consume(testBattleID, turnAt(4))

	data := rp.(*Time).Data()
	assert.Equal(t, int64(2), data.Count)
	assert.Equal(t, 4.0, data.Total)
}

func TestTime_StateSurvivesReload(t *testing.T) {
	reg := NewRegistry(Options{})
	rp, report, err := reg.New(testBattleID, TypeTime)
	require.NoError(t, err)

	rp.Consume(testBattleID, turnAt(10))
	require.NoError(t, rp.Encode(report))

	reloaded, err := reg.Load(report)
	require.NoError(t, err)
	reloaded.Consume(testBattleID, turnAt(13))

	data := reloaded.(*Time).Data()
	assert.Equal(t, int64(2), data.Count)
	assert.Equal(t, 3.0, data.Total)
}

func TestReporter_FinalizeIdempotent(t *testing.T) {
	reg := NewRegistry(Options{})

	for _, reportType := range reg.Types() {
		t.Run(reportType, func(t *testing.T) {
			rp, report, err := reg.New(testBattleID, reportType)
			require.NoError(t, err)
			rp.Consume(testBattleID, turnAt(1, ev(battle.EventCredits, map[string]any{"value": 5.0})))
			rp.Consume(testBattleID, turnAt(2))

			require.True(t, rp.Finalize())
			require.NoError(t, rp.Encode(report))
			assert.JSONEq(t, `{}`, string(report.State))
			assert.True(t, report.Finalized)
			firstData := string(report.Data)

			require.False(t, rp.Finalize())
			require.NoError(t, rp.Encode(report))
			assert.JSONEq(t, `{}`, string(report.State))
			assert.True(t, report.Finalized)
			assert.JSONEq(t, firstData, string(report.Data))

			reloaded, err := reg.Load(report)
			require.NoError(t, err)
			assert.True(t, reloaded.Finalized())
			assert.False(t, reloaded.Finalize())
		})
	}
}

func TestReporter_PanicsOnForeignBattle(t *testing.T) {
	reg := NewRegistry(Options{})

	for _, reportType := range reg.Types() {
		rp, _, err := reg.New(testBattleID, reportType)
		require.NoError(t, err)
		assert.Panics(t, func() {
			rp.Consume("ffffffffffffffffffffffffffffffff", turnAt(1))
		}, reportType)
	}
}

func TestRegistry_Order(t *testing.T) {
	reg := NewRegistry(Options{})

	assert.Equal(t, []string{TypeTotalGains, TypeTime}, reg.Types())
	assert.False(t, reg.Has(TypeMeta))

	_, err := reg.Load(&entity.BattleReport{BattleID: testBattleID, Type: "Unknown"})
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistry_LoadCorruptData(t *testing.T) {
	reg := NewRegistry(Options{})

	_, err := reg.Load(&entity.BattleReport{BattleID: testBattleID, Type: TypeTime, Data: []byte(`{"count": "x"}`)})
	require.Error(t, err)
}

func TestMeta_RoundTrip(t *testing.T) {
	m := NewMeta(battle.RoundStart{BattleType: "Arena", Current: 2, Max: 5})
	require.True(t, m.Complete())

	raw, err := m.Encode()
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, map[string]any{"battle_type": "Arena", "last_round": 2.0, "max_rounds": 5.0}, generic)

	back, err := DecodeMeta(raw)
	require.NoError(t, err)
	assert.Equal(t, "Arena", *back.BattleType)
	assert.Equal(t, int64(2), *back.LastRound)

	partial, err := DecodeMeta([]byte(`{"battle_type": "Arena"}`))
	require.NoError(t, err)
	assert.False(t, partial.Complete())
}
