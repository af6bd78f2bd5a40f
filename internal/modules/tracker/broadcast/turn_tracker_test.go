package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/pkg/metrics"
)

func newTestTracker(window int) *TurnTracker {
	return NewTurnTracker(window, metrics.NewTrackerMetricsWithRegistry("test", prometheus.NewRegistry()))
}

func insertN(tr *TurnTracker, n int) {
	for i := 0; i < n; i++ {
		tr.Insert("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", i, battle.ArchivedTurn{Time: float64(i)})
	}
}

func TestTurnTracker_Window(t *testing.T) {
	tr := newTestTracker(100)
	insertN(tr, 150)
	ctx := context.Background()

	assert.Equal(t, int64(150), tr.NextIndex())
	assert.Equal(t, int64(50), tr.Oldest())

	_, err := tr.Get(ctx, 40)
	require.ErrorIs(t, err, ErrTurnEvicted)

	got, err := tr.Get(ctx, 120)
	require.NoError(t, err)
	assert.Equal(t, int64(120), got.Index)
	assert.Equal(t, 120.0, got.Turn.Time)

	got, err = tr.Get(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.Index)

	done := make(chan TrackedTurn, 1)
	go func() {
		turn, err := tr.Get(ctx, 150)
		if err == nil {
			done <- turn
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("150 尚未插入时不应返回")
	case <-time.After(50 * time.Millisecond):
	}

	idx := tr.Insert("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 0, battle.ArchivedTurn{Time: 0})
	assert.Equal(t, int64(150), idx)

	select {
	case turn, ok := <-done:
		require.True(t, ok)
		assert.Equal(t, int64(150), turn.Index)
		assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", turn.BattleID)
	case <-time.After(2 * time.Second):
		t.Fatal("插入后等待者未被唤醒")
	}
}

func TestTurnTracker_InvalidIndex(t *testing.T) {
	tr := newTestTracker(10)
	_, err := tr.Get(context.Background(), -1)
	require.ErrorIs(t, err, ErrInvalidIndex)
}

func TestTurnTracker_CancelOnlyAffectsOneFollower(t *testing.T) {
	tr := newTestTracker(10)

	cancelled, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Get(cancelled, 0)
		errCh <- err
	}()

	okCh := make(chan TrackedTurn, 1)
	go func() {
		turn, err := tr.Get(context.Background(), 0)
		if err == nil {
			okCh <- turn
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("取消后应立即返回")
	}

	tr.Insert("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 0, battle.ArchivedTurn{})
	select {
	case turn := <-okCh:
		assert.Equal(t, int64(0), turn.Index)
	case <-time.After(2 * time.Second):
		t.Fatal("未取消的跟随者应收到回合")
	}
}

func TestTurnTracker_ManyWaitersWokenOnce(t *testing.T) {
	tr := newTestTracker(10)
	const followers = 20

	results := make(chan int64, followers)
	for i := 0; i < followers; i++ {
		go func() {
			turn, err := tr.Get(context.Background(), 2)
			if err == nil {
				results <- turn.Index
			}
		}()
	}

	insertN(tr, 3)
	for i := 0; i < followers; i++ {
		select {
		case idx := <-results:
			assert.Equal(t, int64(2), idx)
		case <-time.After(2 * time.Second):
			t.Fatalf("只收到 %d 个结果", i)
		}
	}
}
