package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/xerrors"
)

// fakeParser 以 "bad" 开头的行视为无法解析, 并记录收到的行顺序
type fakeParser struct {
	seen []string
}

func (f *fakeParser) ParseBatch(_ context.Context, lines []string) ([]*battle.Event, error) {
	f.seen = append(f.seen, lines...)
	out := make([]*battle.Event, len(lines))
	for i, line := range lines {
		if strings.HasPrefix(line, "bad") {
			continue
		}
		ev := battle.NewEvent("LINE", map[string]any{"line": line})
		out[i] = &ev
	}
	return out, nil
}

func TestAssembler_SortsByTimeAndKeepsSubmissionOrder(t *testing.T) {
	p := &fakeParser{}
	a := NewAssembler(p)

	subs := []battle.RawSubmission{
		{Lines: []string{"c1", "bad c2"}, Time: 3},
		{Lines: []string{"a1"}, Time: 1},
		{Lines: []string{"b1", "b2"}, Time: 2},
	}
	turns, rejects, err := a.Assemble(context.Background(), subs)
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "b1", "b2", "c1", "bad c2"}, p.seen)
	assert.Equal(t, []string{"bad c2"}, rejects)

	require.Len(t, turns, 3)
	for i, sub := range subs {
		assert.Equal(t, sub.Time, turns[i].Time)
	}
	assert.Equal(t, "c1", turns[0].Events[0].Fields["line"])
	assert.Len(t, turns[0].Events, 1)
	assert.Equal(t, "a1", turns[1].Events[0].Fields["line"])
	assert.Equal(t, "b2", turns[2].Events[1].Fields["line"])
}

func TestAssembler_EmptySubmissionKeepsTurn(t *testing.T) {
	a := NewAssembler(&fakeParser{})

	turns, rejects, err := a.Assemble(context.Background(), []battle.RawSubmission{{Time: 7}})
	require.NoError(t, err)
	assert.Empty(t, rejects)
	require.Len(t, turns, 1)
	assert.Empty(t, turns[0].Events)
}

func strPtr(s string) *string { return &s }
func intPtr(n int64) *int64   { return &n }

func TestDetectBoundary(t *testing.T) {
	complete := reporter.Meta{BattleType: strPtr("Arena"), LastRound: intPtr(3), MaxRounds: intPtr(10)}

	tests := []struct {
		name string
		meta reporter.Meta
		rs   battle.RoundStart
		want BoundaryReason
	}{
		{"同一战斗下一回合", complete, battle.RoundStart{BattleType: "Arena", Current: 4, Max: 10}, ""},
		{"同一回合重复", complete, battle.RoundStart{BattleType: "Arena", Current: 3, Max: 10}, ""},
		{"战斗类型变化", complete, battle.RoundStart{BattleType: "Grindfest", Current: 4, Max: 10}, ReasonBattleTypeChanged},
		{"回合上限变化", complete, battle.RoundStart{BattleType: "Arena", Current: 4, Max: 20}, ReasonMaxRoundsChanged},
		{"回合倒退", complete, battle.RoundStart{BattleType: "Arena", Current: 1, Max: 10}, ReasonRoundRegressed},
		{"缺少last_round", reporter.Meta{BattleType: strPtr("Arena"), MaxRounds: intPtr(10)}, battle.RoundStart{BattleType: "Arena", Current: 4, Max: 10}, ReasonMetaIncomplete},
		{"空元数据", reporter.Meta{}, battle.RoundStart{BattleType: "Arena", Current: 1, Max: 10}, ReasonMetaIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectBoundary(tt.meta, tt.rs))
		})
	}
}

// blockingSubmitter 在 release 关闭前阻塞
type blockingSubmitter struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingSubmitter) Submit(ctx context.Context, subs []battle.RawSubmission) (*SubmitResult, error) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return &SubmitResult{Turns: len(subs)}, nil
}

func (b *blockingSubmitter) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// recordingSubmitter 按处理顺序记录每个批次第一条提交的时间
type recordingSubmitter struct {
	mu    sync.Mutex
	order []float64
}

func (r *recordingSubmitter) Submit(ctx context.Context, subs []battle.RawSubmission) (*SubmitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, subs[0].Time)
	return &SubmitResult{Turns: len(subs)}, nil
}

func (r *recordingSubmitter) processed() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.order...)
}

func newTestWorker(svc Submitter, size int) *IngestWorker {
	m := metrics.NewTrackerMetricsWithRegistry("test", prometheus.NewRegistry())
	return NewIngestWorker(svc, size, m, log.NewNopLogger())
}

func TestIngestWorker_QueueFull(t *testing.T) {
	svc := &blockingSubmitter{release: make(chan struct{})}
	w := newTestWorker(svc, 2)
	batch := []battle.RawSubmission{{Lines: []string{"x"}, Time: 1}}

	require.NoError(t, w.Enqueue(context.Background(), batch))
	require.NoError(t, w.Enqueue(context.Background(), batch))

	err := w.Enqueue(context.Background(), batch)
	require.True(t, xerrors.HasCode(err, xerrors.CodeIngestQueueFull))
	assert.Equal(t, 2, w.Depth())

	err = w.Enqueue(context.Background(), nil)
	require.True(t, xerrors.HasCode(err, xerrors.CodeIngestEmptyBatch))

	close(svc.release)
	go w.Run(context.Background())
	require.Eventually(t, func() bool { return svc.count() == 2 }, time.Second, 5*time.Millisecond)

	w.Stop()
	err = w.Enqueue(context.Background(), batch)
	require.True(t, xerrors.HasCode(err, xerrors.CodeIngestStopped))
}

func TestIngestWorker_DrainsOnStop(t *testing.T) {
	svc := &blockingSubmitter{release: make(chan struct{})}
	close(svc.release)
	w := newTestWorker(svc, 8)
	batch := []battle.RawSubmission{{Lines: []string{"x"}, Time: 1}}

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Enqueue(context.Background(), batch))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Equal(t, 5, svc.count())
}

func TestIngestWorker_SubmitAndWaitKeepsArrivalOrder(t *testing.T) {
	svc := &recordingSubmitter{}
	w := newTestWorker(svc, 4)
	ctx := context.Background()

	// worker 启动前先有一个异步批次在排队
	require.NoError(t, w.Enqueue(ctx, []battle.RawSubmission{{Lines: []string{"a"}, Time: 1}}))

	type result struct {
		res *SubmitResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := w.SubmitAndWait(ctx, []battle.RawSubmission{{Lines: []string{"b"}, Time: 2}, {Lines: []string{"c"}, Time: 3}})
		done <- result{res, err}
	}()
	require.Eventually(t, func() bool { return w.Depth() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, w.Enqueue(ctx, []battle.RawSubmission{{Lines: []string{"d"}, Time: 4}}))

	go w.Run(ctx)
	defer w.Stop()

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, 2, got.res.Turns)
	require.Eventually(t, func() bool { return len(svc.processed()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []float64{1, 2, 4}, svc.processed())
}

func TestIngestWorker_SubmitAndWaitErrors(t *testing.T) {
	w := newTestWorker(&recordingSubmitter{}, 1)

	_, err := w.SubmitAndWait(context.Background(), nil)
	require.True(t, xerrors.HasCode(err, xerrors.CodeIngestEmptyBatch))

	require.NoError(t, w.Enqueue(context.Background(), []battle.RawSubmission{{Lines: []string{"a"}, Time: 1}}))
	_, err = w.SubmitAndWait(context.Background(), []battle.RawSubmission{{Lines: []string{"b"}, Time: 2}})
	require.True(t, xerrors.HasCode(err, xerrors.CodeIngestQueueFull))

	// 调用方放弃等待
	w = newTestWorker(&recordingSubmitter{}, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = w.SubmitAndWait(ctx, []battle.RawSubmission{{Lines: []string{"c"}, Time: 3}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
