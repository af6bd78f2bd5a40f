package service

import (
	"context"
	"sync"
	"time"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/trace"
	"battle-tracker/internal/pkg/xerrors"
)

// Submitter 同步提交接口
type Submitter interface {
	Submit(ctx context.Context, subs []battle.RawSubmission) (*SubmitResult, error)
}

type ingestJob struct {
	subs     []battle.RawSubmission
	traceID  string
	queuedAt time.Time
	// 同步提交等待结果, 异步提交为 nil
	reply chan ingestReply
}

type ingestReply struct {
	res *SubmitResult
	err error
}

// IngestWorker 单协程消费有界队列, 保证提交按到达顺序处理
type IngestWorker struct {
	svc     Submitter
	queue   chan ingestJob
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	timeout time.Duration

	metrics *metrics.TrackerMetrics
	logger  log.Logger
	service string
}

// NewIngestWorker size <= 0 时使用 64
func NewIngestWorker(svc Submitter, size int, m *metrics.TrackerMetrics, logger log.Logger) *IngestWorker {
	if size <= 0 {
		size = 64
	}
	if m == nil {
		m = metrics.DefaultTrackerMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &IngestWorker{
		svc:     svc,
		queue:   make(chan ingestJob, size),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		timeout: 30 * time.Second,
		metrics: m,
		logger:  logger.With("component", "ingest_worker"),
		service: metrics.GetServiceName(),
	}
}

// Enqueue 非阻塞入队; 队列已满返回 CodeIngestQueueFull
func (w *IngestWorker) Enqueue(ctx context.Context, subs []battle.RawSubmission) error {
	return w.push(ctx, subs, nil)
}

// SubmitAndWait 与异步提交走同一队列, 排在之前入队的批次之后处理并返回结果。
// ctx 结束时不再等待, 已入队的批次仍会被处理
func (w *IngestWorker) SubmitAndWait(ctx context.Context, subs []battle.RawSubmission) (*SubmitResult, error) {
	reply := make(chan ingestReply, 1)
	if err := w.push(ctx, subs, reply); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *IngestWorker) push(ctx context.Context, subs []battle.RawSubmission, reply chan ingestReply) error {
	if len(subs) == 0 {
		return xerrors.FromCode(xerrors.CodeIngestEmptyBatch)
	}
	select {
	case <-w.done:
		return xerrors.FromCode(xerrors.CodeIngestStopped)
	default:
	}

	job := ingestJob{subs: subs, traceID: trace.GetTraceID(ctx), queuedAt: time.Now(), reply: reply}
	select {
	case w.queue <- job:
		w.metrics.SetQueueDepth(len(w.queue), w.service)
		return nil
	default:
		return xerrors.NewIngestQueueFullError(cap(w.queue))
	}
}

// Depth 当前排队的批次数
func (w *IngestWorker) Depth() int {
	return len(w.queue)
}

// Run 阻塞运行直到 ctx 结束或 Stop; 退出前处理完已入队的批次
func (w *IngestWorker) Run(ctx context.Context) {
	defer close(w.stopped)
	for {
		select {
		case job := <-w.queue:
			w.handle(ctx, job)
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return
		case <-w.done:
			w.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

// Stop 停止接收新批次并等待 Run 退出
func (w *IngestWorker) Stop() {
	w.once.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *IngestWorker) drain(ctx context.Context) {
	for {
		select {
		case job := <-w.queue:
			w.handle(ctx, job)
		default:
			return
		}
	}
}

func (w *IngestWorker) handle(ctx context.Context, job ingestJob) {
	w.metrics.SetQueueDepth(len(w.queue), w.service)

	ctx, cancel := context.WithTimeout(trace.WithTraceID(ctx, job.traceID), w.timeout)
	defer cancel()

	res, err := w.svc.Submit(ctx, job.subs)
	if job.reply != nil {
		job.reply <- ingestReply{res: res, err: err}
		return
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "异步提交处理失败", err,
			log.Int("submissions", len(job.subs)),
			log.Duration("queued", time.Since(job.queuedAt).Milliseconds()),
		)
		return
	}
	w.logger.DebugContext(ctx, "异步提交已处理",
		log.String("battle_id", res.BattleID),
		log.Int("turns", res.Turns),
		log.Int("rejects", res.Rejects),
	)
}
