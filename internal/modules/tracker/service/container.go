package service

import (
	"battle-tracker/internal/modules/tracker/aggregator"
	"battle-tracker/internal/modules/tracker/broadcast"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/pkg/database"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/rawlog"
	"battle-tracker/internal/repository/impl"
	"battle-tracker/internal/repository/interfaces"
)

// ContainerOptions 可选依赖, 零值即可运行
type ContainerOptions struct {
	Parser      LineParser
	ReportOpts  reporter.Options
	Window      int
	QueueSize   int
	RawLogDir   string
	Publisher   EventPublisher
	ReportCache interface {
		ReportCache
		CacheInvalidator
	}
	Metrics *metrics.TrackerMetrics
	Logger  log.Logger
}

// ServiceContainer 追踪服务容器 - 统一管理所有 Repository 和 Service
type ServiceContainer struct {
	battleRepo  interfaces.BattleRepository
	turnRepo    interfaces.BattleTurnRepository
	reportRepo  interfaces.BattleReportRepository
	summaryRepo interfaces.SummaryRepository

	Sessions     *SessionManager
	Tracker      *broadcast.TurnTracker
	Registry     *reporter.Registry
	Aggregator   *aggregator.Aggregator
	RawLogs      *rawlog.Store
	Ingest       *IngestService
	IngestWorker *IngestWorker
	Query        *QueryService
	Replay       *ReplayService
}

// NewServiceContainer 创建服务容器
func NewServiceContainer(db *database.DB, opts ContainerOptions) *ServiceContainer {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultTrackerMetrics
	}

	c := &ServiceContainer{}

	// 初始化所有 Repository
	c.battleRepo = impl.NewBattleRepository(db.DB)
	c.turnRepo = impl.NewBattleTurnRepository(db.DB)
	c.reportRepo = impl.NewBattleReportRepository(db.DB)
	c.summaryRepo = impl.NewSummaryRepository(db.DB)

	assembler := NewAssembler(opts.Parser)
	c.Sessions = NewSessionManager(c.battleRepo, c.turnRepo, c.reportRepo, opts.Logger)
	c.Tracker = broadcast.NewTurnTracker(opts.Window, opts.Metrics)
	c.Registry = reporter.NewRegistry(opts.ReportOpts)
	c.Aggregator = aggregator.New(c.summaryRepo, opts.Metrics, opts.Logger)
	c.RawLogs = rawlog.NewStore(opts.RawLogDir)

	var (
		cache       ReportCache
		invalidator CacheInvalidator
	)
	if opts.ReportCache != nil {
		cache, invalidator = opts.ReportCache, opts.ReportCache
	}

	c.Ingest = NewIngestService(IngestDeps{
		DB:         db,
		Assembler:  assembler,
		Sessions:   c.Sessions,
		Registry:   c.Registry,
		Aggregator: c.Aggregator,
		Battles:    c.battleRepo,
		Turns:      c.turnRepo,
		Reports:    c.reportRepo,
		Tracker:    c.Tracker,
		Publisher:  opts.Publisher,
		RawLogs:    c.RawLogs,
		Cache:      invalidator,
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
	})
	c.IngestWorker = NewIngestWorker(c.Ingest, opts.QueueSize, opts.Metrics, opts.Logger)
	c.Query = NewQueryService(c.battleRepo, c.turnRepo, c.reportRepo, c.summaryRepo, cache)
	c.Replay = NewReplayService(db, assembler, c.Registry, c.battleRepo, c.turnRepo, c.reportRepo, c.RawLogs, opts.Logger)
	return c
}

// GetBattleRepository 供定时任务使用
func (c *ServiceContainer) GetBattleRepository() interfaces.BattleRepository {
	return c.battleRepo
}
