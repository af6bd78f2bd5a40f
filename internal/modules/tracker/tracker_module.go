package tracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	custommiddleware "battle-tracker/internal/middleware"
	"battle-tracker/internal/modules/tracker/handler"
	"battle-tracker/internal/modules/tracker/parser"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/modules/tracker/service"
	"battle-tracker/internal/modules/tracker/tasks"
	"battle-tracker/internal/pkg/config"
	"battle-tracker/internal/pkg/database"
	"battle-tracker/internal/pkg/i18n"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	natsHealth "battle-tracker/internal/pkg/nats"
	"battle-tracker/internal/pkg/notify"
	redisClient "battle-tracker/internal/pkg/redis"
	"battle-tracker/internal/pkg/reportcache"
	"battle-tracker/internal/pkg/response"
	"battle-tracker/internal/pkg/trace"
	"battle-tracker/internal/pkg/validator"
	"battle-tracker/internal/repository/impl"

	"github.com/labstack/echo/v4"
	"github.com/liangdas/mqant/conf"
	"github.com/liangdas/mqant/module"
	basemodule "github.com/liangdas/mqant/module/base"
	"github.com/liangdas/mqant/server"
)

type TrackerModule struct {
	basemodule.BaseModule
	cfg              *config.TrackerConfig
	db               *database.DB
	redis            *redisClient.Client
	natsHealth       *natsHealth.HealthChecker
	httpServer       *echo.Echo
	serviceContainer *service.ServiceContainer
	logHandler       *handler.LogHandler
	battleHandler    *handler.BattleHandler
	followHandler    *handler.FollowHandler
	rpcHandler       *handler.TrackerRPCHandler
	retentionTask    *tasks.RetentionTask
	respWriter       response.Writer

	// 后台协程（连接池监控、入库队列、NATS 健康检查）共用
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// GetType returns module type
func (m *TrackerModule) GetType() string {
	return "tracker"
}

// Version returns module version
func (m *TrackerModule) Version() string {
	return "1.0.0"
}

// OnAppConfigurationLoaded 当App初始化时调用
func (m *TrackerModule) OnAppConfigurationLoaded(app module.App) {
	m.BaseModule.OnAppConfigurationLoaded(app)
}

// OnInit module initialization
func (m *TrackerModule) OnInit(app module.App, settings *conf.ModuleSettings) {
	metrics.SetServiceName("tracker")
	// TTL = 30s, 心跳间隔 = 15s (TTL 必须大于心跳间隔)
	m.BaseModule.OnInit(m, app, settings,
		server.RegisterInterval(15*time.Second),
		server.RegisterTTL(30*time.Second),
	)
	m.bgCtx, m.bgCancel = context.WithCancel(context.Background())

	// 1. Load configuration
	if err := m.initConfig(settings); err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// 2. Initialize database connection
	if err := m.initDatabase(); err != nil {
		panic(fmt.Sprintf("Failed to initialize database: %v", err))
	}

	// 3. Initialize Redis (optional, report cache L2)
	m.initRedis()

	// 4. Initialize NATS health checker
	m.initNatsHealth()

	// 5. Initialize response writer
	m.initResponseWriter()

	// 6. Initialize HTTP server
	m.initHTTPServer()

	// 7. Initialize Services and Handlers
	if err := m.initServicesAndHandlers(); err != nil {
		panic(fmt.Sprintf("Failed to initialize services: %v", err))
	}

	// 8. Setup routes
	m.setupRoutes()

	// 9. Setup RPC methods
	m.setupRPCMethods()

	// 10. Start cron tasks
	m.startCronTasks()

	// 11. Start HTTP server in background
	go m.startHTTPServer()

	m.GetServer().Options()
}

// initConfig 环境变量优先, 模块配置兜底
func (m *TrackerModule) initConfig(settings *conf.ModuleSettings) error {
	cfg, err := config.LoadTrackerConfig()
	if err != nil {
		return err
	}
	if settings != nil {
		cfg.ApplyModuleSettings(settings.Settings)
	}
	m.cfg = cfg

	log.Info("[Tracker Module] 配置加载完成", "config", cfg.LogFields())
	return nil
}

// initDatabase initializes database connection and schema
func (m *TrackerModule) initDatabase() error {
	ctx, cancel := context.WithTimeout(m.bgCtx, 30*time.Second)
	defer cancel()

	db, err := database.Open(ctx, database.Config{
		URL:             m.cfg.DatabaseURL,
		MaxOpenConns:    m.cfg.DBMaxOpenConns,
		MaxIdleConns:    m.cfg.DBMaxIdleConns,
		ConnMaxLifetime: m.cfg.DBConnLifetime,
	})
	if err != nil {
		return err
	}
	if err := impl.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	m.db = db
	fmt.Printf("[Tracker Module] Database initialized successfully (dialect: %s)\n", db.Dialect)

	// 启动数据库连接池监控
	go db.StartPoolMonitor(m.bgCtx, metrics.GetServiceName(), 30*time.Second)

	return nil
}

// initRedis Redis 不可用时只使用进程内缓存
func (m *TrackerModule) initRedis() {
	if !m.cfg.RedisEnabled {
		fmt.Println("[Tracker Module] Redis disabled, report cache uses in-process store only")
		return
	}

	client, err := redisClient.NewClient(redisClient.Config{
		Host:     m.cfg.RedisHost,
		Port:     m.cfg.RedisPort,
		Password: m.cfg.RedisPassword,
		DB:       m.cfg.RedisDB,
	}, metrics.GetServiceName())
	if err != nil {
		fmt.Printf("[Tracker Module] Failed to connect to Redis: %v, falling back to in-process cache\n", err)
		return
	}

	m.redis = client
	go client.StartPoolMonitor(m.bgCtx, 30*time.Second)
	fmt.Printf("[Tracker Module] Redis connected successfully (Host: %s:%d, DB: %d)\n", m.cfg.RedisHost, m.cfg.RedisPort, m.cfg.RedisDB)
}

// initNatsHealth 连接由 main 建立并通过 notify 共享
func (m *TrackerModule) initNatsHealth() {
	conn := notify.Conn()
	if conn == nil {
		fmt.Println("[Tracker Module] NATS connection not set, turn events will not be published")
		return
	}
	m.natsHealth = natsHealth.NewHealthChecker(conn, 10*time.Second)
	go m.natsHealth.Start(m.bgCtx)
	fmt.Println("[Tracker Module] NATS health checker started")
}

// initResponseWriter initializes response writer
func (m *TrackerModule) initResponseWriter() {
	m.respWriter = response.NewResponseHandler(log.GetLogger(), m.cfg.Environment, metrics.GetServiceName())
	fmt.Println("[Tracker Module] Response writer initialized")
}

// initHTTPServer initializes HTTP server
func (m *TrackerModule) initHTTPServer() {
	m.httpServer = echo.New()
	m.httpServer.HideBanner = true
	m.httpServer.HidePort = true
	m.httpServer.Validator = validator.New()

	logger := log.GetLogger()
	// 中间件直接交给 c.Error 的错误 (限流拒绝等) 也按统一信封输出
	m.httpServer.HTTPErrorHandler = custommiddleware.HTTPErrorHandler(m.respWriter, logger)

	// ========== 中间件配置（顺序很重要！） ==========

	// 1. TraceID 中间件 - 最先执行
	m.httpServer.Use(trace.Middleware())

	// 2. Metrics 中间件
	m.httpServer.Use(metrics.Middleware(metrics.DefaultHTTPMetrics, metrics.GetServiceName()))

	// 3. i18n 中间件
	m.httpServer.Use(i18n.Middleware())

	// 4. Logging 中间件（依赖 TraceID）
	loggingConfig := custommiddleware.DefaultLoggingConfig()
	if m.cfg.Environment == "development" {
		loggingConfig.DetailedLog = true
	}
	m.httpServer.Use(custommiddleware.LoggingMiddlewareWithConfig(logger, loggingConfig))

	// 5. Recovery 中间件
	m.httpServer.Use(custommiddleware.RecoveryMiddleware(m.respWriter, logger))

	// 6. Error 中间件
	m.httpServer.Use(custommiddleware.ErrorMiddleware(m.respWriter, logger))

	// 7. CORS 与安全响应头
	m.httpServer.Use(custommiddleware.CORSMiddleware(nil))
	m.httpServer.Use(custommiddleware.SecurityMiddleware())

	fmt.Println("[Tracker Module] HTTP middlewares configured:")
	fmt.Println("  ✓ TraceID")
	fmt.Println("  ✓ Metrics")
	fmt.Println("  ✓ i18n")
	fmt.Printf("  ✓ Logging (%s)\n", m.cfg.Environment)
	fmt.Println("  ✓ Recovery")
	fmt.Println("  ✓ Error")
	fmt.Println("  ✓ CORS / Security headers")
}

// initServicesAndHandlers initializes services and HTTP handlers
func (m *TrackerModule) initServicesAndHandlers() error {
	logger := log.GetLogger()

	p, err := parser.New(m.cfg.ParseWorkers)
	if err != nil {
		return err
	}

	opts := service.ContainerOptions{
		Parser:     p,
		ReportOpts: reporter.Options{TimeGapCap: m.cfg.TimeGapCap},
		Window:     m.cfg.FollowWindow,
		QueueSize:  m.cfg.IngestQueueSize,
		RawLogDir:  m.cfg.BattleLogDir,
		Publisher:  notify.NewPublisher(),
		Logger:     logger,
	}
	// redis 为 nil 时不能直接赋给接口, 否则 Remote 非空
	var remote reportcache.Remote
	if m.redis != nil {
		remote = m.redis
	}
	opts.ReportCache = reportcache.New(m.cfg.ReportCacheTTL, remote, nil, logger)

	m.serviceContainer = service.NewServiceContainer(m.db, opts)

	ctx, cancel := context.WithTimeout(m.bgCtx, 30*time.Second)
	defer cancel()
	if err := m.serviceContainer.Sessions.Load(ctx); err != nil {
		return err
	}

	go m.serviceContainer.IngestWorker.Run(m.bgCtx)

	m.logHandler = handler.NewLogHandler(m.serviceContainer, m.respWriter, m.cfg.IngestToken)
	m.battleHandler = handler.NewBattleHandler(m.serviceContainer, m.respWriter)
	m.followHandler = handler.NewFollowHandler(m.serviceContainer, m.respWriter, m.cfg.FollowMaxWait, logger)
	m.rpcHandler = handler.NewTrackerRPCHandler(m.serviceContainer)

	if m.cfg.IngestToken == "" {
		fmt.Println("[Tracker Module] Warning: TRACKER_INGEST_TOKEN not set, /logs accepts anonymous submissions")
	}
	fmt.Printf("[Tracker Module] Handlers initialized successfully (active battle: %q)\n", m.serviceContainer.Sessions.ActiveBattleID())
	return nil
}

// setupRoutes sets up HTTP routes
func (m *TrackerModule) setupRoutes() {
	v1 := m.httpServer.Group("/api/v1")
	{
		// 日志提交
		v1.POST("/logs", m.logHandler.SubmitLogs, custommiddleware.RateLimitMiddleware(m.cfg.IngestRateLimit))

		// 查询
		v1.GET("/ids", m.battleHandler.ListBattleIDs)
		v1.GET("/reports/:id", m.battleHandler.GetReports)
		v1.GET("/events/:id", m.battleHandler.GetEvents)
		v1.GET("/summaries", m.battleHandler.ListSummaries)
		v1.GET("/battles/:id", m.battleHandler.GetBattle)
		v1.DELETE("/battles/:id", m.battleHandler.PurgeBattle)

		// 回合跟随
		v1.GET("/turns/next", m.followHandler.NextIndex)
		v1.GET("/turns/:index", m.followHandler.GetTurn)
		v1.GET("/ws/events", m.followHandler.Events)
	}

	// Health check
	m.httpServer.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"module":      "tracker",
			"database":    m.db.Status(c.Request().Context()),
			"nats":        m.natsHealth.Snapshot(),
			"queue_depth": m.serviceContainer.IngestWorker.Depth(),
		})
	})

	// Prometheus metrics endpoint
	m.httpServer.GET("/metrics", metrics.EchoHandler())

	fmt.Println("[Tracker Module] Routes configured successfully")
	fmt.Println("[Tracker Module] Tracker API routes: /api/v1/*")
	fmt.Printf("[Tracker Module] Prometheus metrics available at http://localhost:%s/metrics\n", m.cfg.HTTPPort)
}

// setupRPCMethods registers RPC methods
func (m *TrackerModule) setupRPCMethods() {
	m.GetServer().RegisterGO("ListBattleIDs", m.rpcHandler.ListBattleIDs)
	m.GetServer().RegisterGO("GetBattleReports", m.rpcHandler.GetBattleReports)

	fmt.Println("[Tracker Module] RPC methods registered: ListBattleIDs, GetBattleReports")
}

// startCronTasks starts cron scheduled tasks
func (m *TrackerModule) startCronTasks() {
	m.retentionTask = tasks.NewRetentionTask(
		m.serviceContainer.GetBattleRepository(),
		m.serviceContainer.Ingest,
		m.cfg.RetentionDays,
		m.cfg.RetentionSchedule,
		log.GetLogger(),
	)
	m.retentionTask.Start()

	if m.cfg.RetentionDays > 0 {
		fmt.Printf("[Tracker Module] Retention task started (%d days, schedule %q)\n", m.cfg.RetentionDays, m.cfg.RetentionSchedule)
	} else {
		fmt.Println("[Tracker Module] Retention task disabled")
	}
}

// startHTTPServer starts HTTP server
func (m *TrackerModule) startHTTPServer() {
	fmt.Printf("[Tracker Module] Starting HTTP server on port %s\n", m.cfg.HTTPPort)

	if err := m.httpServer.Start(":" + m.cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
		fmt.Printf("[Tracker Module] HTTP server error: %v\n", err)
	}
}

// Run module run
func (m *TrackerModule) Run(closeSig chan bool) {
	fmt.Println("[Tracker Module] Started successfully")
	<-closeSig
}

// OnDestroy module destroy
func (m *TrackerModule) OnDestroy() {
	if m.retentionTask != nil {
		m.retentionTask.Stop()
		fmt.Println("[Tracker Module] Cron tasks stopped")
	}

	// 先停 HTTP, 不再接收新的提交
	if m.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.httpServer.Shutdown(ctx); err != nil {
			fmt.Printf("[Tracker Module] Failed to shutdown HTTP server: %v\n", err)
		} else {
			fmt.Println("[Tracker Module] HTTP server closed")
		}
		cancel()
	}

	// 排空入库队列
	if m.serviceContainer != nil {
		m.serviceContainer.IngestWorker.Stop()
		fmt.Println("[Tracker Module] Ingest worker drained")
	}

	if m.natsHealth != nil {
		m.natsHealth.Stop()
	}
	if m.bgCancel != nil {
		m.bgCancel()
	}

	if m.redis != nil {
		_ = m.redis.Close()
	}

	if m.db != nil {
		if err := m.db.Close(); err != nil {
			fmt.Printf("[Tracker Module] Failed to close database: %v\n", err)
		} else {
			fmt.Println("[Tracker Module] Database connection closed")
		}
	}

	m.BaseModule.OnDestroy()
	fmt.Println("[Tracker Module] Destroyed")
}

// Module creates Tracker module instance
func Module() module.Module {
	return new(TrackerModule)
}
