package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"battle-tracker/internal/modules/tracker/parser"
	"battle-tracker/internal/modules/tracker/reporter"
	"battle-tracker/internal/modules/tracker/service"
	"battle-tracker/internal/pkg/config"
	"battle-tracker/internal/pkg/database"
	trackerlog "battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/repository/impl"
)

// 由原始日志重建已退役战斗的归档与报告, 不修改跨战斗汇总
func main() {
	file := flag.String("file", "", "Replay a single .hv file instead of the whole log directory")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.LoadTrackerConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// stdout 留给统计输出
	trackerlog.InitWithWriter(os.Stderr, trackerlog.ParseLevel(cfg.LogLevel), cfg.Environment)
	metrics.SetServiceName("tracker-replay")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.Open(ctx, database.Config{URL: cfg.DatabaseURL, MaxOpenConns: cfg.DBMaxOpenConns})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := impl.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	p, err := parser.New(cfg.ParseWorkers)
	if err != nil {
		log.Fatalf("failed to build parser: %v", err)
	}
	sc := service.NewServiceContainer(db, service.ContainerOptions{
		Parser:     p,
		ReportOpts: reporter.Options{TimeGapCap: cfg.TimeGapCap},
		Window:     cfg.FollowWindow,
		QueueSize:  cfg.IngestQueueSize,
		RawLogDir:  cfg.BattleLogDir,
	})

	if *file != "" {
		res, err := sc.Replay.ReplayFile(ctx, *file)
		if err != nil {
			log.Fatalf("failed to replay %s: %v", *file, err)
		}
		fmt.Printf("Replayed battle %s: %d turns, %d unparsed lines\n", res.BattleID, res.Turns, res.Rejects)
		return
	}

	results, err := sc.Replay.ReplayAll(ctx)
	replayed, skipped := 0, 0
	for _, res := range results {
		if res.Skipped {
			skipped++
			fmt.Printf("Skipped active battle %s\n", res.BattleID)
			continue
		}
		replayed++
		fmt.Printf("Replayed battle %s: %d turns, %d unparsed lines\n", res.BattleID, res.Turns, res.Rejects)
	}
	fmt.Printf("Done: %d replayed, %d skipped (dir: %s)\n", replayed, skipped, cfg.BattleLogDir)
	if err != nil {
		log.Fatalf("some files failed: %v", err)
	}
}
