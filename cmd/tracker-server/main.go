package main

import (
	"fmt"
	"os"
	"time"

	"battle-tracker/internal/modules/tracker"
	"battle-tracker/internal/pkg/config"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/notify"

	"github.com/liangdas/mqant"
	"github.com/liangdas/mqant/module"
	"github.com/liangdas/mqant/registry"
	"github.com/liangdas/mqant/registry/consul"
	"github.com/nats-io/nats.go"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Battle Tracker Server")
	fmt.Println("  Version: 1.0.0")
	fmt.Println("==============================================")
	fmt.Println()

	environment := config.GetEnvOrDefault("ENVIRONMENT", "development")
	log.Init(log.ParseLevel(config.GetEnvOrDefault("LOG_LEVEL", "info")), environment)

	// Consul address
	consulAddr := config.GetEnvOrDefault("CONSUL_ADDRESS", "localhost:8500")
	fmt.Printf("[Main] Consul address: %s\n", consulAddr)

	// NATS address
	natsAddr := config.GetEnvOrDefault("NATS_ADDRESS", "localhost:4222")
	fmt.Printf("[Main] NATS address: %s\n", natsAddr)

	// Connect to NATS
	nc, err := nats.Connect("nats://"+natsAddr,
		nats.MaxReconnects(10),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		fmt.Printf("[Main] Failed to connect to NATS: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("[Main] Connected to NATS successfully")
	// 回合与战斗事件经由此连接发布
	notify.SetNatsConn(nc)

	// Create Consul registry
	rs := consul.NewRegistry(func(options *registry.Options) {
		options.Addrs = []string{consulAddr}
	})

	configPath := config.GetEnvOrDefault("TRACKER_CONFIG", "./configs/server/tracker-server.json")
	app := mqant.CreateApp(
		module.Configure(configPath),
		module.Debug(false),
		module.Nats(nc),
		module.Registry(rs),
	)

	fmt.Printf("[Main] Configuration loaded (%s)\n", configPath)

	app.Run(
		tracker.Module(),
	)
}
