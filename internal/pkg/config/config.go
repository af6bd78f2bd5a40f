package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// TrackerConfig 战斗追踪服务配置, 全部来自环境变量
type TrackerConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort    string `env:"TRACKER_HTTP_PORT" envDefault:"9999"`
	IngestToken string `env:"TRACKER_INGEST_TOKEN"`
	// 每个客户端 IP 的 /logs 提交速率（次/秒）
	IngestRateLimit float64 `env:"TRACKER_INGEST_RATE_LIMIT" envDefault:"20"`

	// sqlite 文件路径或 postgres:// URL
	DatabaseURL     string        `env:"TRACKER_DATABASE_URL" envDefault:"data/db.sqlite"`
	DBMaxOpenConns  int           `env:"TRACKER_DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns  int           `env:"TRACKER_DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnLifetime  time.Duration `env:"TRACKER_DB_CONN_LIFETIME" envDefault:"5m"`
	BattleLogDir    string        `env:"TRACKER_BATTLE_LOG_DIR" envDefault:"data/battle_logs"`
	FollowWindow    int           `env:"TRACKER_FOLLOW_WINDOW" envDefault:"100"`
	FollowMaxWait   time.Duration `env:"TRACKER_FOLLOW_MAX_WAIT" envDefault:"30s"`
	TimeGapCap      float64       `env:"TRACKER_TIME_GAP_CAP" envDefault:"10"`
	IngestQueueSize int           `env:"TRACKER_INGEST_QUEUE" envDefault:"64"`
	ParseWorkers    int           `env:"TRACKER_PARSE_WORKERS" envDefault:"4"`

	RetentionDays     int    `env:"TRACKER_RETENTION_DAYS" envDefault:"0"`
	RetentionSchedule string `env:"TRACKER_RETENTION_SCHEDULE" envDefault:"0 30 3 * * *"`

	RedisEnabled   bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	ReportCacheTTL time.Duration `env:"TRACKER_REPORT_CACHE_TTL" envDefault:"10m"`

	NatsAddress   string `env:"NATS_ADDRESS" envDefault:"localhost:4222"`
	ConsulAddress string `env:"CONSUL_ADDRESS" envDefault:"localhost:8500"`
}

// ParseEnv 从环境变量加载配置
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadTrackerConfig 加载并校验配置
func LoadTrackerConfig() (*TrackerConfig, error) {
	cfg := &TrackerConfig{}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *TrackerConfig) Validate() error {
	if c.FollowWindow <= 0 {
		return fmt.Errorf("TRACKER_FOLLOW_WINDOW must be positive, got %d", c.FollowWindow)
	}
	if c.TimeGapCap <= 0 {
		return fmt.Errorf("TRACKER_TIME_GAP_CAP must be positive, got %v", c.TimeGapCap)
	}
	if c.IngestQueueSize <= 0 {
		return fmt.Errorf("TRACKER_INGEST_QUEUE must be positive, got %d", c.IngestQueueSize)
	}
	if c.ParseWorkers <= 0 {
		c.ParseWorkers = 1
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("TRACKER_RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	return nil
}

// ApplyModuleSettings mqant 模块配置作为兜底, 环境变量优先
func (c *TrackerConfig) ApplyModuleSettings(settings map[string]interface{}) {
	if settings == nil {
		return
	}
	if v, ok := settings["http_port"].(string); ok && v != "" && !isEnvSet("TRACKER_HTTP_PORT") {
		c.HTTPPort = v
	}
	if v, ok := settings["database_url"].(string); ok && v != "" {
		c.DatabaseURL = GetDatabaseURL("TRACKER_DATABASE_URL", v)
	}
	if v, ok := settings["battle_log_dir"].(string); ok && v != "" && !isEnvSet("TRACKER_BATTLE_LOG_DIR") {
		c.BattleLogDir = v
	}
}

// LogFields 供启动日志输出的脱敏配置
func (c *TrackerConfig) LogFields() map[string]any {
	return SanitizeConfigForLog(map[string]any{
		"environment":       c.Environment,
		"http_port":         c.HTTPPort,
		"database_url":      c.DatabaseURL,
		"battle_log_dir":    c.BattleLogDir,
		"follow_window":     c.FollowWindow,
		"time_gap_cap":      c.TimeGapCap,
		"ingest_queue":      c.IngestQueueSize,
		"retention_days":    c.RetentionDays,
		"redis_enabled":     c.RedisEnabled,
		"redis_password":    c.RedisPassword,
		"ingest_token":      c.IngestToken,
		"nats_address":      c.NatsAddress,
		"report_cache_ttl":  c.ReportCacheTTL.String(),
		"follow_max_wait":   c.FollowMaxWait.String(),
		"parse_workers":     c.ParseWorkers,
		"db_max_open_conns": c.DBMaxOpenConns,
	})
}

func isEnvSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
