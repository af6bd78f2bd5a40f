// Package database 负责打开数据库连接并提供事务辅助
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect 数据库方言
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config 连接参数
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB 带方言信息的连接池
type DB struct {
	*sql.DB
	Dialect      Dialect
	maxOpenConns int
}

// DetectDialect postgres:// 与 postgresql:// 走 lib/pq, 其余按 SQLite 路径处理
func DetectDialect(url string) Dialect {
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// SQLiteDSN 为 SQLite 路径附加 WAL / busy_timeout 等 pragma
func SQLiteDSN(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
}

func isMemoryDSN(url string) bool {
	return strings.Contains(url, ":memory:") || strings.Contains(url, "mode=memory")
}

// Open 打开数据库并校验连接
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("数据库地址未配置")
	}

	dialect := DetectDialect(cfg.URL)
	driver, dsn := "postgres", cfg.URL
	if dialect == DialectSQLite {
		driver, dsn = "sqlite", SQLiteDSN(cfg.URL)
		if !isMemoryDSN(cfg.URL) {
			if dir := filepath.Dir(strings.TrimPrefix(cfg.URL, "sqlite://")); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("创建数据库目录失败: %w", err)
				}
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	if dialect == DialectSQLite && isMemoryDSN(cfg.URL) {
		// 内存库只能共享一个连接
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(min(cfg.MaxIdleConns, maxOpen))
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("数据库连接检查失败: %w", err)
	}

	return &DB{DB: db, Dialect: dialect, maxOpenConns: maxOpen}, nil
}

// MaxOpenConns 实际生效的最大连接数
func (d *DB) MaxOpenConns() int {
	return d.maxOpenConns
}

// Status 健康检查用
func (d *DB) Status(ctx context.Context) string {
	if d == nil || d.DB == nil {
		return "disabled"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.PingContext(pingCtx); err != nil {
		return "unavailable"
	}
	return "ok"
}
