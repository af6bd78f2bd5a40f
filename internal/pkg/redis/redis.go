package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"battle-tracker/internal/pkg/metrics"
)

// ErrNil 键不存在
var ErrNil = redis.Nil

// Config Redis 配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Client Redis 客户端封装, 每次操作记录 Prometheus 指标
type Client struct {
	*redis.Client
	service string
}

// NewClient 创建 Redis 客户端并 Ping 校验
func NewClient(cfg Config, service string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	return Wrap(rdb, service), nil
}

// Wrap 包装已有的 go-redis 客户端
func Wrap(rdb *redis.Client, service string) *Client {
	if service == "" {
		service = metrics.GetServiceName()
	}
	return &Client{
		Client:  rdb,
		service: service,
	}
}

// SetWithTTL 设置键值对，带过期时间
func (c *Client) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	err := c.Set(ctx, key, value, ttl).Err()
	c.record("SET", err, time.Since(start))
	return err
}

// GetBytes 获取原始字节, 键不存在时返回 ErrNil
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	result, err := c.Get(ctx, key).Bytes()
	c.record("GET", err, time.Since(start))
	return result, err
}

// DeleteKey 删除键
func (c *Client) DeleteKey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	err := c.Del(ctx, keys...).Err()
	c.record("DEL", err, time.Since(start))
	return err
}

// RecordPoolStats 上报连接池状态
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	metrics.DefaultResourceMetrics.RecordRedisPoolStats(int(stats.TotalConns), int(stats.IdleConns), int(stats.StaleConns), c.service)
}

// StartPoolMonitor 定期上报连接池状态, ctx 取消后退出
func (c *Client) StartPoolMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}

func (c *Client) record(op string, err error, duration time.Duration) {
	metrics.DefaultResourceMetrics.RecordRedisOperation(op, err == nil || errors.Is(err, redis.Nil), duration, c.service)
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		metrics.DefaultResourceMetrics.RecordRedisError("nil", c.service)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.DefaultResourceMetrics.RecordRedisError("timeout", c.service)
	default:
		metrics.DefaultResourceMetrics.RecordRedisError("operation_error", c.service)
	}
}
