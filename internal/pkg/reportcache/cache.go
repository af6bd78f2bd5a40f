package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/metrics"
	"battle-tracker/internal/pkg/redis"
)

// Reports 一场战斗的全部报告数据, 按报告类型索引
type Reports map[string]json.RawMessage

// Remote 二级缓存（Redis）, 可为 nil
type Remote interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteKey(ctx context.Context, keys ...string) error
}

type entry struct {
	value     Reports
	expiresAt time.Time
}

// Cache 已退役战斗的报告缓存; 只缓存不再变化的数据, 进程内 + Redis 两级
type Cache struct {
	ttl     time.Duration
	metrics *metrics.TrackerMetrics
	logger  log.Logger
	remote  Remote
	service string
	clock   func() time.Time
	mu      sync.RWMutex
	store   map[string]*entry
}

// New 返回默认 Cache 实例。
func New(ttl time.Duration, remote Remote, m *metrics.TrackerMetrics, logger log.Logger) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if m == nil {
		m = metrics.DefaultTrackerMetrics
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Cache{
		ttl:     ttl,
		metrics: m,
		logger:  logger.With("component", "report_cache"),
		remote:  remote,
		service: metrics.GetServiceName(),
		clock:   time.Now,
		store:   make(map[string]*entry),
	}
}

// Get 返回缓存的报告, 本地未命中时回源 Redis 并回填本地
func (c *Cache) Get(ctx context.Context, battleID string) (Reports, bool) {
	if battleID == "" {
		return nil, false
	}

	c.mu.RLock()
	value, ok := c.store[battleID]
	c.mu.RUnlock()

	now := c.clock()
	if ok && now.After(value.expiresAt) {
		c.mu.Lock()
		delete(c.store, battleID)
		c.mu.Unlock()
		c.metrics.RecordReportCache("evicted", c.service)
		ok = false
	}
	if ok {
		c.metrics.RecordReportCache("hit", c.service)
		return value.value, true
	}

	if reports, found := c.getRemote(ctx, battleID); found {
		c.setLocal(battleID, reports)
		c.metrics.RecordReportCache("hit", c.service)
		return reports, true
	}

	c.metrics.RecordReportCache("miss", c.service)
	return nil, false
}

// Set 写入本地与 Redis, Redis 失败只记录日志
func (c *Cache) Set(ctx context.Context, battleID string, reports Reports) {
	if battleID == "" {
		return
	}
	c.setLocal(battleID, reports)

	if c.remote == nil {
		return
	}
	data, err := json.Marshal(reports)
	if err != nil {
		c.logger.WarnContext(ctx, "报告缓存序列化失败", log.String("battle_id", battleID), log.Any("error", err))
		return
	}
	if err := c.remote.SetWithTTL(ctx, key(battleID), data, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "报告缓存写入 Redis 失败", log.String("battle_id", battleID), log.Any("error", err))
	}
}

// Delete 主动剔除（purge / 重放）
func (c *Cache) Delete(ctx context.Context, battleID, reason string) {
	c.mu.Lock()
	_, existed := c.store[battleID]
	delete(c.store, battleID)
	c.mu.Unlock()

	if existed {
		c.metrics.RecordReportCache("evicted", c.service)
	}
	if c.remote != nil {
		if err := c.remote.DeleteKey(ctx, key(battleID)); err != nil {
			c.logger.WarnContext(ctx, "报告缓存删除 Redis 失败", log.String("battle_id", battleID), log.Any("error", err))
		}
	}
	c.logger.DebugContext(ctx, "report cache evicted", log.String("battle_id", battleID), log.String("reason", reason))
}

func (c *Cache) setLocal(battleID string, reports Reports) {
	c.mu.Lock()
	c.store[battleID] = &entry{value: reports, expiresAt: c.clock().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) getRemote(ctx context.Context, battleID string) (Reports, bool) {
	if c.remote == nil {
		return nil, false
	}
	data, err := c.remote.GetBytes(ctx, key(battleID))
	if err != nil {
		if !errors.Is(err, redis.ErrNil) {
			c.logger.WarnContext(ctx, "报告缓存读取 Redis 失败", log.String("battle_id", battleID), log.Any("error", err))
		}
		return nil, false
	}
	var reports Reports
	if err := json.Unmarshal(data, &reports); err != nil {
		c.logger.WarnContext(ctx, "报告缓存数据损坏", log.String("battle_id", battleID), log.Any("error", err))
		return nil, false
	}
	return reports, true
}

func key(battleID string) string {
	return "tracker:reports:" + battleID
}
