package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores built reports by dataset fingerprint.
type Cache interface {
	Get(ctx context.Context, key string) (Report, bool, error)
	Set(ctx context.Context, key string, report Report) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	report  Report
	expires time.Time
}

type memoryCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memoryEntry
}

// NewMemoryCache keeps reports in process. A ttl <= 0 never expires.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{ttl: ttl, items: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string) (Report, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return Report{}, false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(c.items, key)
		return Report{}, false, nil
	}
	return e.report, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, report Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{report: report}
	if c.ttl > 0 {
		e.expires = time.Now().Add(c.ttl)
	}
	c.items[key] = e
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisCache struct {
	client redisKV
	ttl    time.Duration
	prefix string
}

// NewRedisCache stores reports as JSON under "stats:report:<key>".
func NewRedisCache(client *redis.Client, ttl time.Duration) Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisCache{client: client, ttl: ttl, prefix: "stats:report:"}
}

func (c *redisCache) Get(ctx context.Context, key string) (Report, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, err
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false, err
	}
	return report, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, report Report) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}
