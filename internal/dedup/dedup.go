// Package dedup suppresses inbound events that a channel delivered more than once.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memohai/omnirelay/internal/channel"
)

const keyPrefix = "omnirelay:seen:"

// Guard remembers event keys for a bounded window.
type Guard interface {
	// Seen records key and reports whether it had already been recorded.
	Seen(ctx context.Context, key string) (bool, error)
}

// RedisGuard shares the seen-set between relay instances.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard connects to redisURL and verifies the connection.
func NewRedisGuard(ctx context.Context, redisURL string, ttl time.Duration) (*RedisGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisGuardWithClient(client, ttl), nil
}

// NewRedisGuardWithClient wraps an existing client.
func NewRedisGuardWithClient(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record event key: %w", err)
	}
	return !ok, nil
}

// Close releases the redis connection pool.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// MemoryGuard is a process-local Guard used when no redis is configured.
type MemoryGuard struct {
	ttl      time.Duration
	maxItems int
	now      func() time.Time

	mu    sync.Mutex
	items map[string]time.Time
}

// NewMemoryGuard creates a guard holding at most maxItems keys.
func NewMemoryGuard(ttl time.Duration, maxItems int) *MemoryGuard {
	if maxItems <= 0 {
		maxItems = 10000
	}
	return &MemoryGuard{
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
		items:    map[string]time.Time{},
	}
}

func (g *MemoryGuard) Seen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if expires, ok := g.items[key]; ok && now.Before(expires) {
		return true, nil
	}
	if len(g.items) >= g.maxItems {
		g.evictLocked(now)
	}
	g.items[key] = now.Add(g.ttl)
	return false, nil
}

// evictLocked drops expired keys, then the oldest ones if still full.
func (g *MemoryGuard) evictLocked(now time.Time) {
	for key, expires := range g.items {
		if !now.Before(expires) {
			delete(g.items, key)
		}
	}
	for len(g.items) >= g.maxItems {
		var oldestKey string
		var oldest time.Time
		for key, expires := range g.items {
			if oldestKey == "" || expires.Before(oldest) {
				oldestKey, oldest = key, expires
			}
		}
		delete(g.items, oldestKey)
	}
}

// Middleware drops events whose dedup key was already seen. Events without a
// key pass through, and guard failures never drop a message.
func Middleware(log *slog.Logger, guard Guard) channel.Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "dedup"))
	return func(next channel.InboundHandler) channel.InboundHandler {
		return func(ctx context.Context, event channel.InboundEvent) error {
			key := event.DedupKey()
			if key == "" || guard == nil {
				return next(ctx, event)
			}
			seen, err := guard.Seen(ctx, key)
			if err != nil {
				log.Warn("dedup check failed", slog.String("key", key), slog.Any("error", err))
				return next(ctx, event)
			}
			if seen {
				log.Info("duplicate event dropped", slog.String("key", key))
				return nil
			}
			return next(ctx, event)
		}
	}
}
