package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// New creates the cache named by cfg.Type. "memory" is a process-local LRU.
// "redis" is shared between processes and, with EnableTwoPhase, fronted by a
// local LRU.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		remote, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return NewTiered(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
	}
	return nil, fmt.Errorf("%w: unsupported cache type %q", domain.ErrInvalidInput, cfg.Type)
}

// Tiered reads through a local LRU to a shared cache and writes to both.
// When the shared cache fails a read, the read is reported as a miss so a
// Redis outage slows a batch pass down instead of failing it.
type Tiered struct {
	local    *LRUCache
	shared   domain.Cache
	localTTL time.Duration
}

// NewTiered stacks local over shared. Local entries live at most localTTL.
func NewTiered(local *LRUCache, shared domain.Cache, localTTL time.Duration) *Tiered {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &Tiered{local: local, shared: shared, localTTL: localTTL}
}

func (c *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := c.local.Get(ctx, key); val != nil {
		metrics.CacheRequests.WithLabelValues("local", "hit").Inc()
		return val, nil
	}

	val, err := c.shared.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("redis", "error").Inc()
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		slog.Warn("shared cache read failed, treating as miss", "key", key, "error", err)
		return nil, nil
	case val == nil:
		metrics.CacheRequests.WithLabelValues("redis", "miss").Inc()
		return nil, nil
	}
	metrics.CacheRequests.WithLabelValues("redis", "hit").Inc()
	_ = c.local.Set(ctx, key, val, c.localTTL)
	return val, nil
}

// Set writes the shared cache first so a failed write leaves no local-only
// entry behind.
func (c *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.shared.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	localTTL := c.localTTL
	if ttl > 0 {
		localTTL = min(ttl, c.localTTL)
	}
	return c.local.Set(ctx, key, value, localTTL)
}

func (c *Tiered) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.shared.Delete(ctx, key)
}

func (c *Tiered) Ping(ctx context.Context) error {
	if err := c.shared.Ping(ctx); err != nil {
		return fmt.Errorf("shared cache: %w", err)
	}
	return nil
}

func (c *Tiered) Close() error {
	_ = c.local.Close()
	return c.shared.Close()
}

// Stats reports the local tier.
func (c *Tiered) Stats() Stats {
	return c.local.Stats()
}

// StatsOf returns local statistics for caches that keep them.
func StatsOf(c domain.Cache) (Stats, bool) {
	if s, ok := c.(interface{ Stats() Stats }); ok {
		return s.Stats(), true
	}
	return Stats{}, false
}

// GetJSON reads a cached JSON value. found is false on a miss.
func GetJSON[T any](ctx context.Context, c domain.Cache, key string) (v T, found bool, err error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return v, true, nil
}

// SetJSON caches a value as JSON.
func SetJSON(ctx context.Context, c domain.Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
