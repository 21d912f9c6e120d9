package domain

import (
	"context"
	"time"
)

// Cache stores opaque values by key. Model scores are memoized through it
// so repeated batch passes skip the model service.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the model score cache.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string `json:"type" mapstructure:"type"`

	LocalMaxSize int           `json:"localMaxSize" mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl" mapstructure:"localTtl"`

	RedisAddr     string `json:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword string `json:"redisPassword" mapstructure:"redisPassword"`
	RedisDB       int    `json:"redisDb" mapstructure:"redisDb"`

	// EnableTwoPhase puts a local LRU in front of Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enableTwoPhase"`
}
