package cache

import (
	"context"
	"time"
)

// Store is the uniform key-value surface the defense services share. A ttl
// of zero means no expiry. Get reports misses through the bool, never
// through the error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error)
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Stats(ctx context.Context) (Stats, error)
}

// UpdateFunc transforms the current value of a key under the store's
// concurrency guard. Concurrent updates of the same key never lose writes:
// the redis driver retries on optimistic-lock conflicts, the memory driver
// holds its mutex across the call.
type UpdateFunc func(current string, exists bool) (string, error)

// Stats summarises a store for health reporting.
type Stats struct {
	Driver   string `json:"driver"`
	Entries  int64  `json:"entries"`
	Degraded bool   `json:"degraded"`
}

// Config describes the store selection parameters.
type Config struct {
	Driver   string
	Redis    *RedisConfig
	Memory   *MemoryConfig
	Failover *FailoverConfig
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// MemoryConfig holds in-memory tuning knobs.
type MemoryConfig struct {
	CleanupInterval time.Duration
}

// FailoverConfig controls the in-process fallback taken when the shared
// cache is unreachable.
type FailoverConfig struct {
	Enabled           bool
	ReconnectInterval time.Duration
}
