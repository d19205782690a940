package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"authguard-go/internal/platform/errors"
)

// Bounded retries for optimistic Update transactions.
const maxUpdateRetries = 5

type redisStore struct {
	client    *redis.Client
	prefix    string
	connected atomic.Bool
}

// NewRedis constructs a redis-backed store. The connection is not probed
// here; Connect does that explicitly.
func NewRedis(cfg Config) (*redisStore, error) {
	if cfg.Redis == nil {
		return nil, errors.New(errors.KindConfig, "cache.redis", "redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New(errors.KindConfig, "cache.redis", "redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "authguard:"
	}

	return &redisStore{
		client: redis.NewClient(opts),
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(k string) string {
	return s.prefix + k
}

func (s *redisStore) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.connected.Store(false)
		return errors.Wrap(errors.KindLifecycle, "cache.connect", "redis ping failed", err)
	}
	s.connected.Store(true)
	return nil
}

func (s *redisStore) Disconnect() error {
	s.connected.Store(false)
	if err := s.client.Close(); err != nil {
		return errors.Wrap(errors.KindLifecycle, "cache.disconnect", "redis close failed", err)
	}
	return nil
}

func (s *redisStore) Connected() bool {
	return s.connected.Load()
}

// ping re-probes the server without going through Connect's error wrapping.
func (s *redisStore) ping(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	s.connected.Store(err == nil)
	return err
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, errors.Wrap(errors.KindStorage, "cache.get", "redis get failed", err)
	}
	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "cache.set", "redis set failed", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "cache.delete", "redis del failed", err)
	}
	return nil
}

func (s *redisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var cursor uint64
	keys := make([]string, 0)
	pattern := s.prefix + prefix + "*"
	for {
		res, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "cache.keys", "redis scan failed", err)
		}
		for _, key := range res {
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return keys, nil
}

// Update runs fn inside a WATCH transaction so concurrent writers to the
// same key cannot lose increments. Conflicting transactions are retried.
func (s *redisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	if ttl < 0 {
		ttl = 0
	}
	k := s.key(key)

	var next string
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Result()
		exists := true
		if err == redis.Nil {
			exists = false
			current = ""
		} else if err != nil {
			return err
		}

		next, err = fn(current, exists)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return next, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return "", errors.Wrap(errors.KindStorage, "cache.update", "redis transaction failed", err)
	}
	return "", errors.New(errors.KindStorage, "cache.update", "optimistic update retries exhausted")
}

func (s *redisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.Keys(ctx, "")
	if err != nil {
		return Stats{Driver: DriverRedis}, err
	}
	return Stats{
		Driver:  DriverRedis,
		Entries: int64(len(keys)),
	}, nil
}
