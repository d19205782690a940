package cache

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"authguard-go/internal/platform/logging"
	"authguard-go/internal/platform/observability"
)

const (
	probeTimeout             = 2 * time.Second
	defaultReconnectInterval = 5 * time.Second
)

// failoverStore serves from the shared cache while it is reachable and
// from the in-process fallback while it is not. Fallback writes stay
// local; nothing is replayed to the primary after a reconnect.
type failoverStore struct {
	primary   *redisStore
	fallback  *memoryStore
	logger    *logging.Logger
	interval  time.Duration
	degraded  atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	probeOnce sync.Once
}

// NewFailover wraps a primary store with an in-process fallback.
func NewFailover(primary *redisStore, fallback *memoryStore, interval time.Duration, logger *logging.Logger) *failoverStore {
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	return &failoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Connect probes the primary and starts the reconnect loop. The error is
// surfaced even though the fallback is engaged, so the caller can decide
// whether degraded startup is acceptable.
func (s *failoverStore) Connect(ctx context.Context) error {
	err := s.primary.Connect(ctx)
	if err != nil {
		s.degraded.Store(true)
		s.logger.WarnTag(logging.TagCache, "shared cache unreachable, serving from in-process fallback: %v", err)
	} else {
		s.degraded.Store(false)
		s.logger.InfoTag(logging.TagCache, "shared cache connected")
	}
	s.probeOnce.Do(func() {
		go s.probeLoop()
	})
	return err
}

func (s *failoverStore) Disconnect() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	err := s.primary.Disconnect()
	if ferr := s.fallback.Disconnect(); err == nil {
		err = ferr
	}
	return err
}

func (s *failoverStore) Connected() bool {
	return !s.degraded.Load()
}

// probeLoop re-pings the primary while degraded and flips back on success.
func (s *failoverStore) probeLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !s.degraded.Load() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			err := s.primary.ping(ctx)
			cancel()
			if err == nil {
				s.degraded.Store(false)
				s.logger.InfoTag(logging.TagCache, "shared cache reachable again, resuming primary")
				observability.RecordMetric(context.Background(), "cache.reconnect", 1,
					map[string]string{"component": "cache.store"})
			}
		case <-s.stop:
			return
		}
	}
}

func (s *failoverStore) markDegraded(cause error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.WarnTag(logging.TagCache, "shared cache lost, failing over to in-process fallback: %v", cause)
		observability.RecordMetric(context.Background(), "cache.failover", 1,
			map[string]string{"component": "cache.store"})
	}
}

func (s *failoverStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, spanEnd := observability.StartSpan(ctx, "cache.store", "get")
	val, found, err := s.get(ctx, key)
	spanEnd(err)
	return val, found, err
}

func (s *failoverStore) get(ctx context.Context, key string) (string, bool, error) {
	if s.degraded.Load() {
		return s.fallback.Get(ctx, key)
	}
	val, found, err := s.primary.Get(ctx, key)
	if err != nil && connectionError(err) {
		s.markDegraded(err)
		return s.fallback.Get(ctx, key)
	}
	return val, found, err
}

func (s *failoverStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, spanEnd := observability.StartSpan(ctx, "cache.store", "set")
	err := s.set(ctx, key, value, ttl)
	spanEnd(err)
	return err
}

func (s *failoverStore) set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.degraded.Load() {
		return s.fallback.Set(ctx, key, value, ttl)
	}
	err := s.primary.Set(ctx, key, value, ttl)
	if err != nil && connectionError(err) {
		s.markDegraded(err)
		return s.fallback.Set(ctx, key, value, ttl)
	}
	return err
}

func (s *failoverStore) Delete(ctx context.Context, key string) error {
	if s.degraded.Load() {
		return s.fallback.Delete(ctx, key)
	}
	err := s.primary.Delete(ctx, key)
	if err != nil && connectionError(err) {
		s.markDegraded(err)
		return s.fallback.Delete(ctx, key)
	}
	return err
}

func (s *failoverStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.degraded.Load() {
		return s.fallback.Keys(ctx, prefix)
	}
	keys, err := s.primary.Keys(ctx, prefix)
	if err != nil && connectionError(err) {
		s.markDegraded(err)
		return s.fallback.Keys(ctx, prefix)
	}
	return keys, err
}

func (s *failoverStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	ctx, spanEnd := observability.StartSpan(ctx, "cache.store", "update")
	next, err := s.update(ctx, key, ttl, fn)
	spanEnd(err)
	return next, err
}

func (s *failoverStore) update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	if s.degraded.Load() {
		return s.fallback.Update(ctx, key, ttl, fn)
	}
	next, err := s.primary.Update(ctx, key, ttl, fn)
	if err != nil && connectionError(err) {
		s.markDegraded(err)
		return s.fallback.Update(ctx, key, ttl, fn)
	}
	return next, err
}

func (s *failoverStore) Stats(ctx context.Context) (Stats, error) {
	if s.degraded.Load() {
		stats, err := s.fallback.Stats(ctx)
		stats.Degraded = true
		return stats, err
	}
	stats, err := s.primary.Stats(ctx)
	if err != nil && connectionError(err) {
		s.markDegraded(err)
		stats, err = s.fallback.Stats(ctx)
		stats.Degraded = true
		return stats, err
	}
	return stats, err
}

// connectionError separates unreachable-backend failures from ordinary
// operation errors. Context cancellation stays with the caller.
func connectionError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if stderrors.Is(err, redis.ErrClosed) || stderrors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr)
}
