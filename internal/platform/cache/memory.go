package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// memoryStore is the in-process fallback. It honours the same TTL contract
// as the redis driver: lazy expiry on read plus a background sweep.
type memoryStore struct {
	items       map[string]memoryEntry
	mutex       sync.RWMutex
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-memory store and starts its sweep loop.
func NewMemory(cfg Config) *memoryStore {
	cleanup := time.Minute
	if cfg.Memory != nil && cfg.Memory.CleanupInterval > 0 {
		cleanup = cfg.Memory.CleanupInterval
	}
	s := &memoryStore{
		items:       make(map[string]memoryEntry),
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *memoryStore) sweepLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) sweep() {
	now := time.Now()
	s.mutex.Lock()
	for key, entry := range s.items {
		if entry.expired(now) {
			delete(s.items, key)
		}
	}
	s.mutex.Unlock()
}

func (s *memoryStore) Connect(ctx context.Context) error {
	return nil
}

func (s *memoryStore) Disconnect() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

func (s *memoryStore) Connected() bool {
	return true
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	entry, ok := s.items[key]
	s.mutex.RUnlock()
	if !ok || entry.expired(time.Now()) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mutex.Lock()
	s.items[key] = entry
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	delete(s.items, key)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys := make([]string, 0, len(s.items))
	for key, entry := range s.items {
		if entry.expired(now) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Update holds the write lock across fn, so racing read-modify-writes of
// the same key serialise instead of losing increments.
func (s *memoryStore) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, ok := s.items[key]
	current := entry.value
	if !ok || entry.expired(time.Now()) {
		ok = false
		current = ""
	}

	next, err := fn(current, ok)
	if err != nil {
		return "", err
	}

	updated := memoryEntry{value: next}
	if ttl > 0 {
		updated.expiresAt = time.Now().Add(ttl)
	}
	s.items[key] = updated
	return next, nil
}

func (s *memoryStore) Stats(_ context.Context) (Stats, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := int64(0)
	for _, entry := range s.items {
		if !entry.expired(now) {
			active++
		}
	}
	return Stats{
		Driver:  DriverMemory,
		Entries: active,
	}, nil
}
