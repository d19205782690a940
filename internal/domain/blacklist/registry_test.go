package blacklist

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"authguard-go/internal/domain/security"
	"authguard-go/internal/platform/cache"
	platformtesting "authguard-go/internal/platform/testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	eventType string
	metadata  map[string]interface{}
}

type captureSink struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (c *captureSink) TrackEvent(_ context.Context, eventType string, metadata map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{eventType: eventType, metadata: metadata})
}

func (c *captureSink) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, evt := range c.events {
		if evt.eventType == eventType {
			n++
		}
	}
	return n
}

func newMemoryRegistry(t *testing.T) (*Registry, cache.Store, *captureSink) {
	t.Helper()

	store := cache.NewMemory(cache.Config{})
	t.Cleanup(func() { _ = store.Disconnect() })

	sink := &captureSink{}
	verifier, err := NewVerifier("test-secret", time.Hour)
	require.NoError(t, err)

	registry, err := NewRegistry(Options{
		Store:    store,
		Logger:   platformtesting.SetupTestLogger(t),
		Events:   sink,
		Verifier: verifier,
	})
	require.NoError(t, err)
	return registry, store, sink
}

func newRedisRegistry(t *testing.T) (*Registry, *miniredis.Miniredis, cache.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	logger := platformtesting.SetupTestLogger(t)
	store, err := cache.New(cache.Config{
		Driver: cache.DriverRedis,
		Redis:  &cache.RedisConfig{Addr: mr.Addr(), Prefix: "test:"},
		Failover: &cache.FailoverConfig{
			Enabled:           true,
			ReconnectInterval: 50 * time.Millisecond,
		},
	}, logger)
	require.NoError(t, err)
	require.NoError(t, store.Connect(context.Background()))
	t.Cleanup(func() { _ = store.Disconnect() })

	registry, err := NewRegistry(Options{
		Store:  store,
		Logger: logger,
	})
	require.NoError(t, err)
	return registry, mr, store
}

func TestBlacklistTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	registry, _, sink := newMemoryRegistry(t)

	ok, err := registry.BlacklistToken(ctx, "tok-1", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := registry.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, registry.RemoveFromBlacklist(ctx, "tok-1"))

	revoked, err = registry.IsBlacklisted(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	assert.Equal(t, 1, sink.count(security.EventTokenRevoked))
}

func TestBlacklistTokenTTLExpiry(t *testing.T) {
	ctx := context.Background()
	registry, mr, _ := newRedisRegistry(t)

	ok, err := registry.BlacklistToken(ctx, "short-lived", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := registry.IsBlacklisted(ctx, "short-lived")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Second)

	revoked, err = registry.IsBlacklisted(ctx, "short-lived")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestUserCutoffIsStrict(t *testing.T) {
	ctx := context.Background()
	registry, store, _ := newMemoryRegistry(t)

	cutoff := time.Now().UnixMilli()
	require.NoError(t, store.Set(ctx, userKey("u1"), strconv.FormatInt(cutoff, 10), 0))

	before, err := registry.AreUserTokensBlacklisted(ctx, "u1", time.UnixMilli(cutoff-1))
	require.NoError(t, err)
	assert.True(t, before)

	at, err := registry.AreUserTokensBlacklisted(ctx, "u1", time.UnixMilli(cutoff))
	require.NoError(t, err)
	assert.False(t, at, "token issued exactly at the cutoff stays valid")

	after, err := registry.AreUserTokensBlacklisted(ctx, "u1", time.UnixMilli(cutoff+1))
	require.NoError(t, err)
	assert.False(t, after)
}

func TestBlacklistUserTokens(t *testing.T) {
	ctx := context.Background()
	registry, _, sink := newMemoryRegistry(t)

	ok, err := registry.BlacklistUserTokens(ctx, "u2", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	old, err := registry.AreUserTokensBlacklisted(ctx, "u2", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, old)

	fresh, err := registry.AreUserTokensBlacklisted(ctx, "u2", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, fresh)

	none, err := registry.AreUserTokensBlacklisted(ctx, "unknown", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, none)

	assert.Equal(t, 1, sink.count(security.EventTokenRevoked))
}

func TestUserCutoffTTLLapse(t *testing.T) {
	ctx := context.Background()
	registry, mr, _ := newRedisRegistry(t)

	ok, err := registry.BlacklistUserTokens(ctx, "u3", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	revoked, err := registry.AreUserTokensBlacklisted(ctx, "u3", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Second)

	revoked, err = registry.AreUserTokensBlacklisted(ctx, "u3", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, revoked, "cutoff must stop applying once its TTL lapses")
}

func TestFailClosedWritesDuringOutage(t *testing.T) {
	ctx := context.Background()
	registry, mr, store := newRedisRegistry(t)

	ok, err := registry.BlacklistToken(ctx, "durable", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.Close()

	// The write lands in the fallback but carries no durable guarantee.
	ok, err = registry.BlacklistToken(ctx, "local-only", 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, store.Connected())

	// Reads fail open: the pre-outage entry lives on the unreachable
	// primary, so it reads as not revoked.
	revoked, err := registry.IsBlacklisted(ctx, "durable")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = registry.IsBlacklisted(ctx, "local-only")
	require.NoError(t, err)
	assert.True(t, revoked, "fallback still rejects locally revoked tokens")

	cut, err := registry.AreUserTokensBlacklisted(ctx, "anyone", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, cut)
}

func TestStatsCountsNamespaces(t *testing.T) {
	ctx := context.Background()
	registry, _, _ := newMemoryRegistry(t)

	for _, token := range []string{"tok-a", "tok-b", "tok-c"} {
		_, err := registry.BlacklistToken(ctx, token, 0)
		require.NoError(t, err)
	}
	for _, user := range []string{"u-a", "u-b"} {
		_, err := registry.BlacklistUserTokens(ctx, user, 0)
		require.NoError(t, err)
	}

	stats, err := registry.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TokenEntries)
	assert.Equal(t, 2, stats.UserEntries)
}

func TestCheckToken(t *testing.T) {
	ctx := context.Background()
	registry, store, _ := newMemoryRegistry(t)

	signed, err := registry.verifier.Mint("user-1")
	require.NoError(t, err)

	status, err := registry.CheckToken(ctx, signed)
	require.NoError(t, err)
	assert.True(t, status.Valid)
	assert.False(t, status.Revoked)
	assert.Equal(t, "user-1", status.UserID)

	_, err = registry.BlacklistToken(ctx, signed, 0)
	require.NoError(t, err)

	status, err = registry.CheckToken(ctx, signed)
	require.NoError(t, err)
	assert.True(t, status.Revoked)
	assert.Equal(t, "token_blacklisted", status.Reason)

	// A different user's token minted before their cutoff is revoked in
	// bulk without being individually blacklisted.
	bulk, err := registry.verifier.Mint("user-2")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = registry.BlacklistUserTokens(ctx, "user-2", 0)
	require.NoError(t, err)

	status, err = registry.CheckToken(ctx, bulk)
	require.NoError(t, err)
	assert.True(t, status.Revoked)
	assert.Equal(t, "user_tokens_revoked", status.Reason)

	// A cutoff in the past leaves newly minted tokens valid.
	past := time.Now().Add(-2 * time.Second).UnixMilli()
	require.NoError(t, store.Set(ctx, userKey("user-3"), strconv.FormatInt(past, 10), 0))
	fresh, err := registry.verifier.Mint("user-3")
	require.NoError(t, err)

	status, err = registry.CheckToken(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, status.Valid)

	status, err = registry.CheckToken(ctx, "garbage")
	assert.Error(t, err)
	assert.False(t, status.Valid)
	assert.Equal(t, "invalid_token", status.Reason)
}
