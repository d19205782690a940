package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newRedisTestStore(t *testing.T) (*redisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	store, err := NewRedis(Config{
		Redis: &RedisConfig{
			Addr:   mr.Addr(),
			Prefix: "test:",
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Disconnect()
	})

	return store, mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTestStore(t)

	if !store.Connected() {
		t.Fatal("expected connected store after Connect")
	}

	if err := store.Set(ctx, "lockout:failed_attempts:email:a@b.c", `{"attempts":1}`, 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	val, found, err := store.Get(ctx, "lockout:failed_attempts:email:a@b.c")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !found || val != `{"attempts":1}` {
		t.Fatalf("unexpected value: found=%v val=%s", found, val)
	}

	_, found, err = store.Get(ctx, "lockout:failed_attempts:email:missing")
	if err != nil {
		t.Fatalf("Get miss error: %v", err)
	}
	if found {
		t.Fatal("expected miss for unknown key")
	}

	if err := store.Delete(ctx, "lockout:failed_attempts:email:a@b.c"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	_, found, _ = store.Get(ctx, "lockout:failed_attempts:email:a@b.c")
	if found {
		t.Fatal("expected missing key after delete")
	}
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisTestStore(t)

	if err := store.Set(ctx, "blacklist:tok", "1", time.Second); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	_, found, _ := store.Get(ctx, "blacklist:tok")
	if !found {
		t.Fatal("expected key before expiry")
	}

	mr.FastForward(2 * time.Second)

	_, found, err := store.Get(ctx, "blacklist:tok")
	if err != nil {
		t.Fatalf("Get error after expiry: %v", err)
	}
	if found {
		t.Fatal("expected key to expire")
	}
}

func TestRedisStoreKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTestStore(t)

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("blacklist:token-%d", i)
		if err := store.Set(ctx, key, "1", 0); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}
	if err := store.Set(ctx, "blacklist:user:42", "1700000000000", 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	keys, err := store.Keys(ctx, "blacklist:token-")
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d: %v", len(keys), keys)
	}
	sort.Strings(keys)
	if keys[0] != "blacklist:token-0" {
		t.Fatalf("expected namespaced key without store prefix, got %s", keys[0])
	}

	all, err := store.Keys(ctx, "blacklist:")
	if err != nil {
		t.Fatalf("Keys error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(all))
	}
}

func TestRedisStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTestStore(t)

	increment := func(current string, exists bool) (string, error) {
		n := 0
		if exists {
			parsed, err := strconv.Atoi(current)
			if err != nil {
				return "", err
			}
			n = parsed
		}
		return strconv.Itoa(n + 1), nil
	}

	for i := 1; i <= 3; i++ {
		next, err := store.Update(ctx, "counter", 0, increment)
		if err != nil {
			t.Fatalf("Update error: %v", err)
		}
		if next != strconv.Itoa(i) {
			t.Fatalf("expected %d, got %s", i, next)
		}
	}

	val, found, _ := store.Get(ctx, "counter")
	if !found || val != "3" {
		t.Fatalf("unexpected final counter: found=%v val=%s", found, val)
	}
}

func TestRedisStoreUpdateCallbackError(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTestStore(t)

	if err := store.Set(ctx, "record", "original", 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	_, err := store.Update(ctx, "record", 0, func(string, bool) (string, error) {
		return "", fmt.Errorf("corrupt record")
	})
	if err == nil {
		t.Fatal("expected callback error to propagate")
	}

	val, _, _ := store.Get(ctx, "record")
	if val != "original" {
		t.Fatalf("value should be untouched after failed update, got %s", val)
	}
}

func TestRedisStoreStats(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisTestStore(t)

	for i := 0; i < 5; i++ {
		if err := store.Set(ctx, fmt.Sprintf("ip:history:u%d", i), "[]", 0); err != nil {
			t.Fatalf("Set error: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Driver != DriverRedis {
		t.Fatalf("unexpected driver: %s", stats.Driver)
	}
	if stats.Entries != 5 {
		t.Fatalf("expected 5 entries, got %d", stats.Entries)
	}
}
