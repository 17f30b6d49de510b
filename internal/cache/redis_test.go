package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = -1

	rc, err := NewRedisCache(config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestRedisCache_SetGetExpire(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("pipeline:k") {
		t.Fatalf("key not written with prefix")
	}

	got, err := rc.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("get = %q, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := rc.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected not found after ttl, got %v", err)
	}
}

func TestRedisCache_Clear(t *testing.T) {
	rc, mr := newTestRedis(t)
	ctx := context.Background()

	rc.Set(ctx, "a", []byte("1"), time.Minute)
	rc.Set(ctx, "b", []byte("2"), time.Minute)
	mr.Set("foreign", "x")

	if err := rc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _ := rc.Exists(ctx, "a"); ok {
		t.Fatalf("a survived clear")
	}
	if !mr.Exists("foreign") {
		t.Fatalf("unprefixed key removed")
	}
}

func TestRedisCache_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	config := DefaultRedisConfig()
	config.Addr = addr
	config.MaxRetries = -1
	config.DialTimeout = 100 * time.Millisecond

	if _, err := NewRedisCache(config); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestFallbackCache_PrimaryOutage(t *testing.T) {
	rc, mr := newTestRedis(t)
	mem := NewMemoryCache(DefaultConfig())
	fc := newFallback(rc, mem, nil)
	ctx := context.Background()

	if err := fc.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	mr.Close()

	got, err := fc.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("fallback get = %q, %v", got, err)
	}
}

func TestFallbackCache_PrimaryMissIsAuthoritative(t *testing.T) {
	rc, _ := newTestRedis(t)
	mem := NewMemoryCache(DefaultConfig())
	fc := newFallback(rc, mem, nil)
	ctx := context.Background()

	mem.Set(ctx, "stale", []byte("old"), time.Minute)

	if _, err := fc.Get(ctx, "stale"); !IsNotFound(err) {
		t.Fatalf("expected primary miss, got %v", err)
	}
}

func TestFallbackCache_MemoryOnly(t *testing.T) {
	fc := newFallback(nil, NewMemoryCache(DefaultConfig()), nil)
	defer fc.Close()
	ctx := context.Background()

	fc.Set(ctx, "k", []byte("v"), time.Minute)
	if ok, err := fc.Exists(ctx, "k"); !ok || err != nil {
		t.Fatalf("exists = %v, %v", ok, err)
	}
	if err := fc.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
