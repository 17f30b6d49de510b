package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	mc := NewMemoryCache(DefaultConfig())
	defer mc.Close()
	ctx := context.Background()

	value := []byte("payload")
	if err := mc.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'

	got, err := mc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("stored value mutated: %q", got)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	mc := NewMemoryCache(&Config{Prefix: "t:", Enabled: true})
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	if _, err := mc.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if mc.Len() != 0 {
		t.Fatalf("expired entry still counted")
	}
}

func TestMemoryCache_ClearKeepsOtherPrefixes(t *testing.T) {
	shared := NewMemoryCache(&Config{Prefix: "a:", Enabled: true})
	defer shared.Close()
	ctx := context.Background()

	shared.Set(ctx, "one", []byte("1"), 0)
	shared.items["b:other"] = &memoryCacheItem{value: []byte("2")}

	if err := shared.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := shared.items["b:other"]; !ok {
		t.Fatalf("foreign key removed by Clear")
	}
	if ok, _ := shared.Exists(ctx, "one"); ok {
		t.Fatalf("prefixed key survived Clear")
	}
}

func TestMemoryCache_Disabled(t *testing.T) {
	mc := NewMemoryCache(&Config{Enabled: false})
	defer mc.Close()

	_, err := mc.Get(context.Background(), "k")
	if !errors.Is(err, ErrCacheDisabled) {
		t.Fatalf("expected ErrCacheDisabled, got %v", err)
	}
	if err := mc.Ping(context.Background()); err == nil {
		t.Fatalf("disabled cache should fail ping")
	}
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	mc := NewMemoryCache(nil)
	mc.Close()
	mc.Close()
}

func TestMemoryCache_EvictKeepsNewerValue(t *testing.T) {
	mc := NewMemoryCache(&Config{Prefix: "t:", Enabled: true})
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", []byte("old"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	mc.mu.RLock()
	stale := mc.items["t:k"]
	mc.mu.RUnlock()

	// a Set lands between the expiry check and the eviction
	if err := mc.Set(ctx, "k", []byte("new"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mc.evict("t:k", stale)

	got, err := mc.Get(ctx, "k")
	if err != nil || string(got) != "new" {
		t.Fatalf("get = %q, %v", got, err)
	}

	mc.mu.RLock()
	current := mc.items["t:k"]
	mc.mu.RUnlock()
	mc.evict("t:k", current)
	if _, err := mc.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("matching item not evicted: %v", err)
	}
}
