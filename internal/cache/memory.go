package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with TTL support
type MemoryCache struct {
	config    *Config
	items     map[string]*memoryCacheItem
	mu        sync.RWMutex
	stopCh    chan struct{}
	closeOnce sync.Once
}

type memoryCacheItem struct {
	value      []byte
	expiration time.Time
	hasExpiry  bool
}

func (it *memoryCacheItem) expired(now time.Time) bool {
	return it.hasExpiry && now.After(it.expiration)
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(config *Config) *MemoryCache {
	if config == nil {
		config = DefaultConfig()
	}

	mc := &MemoryCache{
		config: config,
		items:  make(map[string]*memoryCacheItem),
		stopCh: make(chan struct{}),
	}

	// Start cleanup goroutine
	go mc.cleanupExpired()

	return mc
}

// Get retrieves a value from the cache
func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !mc.config.Enabled {
		return nil, ErrCacheDisabled
	}

	key = mc.prefixKey(key)

	mc.mu.RLock()
	item, exists := mc.items[key]
	mc.mu.RUnlock()

	if !exists {
		return nil, ErrCacheNotFound
	}

	if item.expired(time.Now()) {
		mc.evict(key, item)
		return nil, ErrCacheNotFound
	}

	return item.value, nil
}

// Set stores a value in the cache with optional TTL
func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}

	key = mc.prefixKey(key)

	if ttl == 0 {
		ttl = mc.config.DefaultTTL
	}

	// entries are immutable once stored
	item := &memoryCacheItem{
		value:     append([]byte(nil), value...),
		hasExpiry: ttl > 0,
	}
	if item.hasExpiry {
		item.expiration = time.Now().Add(ttl)
	}

	mc.mu.Lock()
	mc.items[key] = item
	mc.mu.Unlock()

	return nil
}

// Delete removes a value from the cache
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}

	key = mc.prefixKey(key)

	mc.mu.Lock()
	delete(mc.items, key)
	mc.mu.Unlock()

	return nil
}

// Exists checks if a key exists in the cache
func (mc *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if _, err := mc.Get(ctx, key); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear removes all entries under the prefix
func (mc *MemoryCache) Clear(ctx context.Context) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}

	mc.mu.Lock()
	for key := range mc.items {
		if strings.HasPrefix(key, mc.config.Prefix) {
			delete(mc.items, key)
		}
	}
	mc.mu.Unlock()

	return nil
}

// Len returns the number of live entries.
func (mc *MemoryCache) Len() int {
	now := time.Now()
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	n := 0
	for _, item := range mc.items {
		if !item.expired(now) {
			n++
		}
	}
	return n
}

// Ping checks if the cache is accessible
func (mc *MemoryCache) Ping(ctx context.Context) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}
	return nil
}

// Close stops the cleanup goroutine
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stopCh) })
	return nil
}

// cleanupExpired periodically removes expired items
func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpiredItems()
		case <-mc.stopCh:
			return
		}
	}
}

// evict removes key only while it still holds item, so a value stored
// after the expiry check survives.
func (mc *MemoryCache) evict(key string, item *memoryCacheItem) {
	mc.mu.Lock()
	if mc.items[key] == item {
		delete(mc.items, key)
	}
	mc.mu.Unlock()
}

func (mc *MemoryCache) removeExpiredItems() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for key, item := range mc.items {
		if item.expired(now) {
			delete(mc.items, key)
		}
	}
}

func (mc *MemoryCache) prefixKey(key string) string {
	if mc.config.Prefix == "" {
		return key
	}
	return mc.config.Prefix + key
}
