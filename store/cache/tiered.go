package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// TieredCache implements a two-tier caching strategy for audio payloads:
// - L1: In-memory cache (fast, small, DEFAULT)
// - L2: Redis cache (shared across instances, OPTIONAL)
//
// The object store behind both tiers is the source of truth; callers fetch
// from it on a miss and Set the result.
type TieredCache struct {
	l1    *Cache
	l2    Interface
	l2TTL time.Duration

	l1Hits atomic.Int64
	l2Hits atomic.Int64
	misses atomic.Int64
}

// TieredCacheConfig holds the configuration for the tiered cache.
type TieredCacheConfig struct {
	L1MaxItems int           // Max items in L1 memory cache
	L1TTL      time.Duration // TTL for L1 cache entries
	L2TTL      time.Duration // TTL for L2 Redis cache entries
	L2         Interface     // Optional L2 cache, nil disables it
}

// DefaultTieredConfig returns the default tiered cache configuration.
func DefaultTieredConfig() *TieredCacheConfig {
	return &TieredCacheConfig{
		L1MaxItems: 256,
		L1TTL:      time.Hour,
		L2TTL:      24 * time.Hour,
	}
}

// NewTieredCache creates a new tiered cache.
func NewTieredCache(config *TieredCacheConfig) *TieredCache {
	if config == nil {
		config = DefaultTieredConfig()
	}

	return &TieredCache{
		l1: New(Config{
			DefaultTTL:      config.L1TTL,
			CleanupInterval: time.Minute,
			MaxItems:        config.L1MaxItems,
		}),
		l2:    config.L2,
		l2TTL: config.L2TTL,
	}
}

// Get returns the payload for key, checking L1 then L2. An L2 hit is promoted to L1.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, found := t.l1.Get(ctx, key); found {
		if data, ok := value.([]byte); ok {
			t.l1Hits.Add(1)
			return data, true
		}
	}

	if t.l2 != nil {
		if value, found := t.l2.Get(ctx, key); found {
			if data, ok := value.([]byte); ok && len(data) > 0 {
				t.l1.Set(ctx, key, data)
				t.l2Hits.Add(1)
				return data, true
			}
		}
	}

	t.misses.Add(1)
	return nil, false
}

// Set stores a payload in both tiers.
func (t *TieredCache) Set(ctx context.Context, key string, data []byte) {
	t.l1.Set(ctx, key, data)
	if t.l2 == nil {
		return
	}
	if t.l2TTL > 0 {
		t.l2.SetWithTTL(ctx, key, data, t.l2TTL)
		return
	}
	t.l2.Set(ctx, key, data)
}

// Delete removes a payload from both tiers.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	t.l1.Delete(ctx, key)
	if t.l2 != nil {
		t.l2.Delete(ctx, key)
	}
}

// Clear clears all tiers.
func (t *TieredCache) Clear(ctx context.Context) {
	t.l1.Clear(ctx)
	if t.l2 != nil {
		t.l2.Clear(ctx)
	}
}

// CacheStats represents combined cache statistics.
type CacheStats struct {
	L1Size    int64 `json:"l1_size"`
	L2Size    int64 `json:"l2_size"`
	L2Enabled bool  `json:"l2_enabled"`
	L1Hits    int64 `json:"l1_hits"`
	L2Hits    int64 `json:"l2_hits"`
	Misses    int64 `json:"misses"`
}

// Stats returns cache statistics. L2Size is -1 when L2 size is unavailable.
func (t *TieredCache) Stats() *CacheStats {
	stats := &CacheStats{
		L1Size: t.l1.Size(),
		L1Hits: t.l1Hits.Load(),
		L2Hits: t.l2Hits.Load(),
		Misses: t.misses.Load(),
	}
	if t.l2 != nil {
		stats.L2Enabled = true
		stats.L2Size = t.l2.Size()
	}
	return stats
}

// Close closes all cache connections.
func (t *TieredCache) Close() error {
	var errs []error

	if t.l2 != nil {
		if err := t.l2.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.l1.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Errorf("multiple errors: %v", errs)
	}
	return nil
}
