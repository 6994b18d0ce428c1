package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Interface is the contract shared by the memory and Redis caches.
type Interface interface {
	Set(ctx context.Context, key string, value any)
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration)
	Get(ctx context.Context, key string) (any, bool)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Size() int64
	Close() error
}

// item represents a cached value with metadata. Entries are stored by pointer
// so sync.Map compare operations work for non-comparable values such as []byte.
type item struct {
	value      any
	expiration time.Time
}

// Config contains options for configuring a cache.
type Config struct {
	// DefaultTTL is the default time-to-live for cache entries.
	DefaultTTL time.Duration
	// CleanupInterval is how often the cache runs cleanup.
	CleanupInterval time.Duration
	// MaxItems is the maximum number of items allowed in the cache.
	MaxItems int
	// OnEviction is called when an item is evicted from the cache.
	OnEviction func(key string, value any)
}

// DefaultConfig returns a default configuration for the cache.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
		OnEviction:      nil,
	}
}

// Cache is a thread-safe in-memory cache with TTL and a bounded item count.
type Cache struct {
	data      sync.Map
	config    Config
	itemCount int64
	stopChan  chan struct{}
	closedMu  sync.Mutex
	closed    bool

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new memory cache with the given configuration.
func New(config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}
	c := &Cache{
		config:   config,
		stopChan: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// NewDefault creates a new memory cache with default configuration.
func NewDefault() *Cache {
	return New(DefaultConfig())
}

// Set adds a value to the cache with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

// SetWithTTL adds a value to the cache with a custom TTL.
func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	if _, loaded := c.data.Swap(key, &item{
		value:      value,
		expiration: time.Now().Add(ttl),
	}); !loaded {
		atomic.AddInt64(&c.itemCount, 1)
	}

	if c.config.MaxItems > 0 && atomic.LoadInt64(&c.itemCount) > int64(c.config.MaxItems) {
		c.evictOldest()
	}
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	value, ok := c.data.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	itm, ok := value.(*item)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if time.Now().After(itm.expiration) {
		if c.data.CompareAndDelete(key, value) {
			atomic.AddInt64(&c.itemCount, -1)
			if c.config.OnEviction != nil {
				c.config.OnEviction(key, itm.value)
			}
		}
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return itm.value, true
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) {
	if value, loaded := c.data.LoadAndDelete(key); loaded {
		atomic.AddInt64(&c.itemCount, -1)
		if c.config.OnEviction != nil {
			if itm, ok := value.(*item); ok {
				c.config.OnEviction(key, itm.value)
			}
		}
	}
}

// Clear removes all values from the cache.
func (c *Cache) Clear(_ context.Context) {
	c.data.Range(func(key, value any) bool {
		if c.data.CompareAndDelete(key, value) {
			atomic.AddInt64(&c.itemCount, -1)
			if c.config.OnEviction != nil {
				if itm, ok := value.(*item); ok {
					if keyStr, ok := key.(string); ok {
						c.config.OnEviction(keyStr, itm.value)
					}
				}
			}
		}
		return true
	})
}

// Size returns the number of items in the cache.
func (c *Cache) Size() int64 {
	return atomic.LoadInt64(&c.itemCount)
}

// Hits returns the number of successful lookups.
func (c *Cache) Hits() int64 {
	return c.hits.Load()
}

// Misses returns the number of failed or expired lookups.
func (c *Cache) Misses() int64 {
	return c.misses.Load()
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stopChan)
	return nil
}

// evictOldest removes the entries closest to expiry until the cache is back under MaxItems.
func (c *Cache) evictOldest() {
	for atomic.LoadInt64(&c.itemCount) > int64(c.config.MaxItems) {
		var oldestKey any
		var oldestValue any
		var oldestTime time.Time

		c.data.Range(func(key, value any) bool {
			itm, ok := value.(*item)
			if !ok {
				return true
			}
			if oldestKey == nil || itm.expiration.Before(oldestTime) {
				oldestKey = key
				oldestValue = value
				oldestTime = itm.expiration
			}
			return true
		})

		if oldestKey == nil {
			return
		}
		if c.data.CompareAndDelete(oldestKey, oldestValue) {
			atomic.AddInt64(&c.itemCount, -1)
			if c.config.OnEviction != nil {
				if keyStr, ok := oldestKey.(string); ok {
					c.config.OnEviction(keyStr, oldestValue.(*item).value)
				}
			}
		}
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopChan:
			return
		}
	}
}

// cleanup removes expired items.
func (c *Cache) cleanup() {
	now := time.Now()
	c.data.Range(func(key, value any) bool {
		itm, ok := value.(*item)
		if !ok {
			return true
		}
		if now.After(itm.expiration) {
			if c.data.CompareAndDelete(key, value) {
				atomic.AddInt64(&c.itemCount, -1)
				if c.config.OnEviction != nil {
					if keyStr, ok := key.(string); ok {
						c.config.OnEviction(keyStr, itm.value)
					}
				}
			}
		}
		return true
	})
}
