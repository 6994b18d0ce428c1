package store

import (
	"time"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Caches
	questionCache    *cache.Cache // cache for questions
	emotionCardCache *cache.Cache // cache for emotion cards
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	// Default cache settings
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
		OnEviction:      nil,
	}

	store := &Store{
		driver:           driver,
		profile:          profile,
		cacheConfig:      cacheConfig,
		questionCache:    cache.New(cacheConfig),
		emotionCardCache: cache.New(cacheConfig),
	}

	return store
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	// Stop all cache cleanup goroutines
	s.questionCache.Close()
	s.emotionCardCache.Close()

	return s.driver.Close()
}
