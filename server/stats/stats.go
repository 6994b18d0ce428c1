// Package stats periodically collects audio asset, usage and cache statistics.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/speechcare/server/internal/observability"
	"github.com/hrygo/speechcare/server/timezone"
	"github.com/hrygo/speechcare/store"
	"github.com/hrygo/speechcare/store/cache"
)

// DefaultInterval is how often the collector refreshes.
const DefaultInterval = 5 * time.Minute

// Stats represents service statistics.
type Stats struct {
	// Asset stats
	TotalAssets          int64            `json:"total_assets"`
	TotalAssetBytes      int64            `json:"total_asset_bytes"`
	TotalAudioDurationMs int64            `json:"total_audio_duration_ms"`
	AssetsByProvider     map[string]int64 `json:"assets_by_provider"`

	// AAC content stats
	Questions          int64 `json:"questions"`
	QuestionsLinked    int64 `json:"questions_linked"`
	EmotionCards       int64 `json:"emotion_cards"`
	EmotionCardsLinked int64 `json:"emotion_cards_linked"`

	// Synthesis stats
	SynthesesToday    int64   `json:"syntheses_today"`
	SynthesesThisWeek int64   `json:"syntheses_this_week"`
	CostThisWeek      float64 `json:"cost_this_week"`

	Cache    *cache.CacheStats              `json:"cache,omitempty"`
	Requests *observability.MetricsSnapshot `json:"requests,omitempty"`

	LastUpdated time.Time `json:"last_updated"`
}

// Collector collects and manages service statistics.
type Collector struct {
	store      *store.Store
	audioCache *cache.TieredCache
	metrics    *observability.Metrics
	interval   time.Duration
	location   *time.Location
	stats      *Stats
	mu         sync.Mutex
	tickStop   chan struct{}
	stopOnce   sync.Once
}

// NewCollector creates a new statistics collector. audioCache and metrics may be nil.
func NewCollector(st *store.Store, audioCache *cache.TieredCache, metrics *observability.Metrics) *Collector {
	return &Collector{
		store:      st,
		audioCache: audioCache,
		metrics:    metrics,
		interval:   DefaultInterval,
		location:   timezone.UTC,
		stats: &Stats{
			AssetsByProvider: map[string]int64{},
			LastUpdated:      time.Now(),
		},
		tickStop: make(chan struct{}),
	}
}

// SetLocation sets the timezone whose calendar days and weeks are reported.
func (c *Collector) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = timezone.UTC
	}
	c.mu.Lock()
	c.location = loc
	c.mu.Unlock()
}

// Start collects once and then refreshes every interval until ctx ends or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.collect(ctx)

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect(ctx)
			case <-ctx.Done():
				return
			case <-c.tickStop:
				return
			}
		}
	}()
}

// Stop stops the statistics collector.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.tickStop)
	})
}

// GetStats returns a copy of current statistics with live cache and request counters.
func (c *Collector) GetStats() *Stats {
	c.mu.Lock()
	snapshot := *c.stats
	snapshot.AssetsByProvider = make(map[string]int64, len(c.stats.AssetsByProvider))
	for provider, n := range c.stats.AssetsByProvider {
		snapshot.AssetsByProvider[provider] = n
	}
	c.mu.Unlock()

	if c.audioCache != nil {
		snapshot.Cache = c.audioCache.Stats()
	}
	if c.metrics != nil {
		snapshot.Requests = c.metrics.Snapshot()
	}
	return &snapshot
}

// collect gathers current statistics from the store.
func (c *Collector) collect(ctx context.Context) {
	c.mu.Lock()
	loc := c.location
	c.mu.Unlock()

	now := time.Now().In(loc)
	next := &Stats{AssetsByProvider: map[string]int64{}}

	if summary, err := c.store.GetAudioAssetSummary(ctx); err == nil {
		next.TotalAssets = summary.Count
		next.TotalAssetBytes = summary.TotalSize
		next.TotalAudioDurationMs = summary.TotalDurationMs
		for provider, n := range summary.CountByProvider {
			next.AssetsByProvider[provider] = n
		}
	} else {
		slog.Warn("failed to collect audio asset stats", "error", err)
	}

	if questions, err := c.store.ListQuestions(ctx, &store.FindQuestion{}); err == nil {
		next.Questions = int64(len(questions))
		for _, q := range questions {
			if q.AudioURL != "" {
				next.QuestionsLinked++
			}
		}
	} else {
		slog.Warn("failed to collect question stats", "error", err)
	}

	if cards, err := c.store.ListEmotionCards(ctx, &store.FindEmotionCard{}); err == nil {
		next.EmotionCards = int64(len(cards))
		for _, card := range cards {
			if card.AudioURL != "" {
				next.EmotionCardsLinked++
			}
		}
	} else {
		slog.Warn("failed to collect emotion card stats", "error", err)
	}

	if today, err := c.store.GetTTSUsageSummary(ctx, timezone.StartOfDay(now, loc).Unix()); err == nil {
		next.SynthesesToday = today.Calls
	}
	if week, err := c.store.GetTTSUsageSummary(ctx, timezone.StartOfWeek(now, loc).Unix()); err == nil {
		next.SynthesesThisWeek = week.Calls
		next.CostThisWeek = week.TotalCost
	}

	next.LastUpdated = now

	c.mu.Lock()
	c.stats = next
	c.mu.Unlock()
}

// GetSummary returns a human-readable summary.
func (s *Stats) GetSummary() string {
	summary := fmt.Sprintf(
		`Usage statistics (updated %s)

Audio assets
  Total: %d
  Size: %s
  Duration: %s

AAC content
  Questions: %d (%d with audio)
  Emotion cards: %d (%d with audio)

Synthesis
  Today: %d
  This week: %d
  Cost this week: $%.4f`,
		s.LastUpdated.Format("2006-01-02 15:04"),
		s.TotalAssets,
		formatBytes(s.TotalAssetBytes),
		(time.Duration(s.TotalAudioDurationMs) * time.Millisecond).Round(time.Second),
		s.Questions,
		s.QuestionsLinked,
		s.EmotionCards,
		s.EmotionCardsLinked,
		s.SynthesesToday,
		s.SynthesesThisWeek,
		s.CostThisWeek,
	)
	if s.Cache != nil {
		summary += fmt.Sprintf("\n\nCache\n  L1 hits: %d\n  L2 hits: %d\n  Misses: %d",
			s.Cache.L1Hits, s.Cache.L2Hits, s.Cache.Misses)
	}
	return summary
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
