// Package finops tracks the cost of billable speech synthesis calls.
package finops

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/store"
)

const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"

	topCostLimit = 10
	// reportScanLimit bounds the rows read for per-provider breakdowns.
	reportScanLimit = 1000
)

// CostMonitor records synthesis usage and reports spend.
type CostMonitor struct {
	store        *store.Store
	logger       *slog.Logger
	costPerKChar float64

	// In-memory copy of the last report per period.
	reportCache map[string]*CostReport
	cacheMutex  sync.RWMutex
	cacheTTL    time.Duration
}

// UsageRecord is one provider call.
type UsageRecord struct {
	Timestamp time.Time
	Provider  string
	ModelID   string
	Hash      string
	Text      string
	LatencyMs int64
	Success   bool
}

// ProviderStats aggregates usage of one provider.
type ProviderStats struct {
	Provider    string  `json:"provider"`
	Calls       int64   `json:"calls"`
	Characters  int64   `json:"characters"`
	Cost        float64 `json:"cost"`
	AvgLatency  float64 `json:"avg_latency_ms"`
	FailedCalls int64   `json:"failed_calls"`
}

// CostReport summarizes usage since the start of a period.
type CostReport struct {
	Period       string                    `json:"period"`
	Since        time.Time                 `json:"since"`
	Calls        int64                     `json:"calls"`
	FailedCalls  int64                     `json:"failed_calls"`
	Characters   int64                     `json:"characters"`
	TotalCost    float64                   `json:"total_cost"`
	AvgLatencyMs float64                   `json:"avg_latency_ms"`
	ByProvider   map[string]*ProviderStats `json:"by_provider"`
	TopCosts     []*store.TTSUsage         `json:"top_costs"`
	GeneratedAt  time.Time                 `json:"generated_at"`
}

// NewCostMonitor creates a monitor billing costPerKChar per thousand characters.
func NewCostMonitor(st *store.Store, costPerKChar float64) *CostMonitor {
	return &CostMonitor{
		store:        st,
		logger:       slog.Default(),
		costPerKChar: costPerKChar,
		reportCache:  make(map[string]*CostReport),
		cacheTTL:     time.Minute,
	}
}

// Record stores a usage row. Failed calls are recorded at zero cost.
func (m *CostMonitor) Record(ctx context.Context, record *UsageRecord) (*store.TTSUsage, error) {
	if record == nil {
		return nil, errors.New("record cannot be nil")
	}
	if record.Provider == "" {
		m.logger.WarnContext(ctx, "Empty provider in usage record", "hash", record.Hash)
		return nil, errors.New("provider cannot be empty")
	}
	if record.LatencyMs < 0 {
		m.logger.WarnContext(ctx, "Negative latency in usage record",
			"provider", record.Provider,
			"latency_ms", record.LatencyMs,
		)
		return nil, errors.New("latency cannot be negative")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	characters := utf8.RuneCountInString(record.Text)
	cost := 0.0
	if record.Success {
		cost = EstimateSynthesisCost(characters, m.costPerKChar)
	}

	usage, err := m.store.CreateTTSUsage(ctx, &store.TTSUsage{
		CreatedTs:  record.Timestamp.Unix(),
		Provider:   record.Provider,
		ModelID:    record.ModelID,
		Hash:       record.Hash,
		Characters: int64(characters),
		LatencyMs:  record.LatencyMs,
		Cost:       cost,
		Success:    record.Success,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to record synthesis usage",
			"provider", record.Provider,
			"hash", record.Hash,
			"error", err,
		)
		return nil, err
	}

	m.cacheMutex.Lock()
	clear(m.reportCache)
	m.cacheMutex.Unlock()

	m.logger.DebugContext(ctx, "Recorded synthesis usage",
		"provider", record.Provider,
		"characters", characters,
		"cost", cost,
		"latency_ms", record.LatencyMs,
	)
	return usage, nil
}

// GetCostReport returns usage since the start of period. Reports are cached briefly.
func (m *CostMonitor) GetCostReport(ctx context.Context, period string) (*CostReport, error) {
	since, err := PeriodStart(period, time.Now())
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = PeriodDay
	}

	m.cacheMutex.RLock()
	if cached, ok := m.reportCache[period]; ok && time.Since(cached.GeneratedAt) < m.cacheTTL {
		m.cacheMutex.RUnlock()
		return cached, nil
	}
	m.cacheMutex.RUnlock()

	summary, err := m.store.GetTTSUsageSummary(ctx, since.Unix())
	if err != nil {
		return nil, err
	}
	sinceTs := since.Unix()
	usages, err := m.store.ListTTSUsage(ctx, &store.FindTTSUsage{
		CreatedTsAfter: &sinceTs,
		Limit:          reportScanLimit,
	})
	if err != nil {
		return nil, err
	}

	report := &CostReport{
		Period:       period,
		Since:        since,
		Calls:        summary.Calls,
		FailedCalls:  summary.FailedCalls,
		Characters:   summary.Characters,
		TotalCost:    summary.TotalCost,
		AvgLatencyMs: summary.AvgLatencyMs,
		ByProvider:   aggregateByProvider(usages),
		TopCosts:     topCosts(usages, topCostLimit),
		GeneratedAt:  time.Now(),
	}

	m.cacheMutex.Lock()
	m.reportCache[period] = report
	m.cacheMutex.Unlock()
	return report, nil
}

func aggregateByProvider(usages []*store.TTSUsage) map[string]*ProviderStats {
	byProvider := make(map[string]*ProviderStats)
	latencies := make(map[string]int64)
	for _, usage := range usages {
		stats, ok := byProvider[usage.Provider]
		if !ok {
			stats = &ProviderStats{Provider: usage.Provider}
			byProvider[usage.Provider] = stats
		}
		stats.Calls++
		stats.Characters += usage.Characters
		stats.Cost += usage.Cost
		if !usage.Success {
			stats.FailedCalls++
		}
		latencies[usage.Provider] += usage.LatencyMs
	}
	for provider, stats := range byProvider {
		stats.AvgLatency = float64(latencies[provider]) / float64(stats.Calls)
	}
	return byProvider
}

func topCosts(usages []*store.TTSUsage, limit int) []*store.TTSUsage {
	sorted := make([]*store.TTSUsage, len(usages))
	copy(sorted, usages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Cost > sorted[j].Cost
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// PeriodStart returns the start of the reporting window ending at now.
func PeriodStart(period string, now time.Time) (time.Time, error) {
	switch period {
	case PeriodDay, "daily", "today", "":
		return now.AddDate(0, 0, -1), nil
	case PeriodWeek, "weekly", "this_week":
		return now.AddDate(0, 0, -7), nil
	case PeriodMonth, "monthly", "this_month":
		return now.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, errors.Errorf("unsupported period %q", period)
	}
}

// EstimateSynthesisCost prices characters at costPerKChar per thousand characters.
func EstimateSynthesisCost(characters int, costPerKChar float64) float64 {
	if characters <= 0 || costPerKChar <= 0 {
		return 0
	}
	return float64(characters) / 1000.0 * costPerKChar
}
