package store

import (
	"context"
	"time"
)

// TTSUsage is one billable synthesis call.
type TTSUsage struct {
	ID         int64
	CreatedTs  int64
	Provider   string
	ModelID    string
	Hash       string
	Characters int64
	LatencyMs  int64
	Cost       float64
	Success    bool
}

type FindTTSUsage struct {
	Provider       *string
	CreatedTsAfter *int64
	Limit          int
}

// TTSUsageSummary aggregates usage over a time window.
type TTSUsageSummary struct {
	Calls        int64
	FailedCalls  int64
	Characters   int64
	TotalCost    float64
	AvgLatencyMs float64
}

func (s *Store) CreateTTSUsage(ctx context.Context, create *TTSUsage) (*TTSUsage, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateTTSUsage(ctx, create)
}

func (s *Store) ListTTSUsage(ctx context.Context, find *FindTTSUsage) ([]*TTSUsage, error) {
	return s.driver.ListTTSUsage(ctx, find)
}

func (s *Store) GetTTSUsageSummary(ctx context.Context, since int64) (*TTSUsageSummary, error) {
	return s.driver.GetTTSUsageSummary(ctx, since)
}
