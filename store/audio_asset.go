package store

import (
	"context"
	"time"
)

// AudioAsset records a synthesized MP3 stored under its content hash.
// Assets are immutable: re-inserting an existing hash keeps the original row.
type AudioAsset struct {
	Hash        string
	Bucket      string
	ObjectKey   string
	Size        int64
	ContentType string
	DurationMs  int64
	Provider    string
	VoiceID     string
	ModelID     string
	CreatedTs   int64
}

type FindAudioAsset struct {
	Hash     *string
	Provider *string
	Bucket   *string

	// CreatedTsAfter filters assets created at or after the unix timestamp.
	CreatedTsAfter *int64

	// Pagination
	Limit  int
	Offset int
}

// AudioAssetSummary aggregates the stored assets.
type AudioAssetSummary struct {
	Count           int64
	TotalSize       int64
	TotalDurationMs int64
	CountByProvider map[string]int64
}

func (s *Store) UpsertAudioAsset(ctx context.Context, upsert *AudioAsset) (*AudioAsset, error) {
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = time.Now().Unix()
	}
	if upsert.ContentType == "" {
		upsert.ContentType = "audio/mpeg"
	}
	return s.driver.UpsertAudioAsset(ctx, upsert)
}

func (s *Store) ListAudioAssets(ctx context.Context, find *FindAudioAsset) ([]*AudioAsset, error) {
	return s.driver.ListAudioAssets(ctx, find)
}

// GetAudioAsset returns nil, nil when no asset exists for the hash.
func (s *Store) GetAudioAsset(ctx context.Context, find *FindAudioAsset) (*AudioAsset, error) {
	list, err := s.ListAudioAssets(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) GetAudioAssetSummary(ctx context.Context) (*AudioAssetSummary, error) {
	return s.driver.GetAudioAssetSummary(ctx)
}
