package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/store"
)

const audioAssetColumns = "hash, bucket, object_key, size, content_type, duration_ms, provider, voice_id, model_id, created_ts"

// UpsertAudioAsset inserts the asset unless the hash already exists, then
// returns the stored row. Existing rows are never modified.
func (d *DB) UpsertAudioAsset(ctx context.Context, upsert *store.AudioAsset) (*store.AudioAsset, error) {
	args := []any{
		upsert.Hash,
		upsert.Bucket,
		upsert.ObjectKey,
		upsert.Size,
		upsert.ContentType,
		upsert.DurationMs,
		upsert.Provider,
		upsert.VoiceID,
		upsert.ModelID,
		upsert.CreatedTs,
	}
	stmt := "INSERT INTO audio_asset (" + audioAssetColumns + ") VALUES (" + placeholders(len(args)) + ") ON CONFLICT(hash) DO NOTHING"
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to upsert audio asset")
	}

	list, err := d.ListAudioAssets(ctx, &store.FindAudioAsset{Hash: &upsert.Hash})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("audio asset %s not found after upsert", upsert.Hash)
	}
	return list[0], nil
}

func (d *DB) ListAudioAssets(ctx context.Context, find *store.FindAudioAsset) ([]*store.AudioAsset, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.Hash; v != nil {
		where, args = append(where, "hash = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Provider; v != nil {
		where, args = append(where, "provider = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Bucket; v != nil {
		where, args = append(where, "bucket = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CreatedTsAfter; v != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}

	query := "SELECT " + audioAssetColumns + " FROM audio_asset WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_ts DESC, hash ASC" + limitClause(find.Limit, find.Offset)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audio assets")
	}
	defer rows.Close()

	list := make([]*store.AudioAsset, 0)
	for rows.Next() {
		asset := &store.AudioAsset{}
		if err := rows.Scan(
			&asset.Hash,
			&asset.Bucket,
			&asset.ObjectKey,
			&asset.Size,
			&asset.ContentType,
			&asset.DurationMs,
			&asset.Provider,
			&asset.VoiceID,
			&asset.ModelID,
			&asset.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan audio asset")
		}
		list = append(list, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) GetAudioAssetSummary(ctx context.Context) (*store.AudioAssetSummary, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT provider, COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(duration_ms), 0) FROM audio_asset GROUP BY provider")
	if err != nil {
		return nil, errors.Wrap(err, "failed to summarize audio assets")
	}
	defer rows.Close()

	summary := &store.AudioAssetSummary{CountByProvider: map[string]int64{}}
	for rows.Next() {
		var provider string
		var count, size, duration int64
		if err := rows.Scan(&provider, &count, &size, &duration); err != nil {
			return nil, errors.Wrap(err, "failed to scan audio asset summary")
		}
		summary.Count += count
		summary.TotalSize += size
		summary.TotalDurationMs += duration
		summary.CountByProvider[provider] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}
