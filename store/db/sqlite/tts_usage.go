package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/store"
)

func (d *DB) CreateTTSUsage(ctx context.Context, create *store.TTSUsage) (*store.TTSUsage, error) {
	fields := []string{"created_ts", "provider", "model_id", "hash", "characters", "latency_ms", "cost", "success"}
	args := []any{create.CreatedTs, create.Provider, create.ModelID, create.Hash, create.Characters, create.LatencyMs, create.Cost, boolToInt(create.Success)}

	stmt := "INSERT INTO tts_usage (" + strings.Join(fields, ", ") + ") VALUES (" + placeholders(len(args)) + ") RETURNING id"
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create tts usage")
	}
	return create, nil
}

func (d *DB) ListTTSUsage(ctx context.Context, find *store.FindTTSUsage) ([]*store.TTSUsage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.Provider; v != nil {
		where, args = append(where, "provider = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CreatedTsAfter; v != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}

	query := "SELECT id, created_ts, provider, model_id, hash, characters, latency_ms, cost, success FROM tts_usage WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created_ts DESC, id DESC" + limitClause(find.Limit, 0)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tts usage")
	}
	defer rows.Close()

	list := make([]*store.TTSUsage, 0)
	for rows.Next() {
		usage := &store.TTSUsage{}
		var success int
		if err := rows.Scan(&usage.ID, &usage.CreatedTs, &usage.Provider, &usage.ModelID, &usage.Hash, &usage.Characters, &usage.LatencyMs, &usage.Cost, &success); err != nil {
			return nil, errors.Wrap(err, "failed to scan tts usage")
		}
		usage.Success = success == 1
		list = append(list, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) GetTTSUsageSummary(ctx context.Context, since int64) (*store.TTSUsageSummary, error) {
	query := `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(characters), 0),
		COALESCE(SUM(cost), 0),
		COALESCE(AVG(latency_ms), 0)
		FROM tts_usage WHERE created_ts >= ` + placeholder(1)

	summary := &store.TTSUsageSummary{}
	if err := d.db.QueryRowContext(ctx, query, since).Scan(
		&summary.Calls,
		&summary.FailedCalls,
		&summary.Characters,
		&summary.TotalCost,
		&summary.AvgLatencyMs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to summarize tts usage")
	}
	return summary, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
