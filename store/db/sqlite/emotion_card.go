package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/store"
)

func (d *DB) CreateEmotionCard(ctx context.Context, create *store.EmotionCard) (*store.EmotionCard, error) {
	fields := []string{"id", "label", "audio_url", "created_ts", "updated_ts"}
	args := []any{create.ID, create.Label, create.AudioURL, create.CreatedTs, create.UpdatedTs}

	stmt := "INSERT INTO emotion_card (" + strings.Join(fields, ", ") + ") VALUES (" + placeholders(len(args)) + ")"
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create emotion card")
	}
	return create, nil
}

func (d *DB) ListEmotionCards(ctx context.Context, find *store.FindEmotionCard) ([]*store.EmotionCard, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}

	query := "SELECT id, label, audio_url, created_ts, updated_ts FROM emotion_card WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_ts DESC, id ASC" + limitClause(find.Limit, find.Offset)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list emotion cards")
	}
	defer rows.Close()

	list := make([]*store.EmotionCard, 0)
	for rows.Next() {
		card := &store.EmotionCard{}
		if err := rows.Scan(&card.ID, &card.Label, &card.AudioURL, &card.CreatedTs, &card.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan emotion card")
		}
		list = append(list, card)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateEmotionCard(ctx context.Context, update *store.UpdateEmotionCard) (*store.EmotionCard, error) {
	set, args := []string{}, []any{}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Label; v != nil {
		set, args = append(set, "label = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.AudioURL; v != nil {
		set, args = append(set, "audio_url = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := "UPDATE emotion_card SET " + strings.Join(set, ", ") + " WHERE id = " + placeholder(len(args)) +
		" RETURNING id, label, audio_url, created_ts, updated_ts"
	card := &store.EmotionCard{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&card.ID, &card.Label, &card.AudioURL, &card.CreatedTs, &card.UpdatedTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, errors.Wrap(err, "failed to update emotion card")
	}
	return card, nil
}

func (d *DB) DeleteEmotionCard(ctx context.Context, delete *store.DeleteEmotionCard) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM emotion_card WHERE id = "+placeholder(1), delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete emotion card")
	}
	return nil
}
