package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/speechcare/store"
)

func (d *DB) CreateQuestion(ctx context.Context, create *store.Question) (*store.Question, error) {
	fields := []string{"id", "text", "audio_url", "created_ts", "updated_ts"}
	args := []any{create.ID, create.Text, create.AudioURL, create.CreatedTs, create.UpdatedTs}

	stmt := "INSERT INTO question (" + strings.Join(fields, ", ") + ") VALUES (" + placeholders(len(args)) + ")"
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create question")
	}
	return create, nil
}

func (d *DB) ListQuestions(ctx context.Context, find *store.FindQuestion) ([]*store.Question, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}

	query := "SELECT id, text, audio_url, created_ts, updated_ts FROM question WHERE " + strings.Join(where, " AND ") +
		" ORDER BY created_ts DESC, id ASC" + limitClause(find.Limit, find.Offset)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list questions")
	}
	defer rows.Close()

	list := make([]*store.Question, 0)
	for rows.Next() {
		question := &store.Question{}
		if err := rows.Scan(&question.ID, &question.Text, &question.AudioURL, &question.CreatedTs, &question.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan question")
		}
		list = append(list, question)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateQuestion(ctx context.Context, update *store.UpdateQuestion) (*store.Question, error) {
	set, args := []string{}, []any{}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Text; v != nil {
		set, args = append(set, "text = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.AudioURL; v != nil {
		set, args = append(set, "audio_url = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := "UPDATE question SET " + strings.Join(set, ", ") + " WHERE id = " + placeholder(len(args)) +
		" RETURNING id, text, audio_url, created_ts, updated_ts"
	question := &store.Question{}
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&question.ID, &question.Text, &question.AudioURL, &question.CreatedTs, &question.UpdatedTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEntityNotFound
		}
		return nil, errors.Wrap(err, "failed to update question")
	}
	return question, nil
}

func (d *DB) DeleteQuestion(ctx context.Context, delete *store.DeleteQuestion) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM question WHERE id = "+placeholder(1), delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete question")
	}
	return nil
}
