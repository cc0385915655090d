package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"goatbot/internal/model"
)

// UpsertProfile creates the profile for username if it does not exist and,
// when mentionedBy is non-empty, records it as the first referrer. Attribution
// is first-writer-wins: once first_mentioned_by is set it is never changed.
func (c queries) UpsertProfile(ctx context.Context, username, mentionedBy string) error {
	if username == "" {
		return errors.New("store: empty username")
	}
	now := time.Now().UTC().Unix()
	var by, at any
	if mentionedBy != "" {
		by, at = mentionedBy, now
	}
	query, args, err := builder.
		Insert("account_profiles").
		Columns("username", "points", "first_mentioned_by", "first_mentioned_at", "created_at", "updated_at").
		Values(username, 0, by, at, now, now).
		Suffix(`ON CONFLICT(username) DO UPDATE SET
		  first_mentioned_by = COALESCE(account_profiles.first_mentioned_by, excluded.first_mentioned_by),
		  first_mentioned_at = COALESCE(account_profiles.first_mentioned_at, excluded.first_mentioned_at),
		  updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", username, err)
	}
	return nil
}

// GetProfile returns the profile for username, or ErrNotFound.
func (c queries) GetProfile(ctx context.Context, username string) (model.Profile, error) {
	var p model.Profile
	query, args, err := builder.
		Select("id", "username", "points", "first_mentioned_by", "first_mentioned_at", "created_at", "updated_at").
		From("account_profiles").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return p, err
	}
	var by sql.NullString
	var at sql.NullInt64
	var created, updated int64
	row := c.q.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&p.ID, &p.Username, &p.Points, &by, &at, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.FirstMentionedBy = by.String
	if at.Valid {
		p.FirstMentionedAt = time.Unix(at.Int64, 0).UTC()
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return p, nil
}

// AddPoints applies a point delta to an existing profile.
func (c queries) AddPoints(ctx context.Context, username string, delta int) error {
	query, args, err := builder.
		Update("account_profiles").
		Set("points", sq.Expr("points + ?", delta)).
		Set("updated_at", time.Now().UTC().Unix()).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("add points %s: %w", username, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("add points %s: %w", username, ErrNotFound)
	}
	return nil
}
