package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SaveSession upserts the serialized session bundle for username. Only the
// session manager interprets the bundle's contents.
func (c queries) SaveSession(ctx context.Context, username, bundle string) error {
	if username == "" {
		return errors.New("store: empty username")
	}
	now := time.Now().UTC().Unix()
	query, args, err := builder.
		Insert("login_sessions").
		Columns("username", "bundle", "created_at", "updated_at").
		Values(username, bundle, now, now).
		Suffix(`ON CONFLICT(username) DO UPDATE SET
		  bundle = excluded.bundle,
		  updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save session %s: %w", username, err)
	}
	return nil
}

// LoadSession returns the persisted session bundle for username, or
// ErrNotFound when no bundle has been saved.
func (c queries) LoadSession(ctx context.Context, username string) (string, error) {
	query, args, err := builder.
		Select("bundle").
		From("login_sessions").
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return "", err
	}
	var bundle string
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&bundle); err != nil {
		return "", mapNoRows(err)
	}
	return bundle, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
