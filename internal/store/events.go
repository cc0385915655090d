package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"goatbot/internal/model"
)

// InsertEvent appends an audit event. The row key is an idempotency key:
// inserting a duplicate is a no-op, not an error.
func (c queries) InsertEvent(ctx context.Context, ev model.AuditEvent) error {
	var content any
	if ev.Content != nil {
		b, err := json.Marshal(ev.Content)
		if err != nil {
			return fmt.Errorf("marshal event content: %w", err)
		}
		content = string(b)
	}
	query, args, err := builder.
		Insert("audit_events").
		Columns("row_key", "level", "name", "content", "target", "username", "created_at").
		Values(ev.RowKey, ev.Level, ev.Name, content, ev.Target, ev.Username, time.Now().UTC().Unix()).
		Suffix("ON CONFLICT(row_key) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert event %s: %w", ev.RowKey, err)
	}
	return nil
}

// ListEvents returns the most recent events for a username, newest first.
func (c queries) ListEvents(ctx context.Context, username string, limit int) ([]model.AuditEvent, error) {
	query, args, err := builder.
		Select("id", "row_key", "level", "name", "content", "target", "username", "created_at").
		From("audit_events").
		Where(sq.Eq{"username": username}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var content *string
		var created int64
		if err := rows.Scan(&ev.ID, &ev.RowKey, &ev.Level, &ev.Name, &content, &ev.Target, &ev.Username, &created); err != nil {
			return nil, err
		}
		if content != nil {
			_ = json.Unmarshal([]byte(*content), &ev.Content)
		}
		ev.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}
