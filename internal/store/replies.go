package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"goatbot/internal/model"
)

// IsReplied reports whether a reply was already recorded for tweetID.
func (c queries) IsReplied(ctx context.Context, tweetID string) (bool, error) {
	query, args, err := builder.
		Select("COUNT(*)").
		From("replied_tweets").
		Where(sq.Eq{"tweet_id": tweetID}).
		ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveReplied records a sent reply. The tweet_id unique index is the dedup
// guarantee: a concurrent second insert for the same tweet is a no-op.
func (c queries) SaveReplied(ctx context.Context, rec model.ProcessedTweet) error {
	orig, err := json.Marshal(rec.Original)
	if err != nil {
		return fmt.Errorf("marshal original tweet: %w", err)
	}
	query, args, err := builder.
		Insert("replied_tweets").
		Columns("tweet_id", "reply_text", "original_tweet_json", "score", "reason", "username", "created_at").
		Values(rec.TweetID, rec.ReplyText, string(orig), rec.Score, rec.Reason, rec.Username, time.Now().UTC().Unix()).
		Suffix("ON CONFLICT(tweet_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := c.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save replied %s: %w", rec.TweetID, err)
	}
	return nil
}

// GetReplied returns the processed record for tweetID, or ErrNotFound.
func (c queries) GetReplied(ctx context.Context, tweetID string) (model.ProcessedTweet, error) {
	var rec model.ProcessedTweet
	query, args, err := builder.
		Select("id", "tweet_id", "reply_text", "original_tweet_json", "score", "reason", "username", "created_at").
		From("replied_tweets").
		Where(sq.Eq{"tweet_id": tweetID}).
		ToSql()
	if err != nil {
		return rec, err
	}
	var orig string
	var created int64
	row := c.q.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&rec.ID, &rec.TweetID, &rec.ReplyText, &orig, &rec.Score, &rec.Reason, &rec.Username, &created); err != nil {
		return rec, mapNoRows(err)
	}
	_ = json.Unmarshal([]byte(orig), &rec.Original)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	return rec, nil
}

// CountRepliesWithin counts replies recorded in [start, end).
func (c queries) CountRepliesWithin(ctx context.Context, start, end time.Time) (int, error) {
	query, args, err := builder.
		Select("COUNT(*)").
		From("replied_tweets").
		Where(sq.GtOrEq{"created_at": start.Unix()}).
		Where(sq.Lt{"created_at": end.Unix()}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := c.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
