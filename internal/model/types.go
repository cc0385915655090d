package model

import "time"

// User represents the subset of platform user fields the bot needs.
type User struct {
	ID             string
	Username       string
	Name           string
	FollowersCount int
	FollowingCount int
	TweetCount     int
}

// Mention is a lightweight @-reference carried inside a tweet.
type Mention struct {
	ID       string
	Username string
	Name     string
}

// Tweet represents a subset of platform tweet fields used by the bot.
// Username is the author's handle as given by the platform (case-sensitive).
type Tweet struct {
	ID        string
	Text      string
	Username  string
	Name      string
	Mentions  []Mention
	Hashtags  []string
	URLs      []string
	CreatedAt time.Time
	InReplyTo string
}

// Profile is the durable per-account ledger row. FirstMentionedBy is set at
// most once; a later mention by a different referrer never overwrites it.
type Profile struct {
	ID               int64
	Username         string
	Points           int
	FirstMentionedBy string
	FirstMentionedAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasReferrer reports whether referral attribution has been recorded.
func (p Profile) HasReferrer() bool { return p.FirstMentionedBy != "" }

// AuditEvent is an append-only ledger event. RowKey is the idempotency key:
// replaying the same logical event inserts nothing.
type AuditEvent struct {
	ID        int64
	RowKey    string
	Level     string
	Name      string
	Content   map[string]any
	Target    string
	Username  string
	CreatedAt time.Time
}

// ProcessedTweet records a reply the bot already sent. At most one row exists
// per tweet id.
type ProcessedTweet struct {
	ID        int64
	TweetID   string
	ReplyText string
	Original  Tweet
	Score     int
	Reason    string
	Username  string
	CreatedAt time.Time
}
