// Package ledger converts an ungoverned external score into durable account
// state: points, referral credit, and an audit event, exactly once per item.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"goatbot/internal/metrics"
	"goatbot/internal/model"
	"goatbot/internal/rating"
	"goatbot/internal/store"
)

// ErrCommit is returned when the storage transaction fails. The caller must
// not treat the returned score as durably recorded; the item stays
// unprocessed so a later poll can retry it.
var ErrCommit = errors.New("ledger: commit failed")

const (
	scoreEventName = "AIRDROP_SCORE"
	eventTarget    = "AGENT"

	baseRate     = 0.6 // share of the raw score credited as points
	referredMult = 1.1 // bonus multiplier for accounts that were referred
	referrerCut  = 0.1 // second-order share credited to the referrer
)

// Outcome is the score/reason pair produced for one piece of content.
type Outcome struct {
	Score  int
	Reason string
}

// Store is the slice of the storage layer the ledger needs: a read-only
// profile lookup plus the transactional commit scope.
type Store interface {
	GetProfile(ctx context.Context, username string) (model.Profile, error)
	WithTx(ctx context.Context, fn func(*store.Tx) error) error
}

// Ledger runs the scoring-and-ledger transaction.
type Ledger struct {
	store Store
	rater rating.Rater
	log   *zap.Logger
	nowFn func() time.Time
}

// New wires a ledger over the store and the external rater.
func New(st Store, rater rating.Rater, log *zap.Logger) *Ledger {
	return &Ledger{store: st, rater: rater, log: log, nowFn: time.Now}
}

// ProcessAttributedContent scores content attributed to username and commits
// the resulting point deltas plus an audit event atomically. The outcome is
// returned even when the commit fails; the error tells the two cases apart.
func (l *Ledger) ProcessAttributedContent(ctx context.Context, content, username string) (Outcome, error) {
	if username == "" {
		return Outcome{Score: 0, Reason: "Not Found Username.😭"}, nil
	}
	if content == "" {
		return Outcome{Score: 0, Reason: "Not Found Prompt.😭"}, nil
	}

	out := l.rate(ctx, content)

	profile, err := l.store.GetProfile(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return out, fmt.Errorf("%w: lookup %s: %v", ErrCommit, username, err)
	}

	delta := pointDelta(out.Score, profile.HasReferrer())
	referrerDelta := 0
	if profile.HasReferrer() {
		// Credit the referrer only if their profile already exists; the
		// attribution edge may dangle until they show up themselves.
		if _, err := l.store.GetProfile(ctx, profile.FirstMentionedBy); err == nil {
			referrerDelta = int(math.Floor(float64(out.Score) * baseRate * referrerCut))
		} else if !errors.Is(err, store.ErrNotFound) {
			return out, fmt.Errorf("%w: lookup referrer %s: %v", ErrCommit, profile.FirstMentionedBy, err)
		}
	}

	ev := model.AuditEvent{
		RowKey: fmt.Sprintf("airdrop_%s_%s", username, l.nowFn().UTC().Format("2006_01_02_15_04_05.000000000")),
		Level:  "INFO",
		Name:   scoreEventName,
		Content: map[string]any{
			"score":    out.Score,
			"reason":   out.Reason,
			"prompt":   content,
			"referrer": profile.FirstMentionedBy,
		},
		Target:   eventTarget,
		Username: username,
	}

	err = l.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		if err := tx.UpsertProfile(ctx, username, ""); err != nil {
			return err
		}
		if err := tx.AddPoints(ctx, username, delta); err != nil {
			return err
		}
		if referrerDelta > 0 {
			return tx.AddPoints(ctx, profile.FirstMentionedBy, referrerDelta)
		}
		return nil
	})
	if err != nil {
		metrics.LedgerCommitErrors.Inc()
		return out, fmt.Errorf("%w: %v", ErrCommit, err)
	}
	metrics.LedgerCommits.Inc()
	l.log.Info("score committed",
		zap.String("username", username),
		zap.Int("score", out.Score),
		zap.Int("delta", delta),
		zap.Int("referrer_delta", referrerDelta))
	return out, nil
}

// rate calls the external rater and degrades every failure mode to score 0.
func (l *Ledger) rate(ctx context.Context, content string) Outcome {
	raw, err := l.rater.Rate(ctx, content)
	if err != nil {
		metrics.RatingFailures.Inc()
		l.log.Warn("rater unavailable", zap.Error(err))
		return Outcome{Score: 0, Reason: "Rating unavailable. 😢"}
	}
	res := rating.Parse(raw)
	if !res.OK() {
		metrics.RatingFailures.Inc()
		l.log.Warn("rater output unparsable", zap.String("raw", truncate(raw, 200)))
		return Outcome{Score: 0, Reason: "Scorecard unreadable. 😵"}
	}
	return Outcome{Score: res.Parsed.Value, Reason: res.Parsed.Reason}
}

// pointDelta is floor(score * 0.6), with a 1.1x bump for referred accounts.
func pointDelta(score int, referred bool) int {
	mult := 1.0
	if referred {
		mult = referredMult
	}
	return int(math.Floor(float64(score) * baseRate * mult))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
