// Package replybot polls for mentions, scores them through the ledger, and
// replies. It is the coordination layer over the scheduler, the session, and
// the scoring transaction.
package replybot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goatbot/internal/config"
	"goatbot/internal/ledger"
	"goatbot/internal/metrics"
	"goatbot/internal/model"
	"goatbot/internal/store"
	"goatbot/internal/xclient"
)

// Bot processes one account's mention stream.
type Bot struct {
	store    *store.Store
	ledger   *ledger.Ledger
	client   xclient.Client
	log      *zap.Logger
	cfg      config.BotConfig
	username string
	sleep    func(ctx context.Context, d time.Duration) error
}

// New wires the bot for the account owning client.
func New(st *store.Store, lg *ledger.Ledger, client xclient.Client, log *zap.Logger, cfg config.BotConfig, username string) *Bot {
	return &Bot{
		store:    st,
		ledger:   lg,
		client:   client,
		log:      log,
		cfg:      cfg,
		username: username,
		sleep:    sleepCtx,
	}
}

// CheckMentions is the recurring job body: fetch candidate mentions and
// process each unreplied one in order. A failure on one item abandons that
// item only; the rest of the batch still runs.
func (b *Bot) CheckMentions(ctx context.Context) error {
	query := "@" + b.username
	tweets, err := b.client.Search(ctx, query, b.cfg.MaxTweetsPerRun, xclient.SearchLatest)
	if err != nil {
		return fmt.Errorf("search mentions: %w", err)
	}
	b.log.Info("mentions fetched", zap.Int("count", len(tweets)))

	for _, tweet := range tweets {
		if tweet.ID == "" || tweet.Username == "" {
			continue
		}
		if tweet.Username == b.username {
			// Never reply to our own tweets.
			continue
		}
		replied, err := b.store.IsReplied(ctx, tweet.ID)
		if err != nil {
			b.log.Error("dedup lookup failed", zap.String("tweet_id", tweet.ID), zap.Error(err))
			continue
		}
		if replied {
			continue
		}
		allowed, err := b.allowReply(ctx, time.Now().UTC())
		if err != nil {
			b.log.Error("budget check failed", zap.Error(err))
			continue
		}
		if !allowed {
			b.log.Info("reply budget exhausted, ending run early")
			return nil
		}
		if err := b.processTweet(ctx, tweet); err != nil {
			b.log.Error("tweet abandoned", zap.String("tweet_id", tweet.ID), zap.Error(err))
			continue
		}
		// Pace outbound replies; this blocks only this job's run.
		if err := b.sleep(ctx, b.cfg.ReplyDelay); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) processTweet(ctx context.Context, tweet model.Tweet) error {
	// Referral attribution: the author exists from now on, and anyone they
	// mentioned is credited to them. First mention wins, forever.
	if err := b.store.UpsertProfile(ctx, tweet.Username, ""); err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	for _, m := range tweet.Mentions {
		if m.Username == "" || m.Username == tweet.Username {
			continue
		}
		if err := b.store.UpsertProfile(ctx, m.Username, tweet.Username); err != nil {
			return fmt.Errorf("upsert mention %s: %w", m.Username, err)
		}
	}

	outcome, err := b.ledger.ProcessAttributedContent(ctx, tweet.Text, tweet.Username)
	if err != nil {
		// Commit failed: leave the tweet unprocessed so the next poll
		// retries it.
		return err
	}

	replyText := ComposeReply(outcome.Score, outcome.Reason)
	if err := b.client.Post(ctx, replyText, tweet.ID); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	if err := b.store.SaveReplied(ctx, model.ProcessedTweet{
		TweetID:   tweet.ID,
		ReplyText: replyText,
		Original:  tweet,
		Score:     outcome.Score,
		Reason:    outcome.Reason,
		Username:  tweet.Username,
	}); err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	metrics.RepliesSent.Inc()
	b.log.Info("replied",
		zap.String("tweet_id", tweet.ID),
		zap.String("username", tweet.Username),
		zap.Int("score", outcome.Score))
	return nil
}

// allowReply enforces the optional hourly/daily reply budgets against the
// processed ledger. Zero limits disable the check.
func (b *Bot) allowReply(ctx context.Context, now time.Time) (bool, error) {
	if b.cfg.MaxRepliesPerHour <= 0 && b.cfg.MaxRepliesPerDay <= 0 {
		return true, nil
	}
	if b.cfg.MaxRepliesPerHour > 0 {
		startHour := now.Truncate(time.Hour)
		n, err := b.store.CountRepliesWithin(ctx, startHour, startHour.Add(time.Hour))
		if err != nil {
			return false, err
		}
		if n >= b.cfg.MaxRepliesPerHour {
			return false, nil
		}
	}
	if b.cfg.MaxRepliesPerDay > 0 {
		startDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		n, err := b.store.CountRepliesWithin(ctx, startDay, startDay.Add(24*time.Hour))
		if err != nil {
			return false, err
		}
		if n >= b.cfg.MaxRepliesPerDay {
			return false, nil
		}
	}
	return true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
