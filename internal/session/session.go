// Package session maintains one authenticated platform connection per
// account across process restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"goatbot/internal/metrics"
	"goatbot/internal/store"
	"goatbot/internal/xclient"
)

// ErrLoginExhausted is returned once the retry budget is spent. It is fatal
// for the owning account's startup.
var ErrLoginExhausted = errors.New("session: login retries exhausted")

// Credentials is the full credential set for one account.
type Credentials struct {
	Username        string
	Password        string
	Email           string
	TwoFactorSecret string
}

// Store is the slice of the ledger the session manager owns: persisted
// session bundles keyed by username. Nobody else interprets the bundle.
type Store interface {
	SaveSession(ctx context.Context, username, bundle string) error
	LoadSession(ctx context.Context, username string) (string, error)
}

// Manager drives the login lifecycle for a single account.
type Manager struct {
	client  xclient.Client
	store   Store
	log     *zap.Logger
	retries int
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewManager wires a manager around the account's transport client.
func NewManager(client xclient.Client, st Store, log *zap.Logger, retries int, backoff time.Duration) *Manager {
	if retries <= 0 {
		retries = 1
	}
	return &Manager{
		client:  client,
		store:   st,
		log:     log,
		retries: retries,
		backoff: backoff,
		sleep:   sleepCtx,
	}
}

// Client returns the transport handle. Callers must Login first.
func (m *Manager) Client() xclient.Client { return m.client }

// Login restores a cached session if one exists, validates it, and falls back
// to credential login with the configured retry budget. A freshly obtained
// session is persisted; a failed login never is.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	if creds.Username == "" {
		return errors.New("session: username not configured")
	}

	bundle, err := m.store.LoadSession(ctx, creds.Username)
	switch {
	case err == nil:
		if err := m.client.ImportSession(bundle); err != nil {
			// Malformed cached bundle: fall through to a fresh login.
			m.log.Warn("cached session unusable", zap.String("username", creds.Username), zap.Error(err))
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		m.log.Warn("load cached session", zap.String("username", creds.Username), zap.Error(err))
	}

	for attempt := 1; attempt <= m.retries; attempt++ {
		ok, err := m.client.IsAuthenticated(ctx)
		if err == nil && ok {
			m.log.Info("session valid", zap.String("username", creds.Username), zap.Int("attempt", attempt))
			return nil
		}
		if err != nil {
			m.log.Warn("auth check failed", zap.String("username", creds.Username), zap.Error(err))
		}

		metrics.LoginAttempts.Inc()
		if err := m.client.Authenticate(ctx, creds.Username, creds.Password, creds.Email, creds.TwoFactorSecret); err != nil {
			m.log.Warn("login attempt failed",
				zap.String("username", creds.Username),
				zap.Int("remaining", m.retries-attempt),
				zap.Error(err))
		} else if ok, err := m.client.IsAuthenticated(ctx); err == nil && ok {
			m.persist(ctx, creds.Username)
			m.log.Info("login succeeded", zap.String("username", creds.Username), zap.Int("attempt", attempt))
			return nil
		}

		if attempt == m.retries {
			break
		}
		if err := m.sleep(ctx, m.backoff); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrLoginExhausted, creds.Username, m.retries)
}

func (m *Manager) persist(ctx context.Context, username string) {
	bundle, err := m.client.ExportSession()
	if err != nil {
		m.log.Warn("export session", zap.String("username", username), zap.Error(err))
		return
	}
	if err := m.store.SaveSession(ctx, username, bundle); err != nil {
		m.log.Warn("persist session", zap.String("username", username), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
