package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"goatbot/internal/store"
)

type fakeRater struct {
	raw string
	err error
}

func (f *fakeRater) Rate(ctx context.Context, text string) (string, error) { return f.raw, f.err }

func openTest(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTest(t *testing.T, st Store, raw string, raterErr error) *Ledger {
	t.Helper()
	l := New(st, &fakeRater{raw: raw, err: raterErr}, zap.NewNop())
	// Distinct timestamps per call keep row keys unique inside one test.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	l.nowFn = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Nanosecond)
	}
	return l
}

func TestProcessCreditsPoints(t *testing.T) {
	st := openTest(t)
	l := newTest(t, st, `{"score": 100, "reason": "legendary"}`, nil)

	out, err := l.ProcessAttributedContent(context.Background(), "gm frens", "bob")
	require.NoError(t, err)
	require.Equal(t, 100, out.Score)
	require.Equal(t, "legendary", out.Reason)

	p, err := st.GetProfile(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, 60, p.Points) // floor(100 * 0.6)

	events, err := st.ListEvents(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "AIRDROP_SCORE", events[0].Name)
}

func TestProcessFlooredDelta(t *testing.T) {
	st := openTest(t)
	l := newTest(t, st, `{"score": 85, "reason": "solid"}`, nil)

	out, err := l.ProcessAttributedContent(context.Background(), "wagmi", "bob")
	require.NoError(t, err)
	require.Equal(t, 85, out.Score)

	p, err := st.GetProfile(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, 51, p.Points) // floor(85 * 0.6) = floor(51.0)
}

func TestProcessReferredBonusAndReferrerCut(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertProfile(ctx, "bob", ""))
	require.NoError(t, st.UpsertProfile(ctx, "alice", "bob"))

	l := newTest(t, st, `{"score": 100, "reason": "viral"}`, nil)
	_, err := l.ProcessAttributedContent(ctx, "ngmi jokes only", "alice")
	require.NoError(t, err)

	alice, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 66, alice.Points) // floor(100 * 0.6 * 1.1)

	bob, err := st.GetProfile(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 6, bob.Points) // floor(100 * 0.6 * 0.1)
}

func TestProcessDanglingReferrerGetsNoCut(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	// alice was mentioned by ghost, but ghost has no profile row.
	require.NoError(t, st.UpsertProfile(ctx, "alice", "ghost"))

	l := newTest(t, st, `{"score": 100, "reason": "viral"}`, nil)
	_, err := l.ProcessAttributedContent(ctx, "hodl", "alice")
	require.NoError(t, err)

	alice, err := st.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 66, alice.Points) // bonus still applies

	_, err = st.GetProfile(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessRaterFailureDegradesToZero(t *testing.T) {
	st := openTest(t)
	l := newTest(t, st, "", errors.New("upstream down"))

	out, err := l.ProcessAttributedContent(context.Background(), "gm", "bob")
	require.NoError(t, err)
	require.Equal(t, 0, out.Score)
	require.Equal(t, "Rating unavailable. 😢", out.Reason)

	// Degraded runs still commit: the event and the zero delta are durable.
	p, err := st.GetProfile(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, 0, p.Points)
	events, err := st.ListEvents(context.Background(), "bob", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestProcessUnparsableOutputDegradesToZero(t *testing.T) {
	st := openTest(t)
	l := newTest(t, st, "lol no json for you", nil)

	out, err := l.ProcessAttributedContent(context.Background(), "gm", "bob")
	require.NoError(t, err)
	require.Equal(t, 0, out.Score)
	require.Equal(t, "Scorecard unreadable. 😵", out.Reason)
}

func TestProcessMissingInputsShortCircuit(t *testing.T) {
	st := openTest(t)
	l := newTest(t, st, `{"score": 100, "reason": "x"}`, nil)
	ctx := context.Background()

	out, err := l.ProcessAttributedContent(ctx, "gm", "")
	require.NoError(t, err)
	require.Equal(t, "Not Found Username.😭", out.Reason)

	out, err = l.ProcessAttributedContent(ctx, "", "bob")
	require.NoError(t, err)
	require.Equal(t, "Not Found Prompt.😭", out.Reason)

	// Nothing was written.
	_, err = st.GetProfile(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
	events, err := st.ListEvents(ctx, "bob", 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

// brokenStore reads through to a real store but refuses to commit.
type brokenStore struct {
	*store.Store
}

func (b *brokenStore) WithTx(ctx context.Context, fn func(*store.Tx) error) error {
	return errors.New("disk full")
}

func TestProcessCommitFailureLeavesStateUntouched(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertProfile(ctx, "bob", ""))

	l := newTest(t, &brokenStore{Store: st}, `{"score": 100, "reason": "x"}`, nil)
	out, err := l.ProcessAttributedContent(ctx, "gm", "bob")
	require.ErrorIs(t, err, ErrCommit)
	require.Equal(t, 100, out.Score) // outcome survives so callers can decide

	p, err := st.GetProfile(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, 0, p.Points)
	events, err := st.ListEvents(ctx, "bob", 10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestPointDelta(t *testing.T) {
	require.Equal(t, 60, pointDelta(100, false))
	require.Equal(t, 66, pointDelta(100, true))
	require.Equal(t, 51, pointDelta(85, false))
	require.Equal(t, 0, pointDelta(0, false))
	require.Equal(t, 0, pointDelta(0, true))
	require.Equal(t, 0, pointDelta(1, false)) // floor(0.6)
}
