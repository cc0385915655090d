package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterValidation(t *testing.T) {
	d := New(zap.NewNop())
	require.Error(t, d.Register("", func(ctx context.Context) error { return nil }, time.Second))
	require.Error(t, d.Register("a", nil, time.Second))
	require.Error(t, d.Register("a", func(ctx context.Context) error { return nil }, 0))

	require.NoError(t, d.Register("a", func(ctx context.Context) error { return nil }, time.Second))
	err := d.Register("a", func(ctx context.Context) error { return nil }, time.Second)
	require.ErrorIs(t, err, ErrDuplicateJob)
}

func TestRunsImmediatelyThenOnTicks(t *testing.T) {
	d := New(zap.NewNop())
	var runs atomic.Int32
	first := make(chan struct{}, 1)
	require.NoError(t, d.Register("tick", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			first <- struct{}{}
		}
		return nil
	}, 20*time.Millisecond))

	d.StartAll()
	select {
	case <-first:
	case <-time.After(time.Second):
		t.Fatal("no immediate run")
	}
	time.Sleep(70 * time.Millisecond)
	d.StopAll()
	require.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestSingleFlightSkipsOverlappingTicks(t *testing.T) {
	d := New(zap.NewNop())
	var active, maxActive atomic.Int32
	require.NoError(t, d.Register("slow", func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		active.Add(-1)
		return nil
	}, 10*time.Millisecond))

	d.StartAll()
	time.Sleep(120 * time.Millisecond)
	d.StopAll()
	require.Equal(t, int32(1), maxActive.Load())
}

func TestStopAllWaitsForInflightRun(t *testing.T) {
	d := New(zap.NewNop())
	started := make(chan struct{}, 1)
	var done atomic.Bool
	require.NoError(t, d.Register("drain", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(40 * time.Millisecond)
		done.Store(true)
		return nil
	}, time.Hour))

	d.StartAll()
	<-started
	d.StopAll()
	require.True(t, done.Load())
}

func TestPanicDoesNotKillTheLoop(t *testing.T) {
	d := New(zap.NewNop())
	var runs atomic.Int32
	require.NoError(t, d.Register("flaky", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}, 15*time.Millisecond))

	d.StartAll()
	time.Sleep(60 * time.Millisecond)
	d.StopAll()
	require.GreaterOrEqual(t, runs.Load(), int32(2))
}

func TestStatusSnapshot(t *testing.T) {
	d := New(zap.NewNop())
	require.NoError(t, d.Register("first", func(ctx context.Context) error { return nil }, time.Minute))
	require.NoError(t, d.Register("second", func(ctx context.Context) error { return nil }, time.Hour))

	collect := func() []TaskStatus {
		var out []TaskStatus
		for st := range d.Status() {
			out = append(out, st)
		}
		return out
	}

	got := collect()
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Name)
	require.Equal(t, time.Minute, got[0].Interval)
	require.True(t, got[0].LastRun.IsZero())
	require.Equal(t, "second", got[1].Name)

	// The sequence is restartable.
	require.Len(t, collect(), 2)

	// Early break must not hang the iterator.
	for range d.Status() {
		break
	}
}

func TestStartStopIdempotent(t *testing.T) {
	d := New(zap.NewNop())
	require.NoError(t, d.Register("noop", func(ctx context.Context) error { return nil }, time.Hour))
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()))
}
