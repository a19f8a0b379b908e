package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, interval time.Duration) *Scheduler {
	t.Helper()
	s := NewScheduler(interval, time.Millisecond, testLogger())
	t.Cleanup(s.Close)
	return s
}

func TestScheduler_StartFiresImmediatelyThenOnInterval(t *testing.T) {
	s := newTestScheduler(t, 50*time.Millisecond)

	var fired atomic.Int32
	_, err := s.Start("monitor", func(ctx context.Context) { fired.Add(1) })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, time.Second, 5*time.Millisecond,
		"first firing should be near-immediate")
	require.Eventually(t, func() bool { return fired.Load() >= 3 }, 2*time.Second, 10*time.Millisecond,
		"job should keep firing on the interval")
}

func TestScheduler_StartTwice(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	_, err := s.Start("monitor", func(ctx context.Context) {})
	require.NoError(t, err)

	_, err = s.Start("monitor", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.Len(t, s.cron.Entries(), 1, "second Start must not arm another timer")
}

func TestScheduler_StopWhenIdle(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	n, err := s.Stop("monitor")

	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Zero(t, n)
}

func TestScheduler_StopPreventsFutureFirings(t *testing.T) {
	s := newTestScheduler(t, 20*time.Millisecond)

	var fired atomic.Int32
	_, err := s.Start("monitor", func(ctx context.Context) { fired.Add(1) })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return fired.Load() >= 1 }, time.Second, 5*time.Millisecond)

	n, err := s.Stop("monitor")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, s.IsRunning("monitor"))

	// allow a firing that was already dispatched to land
	time.Sleep(30 * time.Millisecond)
	after := fired.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, fired.Load(), "no firings after Stop")
}

func TestScheduler_StopCancelsAllInstances(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	_, err := s.Start("monitor", func(ctx context.Context) {})
	require.NoError(t, err)

	// simulate a second armed instance under the same name
	s.mu.Lock()
	extra := s.cron.Schedule(&delayedEvery{first: time.Minute, every: time.Minute}, cron.FuncJob(func() {}))
	s.jobs["monitor"] = append(s.jobs["monitor"], extra)
	s.mu.Unlock()

	n, err := s.Stop("monitor")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.cron.Entries())
}

func TestScheduler_StartAfterStop(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	_, err := s.Start("monitor", func(ctx context.Context) {})
	require.NoError(t, err)
	_, err = s.Stop("monitor")
	require.NoError(t, err)

	_, err = s.Start("monitor", func(ctx context.Context) {})
	require.NoError(t, err)
	assert.True(t, s.IsRunning("monitor"))
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_Cancel(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	h, err := s.Start("monitor", func(ctx context.Context) {})
	require.NoError(t, err)
	assert.Equal(t, "monitor", h.Name())

	require.NoError(t, s.Cancel(h))
	assert.False(t, s.IsRunning("monitor"))
	assert.ErrorIs(t, s.Cancel(h), ErrNotRunning)
}

func TestScheduler_NamesAreIndependent(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	_, err := s.Start("a", func(ctx context.Context) {})
	require.NoError(t, err)
	_, err = s.Start("b", func(ctx context.Context) {})
	require.NoError(t, err)

	_, err = s.Stop("a")
	require.NoError(t, err)
	assert.False(t, s.IsRunning("a"))
	assert.True(t, s.IsRunning("b"))
}

func TestScheduler_FiringsDoNotOverlap(t *testing.T) {
	s := newTestScheduler(t, 10*time.Millisecond)

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		fired   atomic.Int32
	)
	_, err := s.Start("monitor", func(ctx context.Context) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			cur := maxSeen.Load()
			if n <= cur || maxSeen.CompareAndSwap(cur, n) {
				break
			}
		}
		fired.Add(1)
		time.Sleep(50 * time.Millisecond)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), maxSeen.Load(), "firings must be serialized")
}

func TestScheduler_PanickingJobKeepsFiring(t *testing.T) {
	s := newTestScheduler(t, 20*time.Millisecond)

	var fired atomic.Int32
	_, err := s.Start("monitor", func(ctx context.Context) {
		fired.Add(1)
		panic("boom")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return fired.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_CloseCancelsInFlightJob(t *testing.T) {
	s := NewScheduler(time.Minute, time.Millisecond, testLogger())

	started := make(chan struct{})
	var cancelled atomic.Bool
	_, err := s.Start("monitor", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after cancelling the job")
	}
	assert.True(t, cancelled.Load())
}

func TestScheduler_CloseIsIdempotent(t *testing.T) {
	s := NewScheduler(time.Minute, time.Millisecond, testLogger())

	s.Close()
	s.Close()

	_, err := s.Start("monitor", func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, s.IsRunning("monitor"))
}

// TestScheduler_ConcurrentStartStop verifies that racing Start and Stop
// never leaves more than one instance armed.
// Run with: go test -race ./internal/poller/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	s := newTestScheduler(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.Start("monitor", func(ctx context.Context) {})
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Stop("monitor")
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, len(s.cron.Entries()), 1)
}

func TestDelayedEvery(t *testing.T) {
	d := &delayedEvery{first: time.Second, every: 2 * time.Minute}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(time.Second), d.Next(base))
	assert.Equal(t, base.Add(2*time.Minute), d.Next(base))
	assert.Equal(t, base.Add(2*time.Minute), d.Next(base))
}
