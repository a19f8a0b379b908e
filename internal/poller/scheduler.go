package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	// ErrAlreadyRunning is returned by Start when the name already has an
	// armed job.
	ErrAlreadyRunning = errors.New("job already running")

	// ErrNotRunning is returned by Stop and Cancel when nothing is armed.
	ErrNotRunning = errors.New("job not running")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("scheduler closed")
)

// Job is the work performed on each firing. The context is cancelled when
// the scheduler is closed.
type Job func(ctx context.Context)

// Handle identifies one armed job instance.
type Handle struct {
	name string
	id   cron.EntryID
}

// Name returns the job name the handle was armed under.
func (h Handle) Name() string {
	return h.name
}

// Scheduler arms named jobs on a shared cron runner.
//
// Each job fires once after the first-fire delay and then at a fixed
// interval. There is no jitter and no backoff: a failed firing simply waits
// for the next one.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	cron       *cron.Cron
	interval   time.Duration
	firstDelay time.Duration
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	jobs   map[string][]cron.EntryID
	closed bool
}

// NewScheduler creates a running [Scheduler].
//
// Parameters:
//   - interval: time between firings
//   - firstDelay: time from Start to the first firing (near-immediate)
//   - logger: logger for firings, skips and recovered panics
//
// The scheduler must be released with [Scheduler.Close].
func NewScheduler(interval, firstDelay time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)
	c.Start()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       c,
		interval:   interval,
		firstDelay: firstDelay,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string][]cron.EntryID),
	}
}

// Start arms job under name.
//
// Returns [ErrAlreadyRunning] without arming anything if name already has an
// armed job, and [ErrClosed] after [Scheduler.Close].
func (s *Scheduler) Start(name string, job Job) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Handle{}, ErrClosed
	}
	if len(s.jobs[name]) > 0 {
		return Handle{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}

	schedule := &delayedEvery{first: s.firstDelay, every: s.interval}
	id := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.runSafe(name, job)
	}))
	s.jobs[name] = append(s.jobs[name], id)

	s.logger.Info("job armed",
		"job", name,
		"interval", s.interval.String(),
		"first_delay", s.firstDelay.String(),
	)
	return Handle{name: name, id: id}, nil
}

// Stop cancels every instance armed under name and returns how many were
// cancelled. A firing already in progress is not interrupted; it is only
// prevented from firing again.
//
// Returns [ErrNotRunning] if name has nothing armed.
func (s *Scheduler) Stop(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.jobs[name]
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	for _, id := range ids {
		s.cron.Remove(id)
	}
	delete(s.jobs, name)

	s.logger.Info("job stopped", "job", name, "instances", len(ids))
	return len(ids), nil
}

// Cancel cancels the single instance identified by h.
//
// Returns [ErrNotRunning] if h is no longer armed.
func (s *Scheduler) Cancel(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.jobs[h.name]
	for i, id := range ids {
		if id != h.id {
			continue
		}
		s.cron.Remove(id)
		ids = append(ids[:i], ids[i+1:]...)
		if len(ids) == 0 {
			delete(s.jobs, h.name)
		} else {
			s.jobs[h.name] = ids
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotRunning, h.name)
}

// IsRunning reports whether name has an armed job.
func (s *Scheduler) IsRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs[name]) > 0
}

// Close disarms all jobs, cancels the context passed to in-flight firings
// and waits for them to return. Close is idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.jobs = make(map[string][]cron.EntryID)
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
}

// runSafe runs a job with panic recovery. A panicking job is logged with a
// correlation ID and stack trace; the scheduler keeps firing it.
func (s *Scheduler) runSafe(name string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panic",
				"job", name,
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if s.ctx.Err() != nil {
		return
	}
	s.logger.Debug("job firing", "job", name)
	job(s.ctx)
}

// delayedEvery fires once after first, then every every.
//
// Next is only called from the cron runner goroutine, so the fired flag needs
// no locking.
type delayedEvery struct {
	first time.Duration
	every time.Duration
	fired bool
}

// Next implements cron.Schedule.
func (d *delayedEvery) Next(t time.Time) time.Time {
	if !d.fired {
		d.fired = true
		return t.Add(d.first)
	}
	return t.Add(d.every)
}

// cronLogger adapts slog to cron.Logger. cron's chatty lifecycle messages go
// to debug; skipped firings are worth a warning.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Warn("firing skipped, previous still running", keysAndValues...)
		return
	}
	l.logger.Debug("cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron "+msg, append(keysAndValues, "error", err)...)
}
