package playerwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/jpalmerr/playerwatch/internal/poller"
	"github.com/jpalmerr/playerwatch/internal/store"
)

const (
	defaultInterval        = 2 * time.Minute
	defaultFirstCheckDelay = time.Second
	defaultCheckTimeout    = 90 * time.Second

	// checkJobName is the scheduler name of the periodic check.
	checkJobName = "player_check"

	maxIdentifierLen = 64
)

// PageFetcher loads the public page of a player and returns its label/text
// pairs in page order.
//
// Implementations must honour ctx cancellation. Any returned error is
// treated as a transient failure of that one check.
type PageFetcher interface {
	Fetch(ctx context.Context, identifier string) (Fields, error)
}

// PageFetcherFunc adapts a function to [PageFetcher].
type PageFetcherFunc func(ctx context.Context, identifier string) (Fields, error)

// Fetch calls f.
func (f PageFetcherFunc) Fetch(ctx context.Context, identifier string) (Fields, error) {
	return f(ctx, identifier)
}

// Notifier delivers a text message to the operator.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, text string) error

// Send calls f.
func (f NotifierFunc) Send(ctx context.Context, text string) error {
	return f(ctx, text)
}

// IdentifierStore persists the monitored identifier across restarts.
type IdentifierStore interface {
	// LoadIdentifier returns the saved identifier. ok is false when nothing
	// has been saved yet; that is not an error.
	LoadIdentifier() (id string, ok bool, err error)

	// SaveIdentifier replaces the saved identifier.
	SaveIdentifier(id string) error
}

// ChangeEvent is a committed transition between two conclusive statuses of
// the same identifier. Transitions out of [KindUnknown] never produce one.
type ChangeEvent = store.ChangeEvent[Status]

// CheckOutcome classifies what one check cycle did.
type CheckOutcome string

const (
	// CheckSkipped means no identifier was set; nothing was fetched.
	CheckSkipped CheckOutcome = "skipped"

	// CheckBusy means another check was still in flight.
	CheckBusy CheckOutcome = "busy"

	// CheckFailed means fetching or extraction failed; the stored status is
	// untouched.
	CheckFailed CheckOutcome = "failed"

	// CheckNoChange means the observation produced no change event. This
	// includes the first observation after an identifier is set.
	CheckNoChange CheckOutcome = "no_change"

	// CheckChanged means a change event was produced and notification was
	// attempted.
	CheckChanged CheckOutcome = "changed"
)

// CheckResult describes one completed check cycle.
type CheckResult struct {
	RunID      string        `json:"run_id,omitempty"`
	Identifier string        `json:"identifier,omitempty"`
	Outcome    CheckOutcome  `json:"outcome"`
	Observed   Status        `json:"observed"`
	Event      *ChangeEvent  `json:"event,omitempty"`
	Duration   time.Duration `json:"duration"`

	// Err is the fetch, extraction or notification error, if any.
	Err error `json:"-"`
}

// Monitor watches one player page and notifies on status changes.
//
// A Monitor owns the identifier and status register, the periodic check
// job, and the notification path. Operator commands (start, stop, set
// identifier, report) and the periodic check run concurrently; every shared
// read and write goes through the register's lock.
//
// The typical lifecycle is:
//
//	m, err := playerwatch.New(fetcher, notifier,
//	    playerwatch.WithIdentifierStore(settings),
//	    playerwatch.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	if err := m.Start(); err != nil && !errors.Is(err, playerwatch.ErrAlreadyRunning) {
//	    return err
//	}
type Monitor struct {
	fetcher        PageFetcher
	notifier       Notifier
	extractor      StatusExtractor
	ids            IdentifierStore
	formatter      func(ChangeEvent) string
	checkTimeout   time.Duration
	logger         *slog.Logger
	changeCallback []func(ChangeEvent)

	store     *store.StatusStore[Status]
	scheduler *poller.Scheduler

	// setMu orders identifier changes so the saved and applied identifier
	// always agree.
	setMu sync.Mutex

	runMu  sync.Mutex
	handle poller.Handle
	armed  bool

	// checking serializes check cycles, including a cycle started by a new
	// job while the previous job's last cycle is still in flight.
	checking atomic.Bool
	closed   atomic.Bool
}

// New creates a [Monitor]. The check job is not armed until
// [Monitor.Start] is called.
//
// Defaults:
//   - interval: 2 minutes
//   - first check delay: 1 second
//   - check timeout: 90 seconds
//   - extractor: [DefaultExtractor]
//
// If an [IdentifierStore] is configured, the saved identifier is loaded and
// the status starts at [KindUnknown].
func New(fetcher PageFetcher, notifier Notifier, opts ...Option) (*Monitor, error) {
	if fetcher == nil {
		return nil, errors.New("page fetcher is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}

	cfg := &monitorConfig{
		interval:        defaultInterval,
		firstCheckDelay: defaultFirstCheckDelay,
		checkTimeout:    defaultCheckTimeout,
		extractor:       DefaultExtractor,
		formatter:       FormatChange,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		fetcher:        fetcher,
		notifier:       notifier,
		extractor:      cfg.extractor,
		ids:            cfg.identifierStore,
		formatter:      cfg.formatter,
		checkTimeout:   cfg.checkTimeout,
		logger:         logger,
		changeCallback: cfg.changeCallbacks,
		store:          store.New(Unknown()),
	}

	if m.ids != nil {
		id, ok, err := m.ids.LoadIdentifier()
		if err != nil {
			return nil, fmt.Errorf("loading saved identifier: %w", err)
		}
		if ok {
			m.store.SetIdentifier(id)
			logger.Info("loaded saved identifier", "identifier", id)
		}
	}

	m.scheduler = poller.NewScheduler(cfg.interval, cfg.firstCheckDelay, logger)
	return m, nil
}

// Start arms the periodic check. The first check runs after the first
// check delay, then every interval.
//
// Returns [ErrAlreadyRunning] if the job is already armed; nothing is
// changed in that case.
func (m *Monitor) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	h, err := m.scheduler.Start(checkJobName, m.runScheduled)
	if err != nil {
		return schedulerError(err)
	}
	m.handle, m.armed = h, true
	m.logger.Debug("check armed", "job", h.Name())
	return nil
}

// Stop disarms every instance of the periodic check. A check already in
// flight completes, but no further checks are scheduled.
//
// Returns [ErrNotRunning] if nothing was armed.
func (m *Monitor) Stop() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	cancelled := 0
	if m.armed {
		m.armed = false
		if err := m.scheduler.Cancel(m.handle); err == nil {
			cancelled++
		}
	}

	// sweep anything else armed under the name
	n, err := m.scheduler.Stop(checkJobName)
	if err != nil && cancelled == 0 {
		return schedulerError(err)
	}
	if total := cancelled + n; total > 1 {
		m.logger.Warn("stopped more than one armed check", "job", checkJobName, "instances", total)
	}
	return nil
}

// IsRunning reports whether the periodic check is armed.
func (m *Monitor) IsRunning() bool {
	return m.scheduler.IsRunning(checkJobName)
}

// SetIdentifier validates, persists and applies a new identifier.
//
// Surrounding whitespace is trimmed. The stored status is reset to
// [KindUnknown], so the first conclusive check afterwards does not notify.
// A running check job keeps running and picks up the new identifier on its
// next firing. If persisting fails, nothing changes.
func (m *Monitor) SetIdentifier(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := validateIdentifier(id); err != nil {
		return "", err
	}

	m.setMu.Lock()
	defer m.setMu.Unlock()

	if m.ids != nil {
		if err := m.ids.SaveIdentifier(id); err != nil {
			return "", fmt.Errorf("saving identifier: %w", err)
		}
	}
	m.store.SetIdentifier(id)

	m.logger.Info("identifier set", "identifier", id)
	return id, nil
}

// Identifier returns the current identifier and whether one is set.
func (m *Monitor) Identifier() (string, bool) {
	return m.store.Identifier()
}

// Report returns the identifier, whether monitoring is running and the last
// conclusive status. It never triggers a check.
func (m *Monitor) Report() Report {
	id, ok, current := m.store.Snapshot()
	return Report{
		Identifier:    id,
		HasIdentifier: ok,
		Running:       m.IsRunning(),
		Status:        current,
	}
}

// Subscribe returns a channel receiving every [ChangeEvent]. A subscriber
// that falls behind misses events rather than stalling checks.
//
// Caller must call [Monitor.Unsubscribe] when done.
func (m *Monitor) Subscribe() <-chan ChangeEvent {
	return m.store.Subscribe()
}

// Unsubscribe removes a subscription created by [Monitor.Subscribe].
func (m *Monitor) Unsubscribe(ch <-chan ChangeEvent) {
	m.store.Unsubscribe(ch)
}

// Close disarms the check job and waits for an in-flight check to return.
// The in-flight check's context is cancelled. Close is idempotent.
func (m *Monitor) Close() {
	if m.closed.Swap(true) {
		return
	}
	m.scheduler.Close()
}

// RunCheck performs one check cycle for the current identifier:
//
//  1. with no identifier set, return [CheckSkipped]
//  2. fetch the page within the check timeout
//  3. extract a status
//  4. record it; failures never touch the stored status
//  5. on a change event, send the change message
//
// Notification failures are logged and reported in the result; the status
// stays committed. At most one cycle runs at a time; a concurrent call
// returns [CheckBusy] immediately.
func (m *Monitor) RunCheck(ctx context.Context) CheckResult {
	if !m.checking.CompareAndSwap(false, true) {
		m.logger.Warn("check skipped, previous check still running")
		return CheckResult{Outcome: CheckBusy}
	}
	defer m.checking.Store(false)

	id, ok := m.store.Identifier()
	if !ok {
		m.logger.Debug("check skipped, no identifier set")
		return CheckResult{Outcome: CheckSkipped}
	}

	start := time.Now()
	result := CheckResult{
		RunID:      uuid.NewString(),
		Identifier: id,
	}
	logger := m.logger.With("run_id", result.RunID, "identifier", id)

	observed, err := m.observe(ctx, id)
	result.Observed = observed
	result.Duration = time.Since(start)

	if observed.IsTransient() {
		result.Outcome = CheckFailed
		result.Err = err
		logger.Warn("check failed",
			"error", errString(err),
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result
	}

	event, changed := m.store.Record(id, observed)
	if !changed {
		result.Outcome = CheckNoChange
		logger.Debug("check completed",
			"status", observed.String(),
			"duration_ms", result.Duration.Milliseconds(),
		)
		return result
	}

	result.Outcome = CheckChanged
	result.Event = &event
	logger.Info("status changed",
		"from", event.From.String(),
		"to", event.To.String(),
	)

	if err := m.notifier.Send(ctx, m.formatter(event)); err != nil {
		result.Err = fmt.Errorf("sending notification: %w", err)
		logger.Error("notification failed", "error", err.Error())
	}
	for _, cb := range m.changeCallback {
		invokeCallbackSafe(cb, event, logger)
	}
	return result
}

// Probe fetches and classifies the page of id once, without touching the
// monitor state. Fetch and extraction failures yield [TransientError] and a
// non-nil error.
func (m *Monitor) Probe(ctx context.Context, id string) (Status, error) {
	id = strings.TrimSpace(id)
	if err := validateIdentifier(id); err != nil {
		return TransientError(), err
	}
	return m.observe(ctx, id)
}

func (m *Monitor) runScheduled(ctx context.Context) {
	m.RunCheck(ctx)
}

// observe fetches and extracts within the check timeout.
func (m *Monitor) observe(ctx context.Context, id string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	fields, err := m.fetcher.Fetch(ctx, id)
	if err != nil {
		return TransientError(), fmt.Errorf("fetching page for %s: %w", id, err)
	}
	return safeExtract(m.extractor, fields, m.logger)
}

// safeExtract runs an extractor with panic recovery. A panic becomes a
// transient failure with a correlation ID for log lookup. An extractor that
// answers unknown is treated as a failure too.
func safeExtract(extractor StatusExtractor, fields Fields, logger *slog.Logger) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("extractor panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			status = TransientError()
			err = fmt.Errorf("extractor panic (correlation_id=%s)", correlationID)
		}
	}()

	status = extractor(fields)
	switch {
	case status.IsTransient():
		return status, errors.New("no status fields found on page")
	case status.IsUnknown():
		return TransientError(), errors.New("extractor returned an unknown status")
	}
	return status, nil
}

// FormatChange renders the default change notification.
func FormatChange(event ChangeEvent) string {
	return fmt.Sprintf("⚠️ Status Change!\nNew Status: %s", event.To)
}

func validateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if len(id) > maxIdentifierLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentifier, maxIdentifierLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
	}
	return nil
}

// invokeCallbackSafe calls a change callback with panic recovery.
func invokeCallbackSafe(cb func(ChangeEvent), event ChangeEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("change callback panicked", "panic", r)
		}
	}()
	cb(event)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
