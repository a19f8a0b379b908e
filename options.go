package playerwatch

import (
	"errors"
	"log/slog"
	"time"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
	interval        time.Duration
	firstCheckDelay time.Duration
	checkTimeout    time.Duration
	extractor       StatusExtractor
	identifierStore IdentifierStore
	formatter       func(ChangeEvent) string
	logger          *slog.Logger
	changeCallbacks []func(ChangeEvent)
}

// Option configures a [Monitor] during construction. Options return an
// error if validation fails.
type Option func(*monitorConfig) error

// WithInterval sets the time between periodic checks. Defaults to 2 minutes.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("check interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithFirstCheckDelay sets the delay between [Monitor.Start] and the first
// check. Defaults to 1 second. Zero means check as soon as the job is armed.
func WithFirstCheckDelay(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d < 0 {
			return errors.New("first check delay cannot be negative")
		}
		cfg.firstCheckDelay = d
		return nil
	}
}

// WithCheckTimeout bounds one page fetch, including browser start-up and the
// settle delay. Defaults to 90 seconds.
func WithCheckTimeout(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("check timeout must be positive")
		}
		cfg.checkTimeout = d
		return nil
	}
}

// WithExtractor replaces [DefaultExtractor].
//
// Example:
//
//	m, err := playerwatch.New(fetcher, notifier,
//	    playerwatch.WithExtractor(playerwatch.LabelExtractor(playerwatch.ExtractorConfig{
//	        ServerLabel:   "Server",
//	        LastSeenLabel: "Zuletzt gesehen",
//	    })),
//	)
func WithExtractor(extractor StatusExtractor) Option {
	return func(cfg *monitorConfig) error {
		if extractor == nil {
			return errors.New("extractor cannot be nil")
		}
		cfg.extractor = extractor
		return nil
	}
}

// WithIdentifierStore persists the identifier. The saved identifier is
// loaded by [New]; [Monitor.SetIdentifier] saves before applying.
func WithIdentifierStore(s IdentifierStore) Option {
	return func(cfg *monitorConfig) error {
		if s == nil {
			return errors.New("identifier store cannot be nil")
		}
		cfg.identifierStore = s
		return nil
	}
}

// WithMessageFormatter replaces [FormatChange] for notification text.
func WithMessageFormatter(format func(ChangeEvent) string) Option {
	return func(cfg *monitorConfig) error {
		if format == nil {
			return errors.New("message formatter cannot be nil")
		}
		cfg.formatter = format
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *monitorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithChangeCallback registers a function called after every change event,
// once the notification has been attempted.
//
// Callbacks run synchronously on the check goroutine and must not block.
// Panics are recovered and logged. Nil callbacks are ignored.
func WithChangeCallback(cb func(ChangeEvent)) Option {
	return func(cfg *monitorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.changeCallbacks = append(cfg.changeCallbacks, cb)
		return nil
	}
}
