package playerwatch

import (
	"errors"

	"github.com/jpalmerr/playerwatch/internal/poller"
)

var (
	// ErrAlreadyRunning is returned by [Monitor.Start] when the check job is
	// already armed.
	ErrAlreadyRunning = errors.New("monitoring is already running")

	// ErrNotRunning is returned by [Monitor.Stop] when no check job is armed.
	ErrNotRunning = errors.New("monitoring is not running")

	// ErrInvalidIdentifier is returned by [Monitor.SetIdentifier] for an
	// empty or malformed identifier.
	ErrInvalidIdentifier = errors.New("invalid player identifier")

	// ErrNoIdentifier is returned when an operation needs an identifier and
	// none has been set.
	ErrNoIdentifier = errors.New("no player identifier set")

	// ErrClosed is returned after [Monitor.Close].
	ErrClosed = errors.New("monitor closed")
)

// schedulerError maps scheduler errors onto the package sentinels.
func schedulerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, poller.ErrAlreadyRunning):
		return ErrAlreadyRunning
	case errors.Is(err, poller.ErrNotRunning):
		return ErrNotRunning
	case errors.Is(err, poller.ErrClosed):
		return ErrClosed
	default:
		return err
	}
}
