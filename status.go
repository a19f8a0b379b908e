package playerwatch

import "fmt"

// Kind identifies which variant of [Status] a value holds.
type Kind string

const (
	// KindUnknown means no check has produced a conclusive result yet for the
	// current identifier. It is only ever the initial state.
	KindUnknown Kind = "unknown"

	// KindOnline means the player is on a named server.
	KindOnline Kind = "online"

	// KindOfflineSeen means the player is offline and the page shows a
	// last-seen marker.
	KindOfflineSeen Kind = "offline_seen"

	// KindOffline means the player is offline with no last-seen information.
	KindOffline Kind = "offline"

	// KindTransientError means a check failed. It is never stored and never
	// counts as a change.
	KindTransientError Kind = "transient_error"
)

// Status is the canonical classification of a monitored player.
//
// Status is a comparable value: two statuses are equal when their kind and
// payload match exactly, so Online("A") != Online("B"). Use the constructors
// ([Online], [OfflineSeen], [Offline], [Unknown], [TransientError]) rather than
// building the struct by hand.
//
// The zero value is not a valid status; [Unknown] is the initial state.
type Status struct {
	// Kind is the variant tag.
	Kind Kind `json:"kind"`

	// Server is the server name. Only set for [KindOnline].
	Server string `json:"server,omitempty"`

	// LastSeen is the opaque last-seen display string. Only set for
	// [KindOfflineSeen]; it is not parsed as a timestamp.
	LastSeen string `json:"last_seen,omitempty"`
}

// Online returns the status of a player active on server.
func Online(server string) Status {
	return Status{Kind: KindOnline, Server: server}
}

// OfflineSeen returns the status of an offline player last seen at when.
func OfflineSeen(when string) Status {
	return Status{Kind: KindOfflineSeen, LastSeen: when}
}

// Offline returns the status of an offline player with no last-seen marker.
func Offline() Status {
	return Status{Kind: KindOffline}
}

// Unknown returns the initial status.
func Unknown() Status {
	return Status{Kind: KindUnknown}
}

// TransientError returns the status of a failed check.
func TransientError() Status {
	return Status{Kind: KindTransientError}
}

// IsUnknown reports whether s is the initial sentinel.
func (s Status) IsUnknown() bool {
	return s.Kind == KindUnknown
}

// IsTransient reports whether s represents a failed check.
func (s Status) IsTransient() bool {
	return s.Kind == KindTransientError
}

// String renders the status the way it is shown to operators.
func (s Status) String() string {
	switch s.Kind {
	case KindOnline:
		return fmt.Sprintf("Online (%s)", s.Server)
	case KindOfflineSeen:
		return fmt.Sprintf("Offline (Last seen: %s)", s.LastSeen)
	case KindOffline:
		return "Offline"
	case KindTransientError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Field is one label/text pair scraped from the player page, e.g. a
// definition list term and its description.
type Field struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Fields is the ordered set of pairs returned by a [PageFetcher]. Order
// follows the page, which is what makes first-match extraction stable.
type Fields []Field

// Report is the read-only view returned by [Monitor.Report].
type Report struct {
	// Identifier is the monitored player, empty when none is set.
	Identifier string `json:"identifier"`

	// HasIdentifier is false until an identifier has been set or loaded.
	HasIdentifier bool `json:"has_identifier"`

	// Running reports whether the periodic check job is armed.
	Running bool `json:"running"`

	// Status is the last conclusive status, or [KindUnknown].
	Status Status `json:"status"`
}
