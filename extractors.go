package playerwatch

import (
	"strings"
)

const (
	// DefaultServerLabel is the page label that precedes the current server.
	DefaultServerLabel = "Current Server"

	// DefaultLastSeenLabel is the page label that precedes the last-seen time.
	DefaultLastSeenLabel = "Last Seen"

	// DefaultPlaceholder is shown in the server slot while the player is offline.
	DefaultPlaceholder = "Not online"
)

// StatusExtractor turns the raw label/text pairs of a player page into one
// canonical [Status].
//
// Extractors are pure functions: the same fields always produce the same
// status. They are called within a panic recovery boundary by [Monitor]; a
// panicking extractor yields [TransientError] for that check.
type StatusExtractor func(fields Fields) Status

// ExtractorConfig controls which labels [LabelExtractor] looks for.
//
// Matching is a case-insensitive substring match, so minor label variations
// ("Current server:", "LAST SEEN") are tolerated. Empty values fall back to
// the package defaults.
type ExtractorConfig struct {
	// ServerLabel marks the entry holding the current server name.
	ServerLabel string

	// LastSeenLabel marks the entry holding the last-seen marker.
	LastSeenLabel string

	// Placeholders are server texts that mean "not online". Nil uses
	// [DefaultPlaceholder]; an empty non-nil slice disables placeholder
	// filtering.
	Placeholders []string
}

// LabelExtractor returns a [StatusExtractor] that reads the server and
// last-seen entries from the fields.
//
// Resolution order:
//   - the first server entry with non-empty, non-placeholder text: [Online]
//   - otherwise the first non-empty last-seen entry: [OfflineSeen]
//   - otherwise, if either label was present at all: [Offline]
//   - neither label present: [TransientError] (the page did not render the
//     profile, which must not be mistaken for a real offline state)
//
// Text is trimmed; whitespace-only text counts as absent.
func LabelExtractor(cfg ExtractorConfig) StatusExtractor {
	serverLabel := strings.ToLower(orDefault(cfg.ServerLabel, DefaultServerLabel))
	lastSeenLabel := strings.ToLower(orDefault(cfg.LastSeenLabel, DefaultLastSeenLabel))

	placeholders := cfg.Placeholders
	if placeholders == nil {
		placeholders = []string{DefaultPlaceholder}
	}
	lowered := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}

	return func(fields Fields) Status {
		var (
			server, lastSeen   string
			sawServer, sawSeen bool
		)

		for _, f := range fields {
			label := strings.ToLower(f.Label)
			text := strings.TrimSpace(f.Text)

			if strings.Contains(label, serverLabel) {
				sawServer = true
				if server == "" && text != "" && !isPlaceholder(text, lowered) {
					server = text
				}
			}

			if strings.Contains(label, lastSeenLabel) {
				sawSeen = true
				if lastSeen == "" && text != "" {
					lastSeen = text
				}
			}
		}

		switch {
		case server != "":
			return Online(server)
		case lastSeen != "":
			return OfflineSeen(lastSeen)
		case sawServer || sawSeen:
			return Offline()
		default:
			return TransientError()
		}
	}
}

// DefaultExtractor is the [StatusExtractor] used when none is configured.
// It is [LabelExtractor] with the BattleMetrics player page labels.
var DefaultExtractor = LabelExtractor(ExtractorConfig{})

// FirstMatch returns a [StatusExtractor] that tries multiple extractors in
// order, returning the first result that is not [TransientError].
//
// This is useful when a page has been redesigned and both the old and new
// labels need to be supported for a while.
func FirstMatch(extractors ...StatusExtractor) StatusExtractor {
	return func(fields Fields) Status {
		for _, extractor := range extractors {
			if status := extractor(fields); !status.IsTransient() {
				return status
			}
		}
		return TransientError()
	}
}

func isPlaceholder(text string, placeholders []string) bool {
	lower := strings.ToLower(text)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
