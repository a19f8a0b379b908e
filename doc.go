// Package playerwatch watches the public profile page of a game-server
// player and reports status transitions to an operator.
//
// A [Monitor] periodically fetches the page through a [PageFetcher], turns
// the label/text pairs into a canonical [Status] with a [StatusExtractor],
// compares it with the last known status and, when it changed, sends a
// message through a [Notifier].
//
// # Quick Start
//
//	m, err := playerwatch.New(fetcher, notifier)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	if _, err := m.SetIdentifier("12345"); err != nil {
//	    return err
//	}
//	if err := m.Start(); err != nil {
//	    return err
//	}
//
// # Status
//
// [Status] is a comparable value, so change detection is plain equality:
// Online("A") and Online("B") differ. [KindUnknown] is only the initial
// state; the first conclusive check after an identifier is set is recorded
// silently. [KindTransientError] marks a failed check and never replaces
// the stored status.
//
// # Status Extractors
//
//   - [LabelExtractor]: reads "Current Server" and "Last Seen" entries
//   - [FirstMatch]: tries multiple extractors, first non-transient wins
//   - [DefaultExtractor]: [LabelExtractor] with the default labels
//
// # Architecture
//
//   - internal/store: identifier and status register with change pub/sub
//   - internal/poller: named periodic jobs on a cron runner
//   - internal/fetcher: headless browser page fetcher
//   - internal/telegram: Telegram notifier and command transport
//   - internal/command: operator command dispatch
//   - internal/settings: TOML settings file
//   - internal/server: HTTP control API and change stream
//
// The internal packages are not part of the public API.
package playerwatch
