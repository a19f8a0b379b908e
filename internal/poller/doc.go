// Package poller runs named periodic jobs for playerwatch.
//
// The main components are:
//
//   - [Scheduler]: registry of named jobs armed on a cron runner
//   - [Handle]: the explicit token returned by [Scheduler.Start]
//   - [Job]: the work run on each firing
//
// A name can have at most one armed job at a time; starting an armed name
// returns [ErrAlreadyRunning] and stopping an idle name returns
// [ErrNotRunning]. Firings of a job never overlap: a firing that comes due
// while the previous one is still running is skipped.
//
// Users of the playerwatch library should not need to interact with this
// package directly. Scheduling is driven by playerwatch.Monitor.
package poller
