// Package store holds the monitored identifier and its last known status.
//
// The main components are:
//
//   - [StatusStore]: mutex-guarded register of (identifier, status) whose
//     only write path for status is the atomic compare-and-update [StatusStore.Record]
//   - [ChangeEvent]: the transition produced when a recorded status differs
//     from the stored one
//
// Change events are also fanned out to subscribers via buffered channels.
// Sends are non-blocking: a slow subscriber misses events rather than
// stalling the check cycle.
//
// The store is generic over the status type so it does not depend on the
// playerwatch package; [Value] describes what it needs from a status.
package store
