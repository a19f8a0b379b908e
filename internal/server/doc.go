// Package server provides the HTTP control API for the player monitor.
//
// It is a second command surface next to the Telegram gateway and drives
// the same monitor operations:
//
//   - REST: typed operations under "/api/v1/monitor", with an OpenAPI
//     document at "/openapi.json"
//   - Websocket: change events at "/api/v1/events", preceded by a snapshot
//     of the current report
//
// Handlers never run a check inline. They only arm or disarm the periodic
// job and touch the status register, so they return immediately.
//
// The server supports graceful shutdown via context cancellation, with a
// configurable timeout (5 seconds by default) for in-flight requests.
package server
