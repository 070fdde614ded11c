// Package bridge connects the host to the execution backend.
//
// Ownership boundary:
//   - Command channel: one REQ socket, strict request/reply, guarded so
//     overlapping callers queue instead of interleaving.
//   - Telemetry channel: one SUB socket read by a single listener goroutine
//     that fans each message out to registered subscribers in receive order.
//   - Telemetry parsing and the task tracker folded from progress/result.
//
// Out of scope:
//   - Backend lifecycle (see internal/supervisor).
//   - Command semantics. Commands and replies are opaque strings.
package bridge
