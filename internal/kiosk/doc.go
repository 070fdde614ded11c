// Package kiosk serves the deck editor UI API.
//
// Ownership boundary:
//   - The editing Session: the current Protocol Document, replaced wholesale
//     by each State Manager call.
//   - HTTP/WebSocket surface: job submission, telemetry streaming, task
//     snapshots, protocol editing, and the labware catalog.
//
// The App is the composition root's context object. It holds no process-wide
// state; every dependency is passed in through Options.
package kiosk
