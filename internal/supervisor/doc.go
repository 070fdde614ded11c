// Package supervisor runs the execution backend as a child process.
//
// Ownership boundary:
//   - Child lifecycle: start once, relay output, record the exit code.
//   - Termination: SIGTERM on Stop or context cancellation, kill after the
//     grace period. On Linux the child also receives SIGTERM if the host dies.
//   - Readiness: TCP probes of the backend's listen addresses.
//
// Out of scope:
//   - Restart policy. A backend that exits stays down.
package supervisor
