// Package backend is the execution backend the host talks to.
//
// Ownership boundary:
//   - REP socket: accepts one command at a time and replies immediately with
//     the id of the task it started.
//   - PUB socket: streams "<topic> <json>" frames for every running task.
//   - Task records: in-memory, per process lifetime.
//
// The simulated workload ticks a fixed number of steps per task. Command
// text is not interpreted.
package backend
