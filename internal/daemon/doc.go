// Package daemon wraps the ingest loop in a single-instance process lifecycle.
//
// Start takes an exclusive flock in the state directory, writes the PID file
// that marks the process as alive, and runs the loop on a background
// goroutine. Stop cancels the loop, waits for it, and releases both. A second
// process pointed at the same state directory fails to start.
package daemon
