// Package preflight provides readiness checks for the filesystem paths,
// listen addresses, and external transform command that dreamloop depends on.
//
// The "dreamloop check" command prints every result and exits non-zero when
// any check fails. Bind checks open and immediately close a listener, so they
// report a conflict when the frame server is already running.
package preflight
