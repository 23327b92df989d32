// Package ingest implements the producer side of dreamloop: a long-running
// loop that turns every new image dropped into the input directory into a
// transformed image in the output directory.
//
// Each filename is handled at most once per run. Successful items are
// recorded in the in-memory ProcessedSet and their input is removed; failed
// items are left in place and retried on every later scan with a fixed pause
// between failures. Observers receive per-item outcomes for the journal and
// metrics collectors.
package ingest
