// Package journal persists per-item ingest outcomes in SQLite so operators can
// review what a run processed and what keeps failing.
//
// The journal is write-mostly history. The ingest loop never reads it back to
// decide what to process; that stays with the in-memory processed set.
package journal
