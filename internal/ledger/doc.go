// Package ledger records job lifecycle events in an append-only SQLite table.
//
// It backs the history CLI command and the per-job events API. The job store
// holds current state; the ledger holds the timeline.
package ledger
