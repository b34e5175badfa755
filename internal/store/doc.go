// Package store holds module table rows and the call log.
//
// Two backends implement Store:
//   - SQLite: durable, one database file per module
//   - Memory: process-local, used by tests and replay verification
//
// Table rows are only reachable through a Tx. A Tx sees its own uncommitted
// inserts, and nothing it wrote is visible to anyone else until Commit.
// Rollback discards rows and sequence advances alike, so a failed call
// never consumes an id.
//
// # Sequences
//
// A table with an auto_inc column owns a sequence starting at 1. The value
// supplied for that column on insert is a placeholder and is overwritten.
// Ids are never reused within the lifetime of a table.
//
// # Ordering
//
// Rows are returned in primary key order. Call-log reads use
// ORDER BY seq ASC, id COLLATE BINARY ASC so results are identical across
// replays. Ordering never depends on wall-clock time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
