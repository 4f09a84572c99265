// Package statestore records the lifecycle of observing sessions:
// scheduled, observing and then completed, skipped or cancelled.
//
// Drivers:
//   - "memory": process-local, for tests and dry runs
//   - "file": JSON Lines journal compacted into a snapshot
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package statestore
