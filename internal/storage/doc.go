// Package storage persists job run history so operators can see what the
// daemon has been doing across restarts.
//
// It currently supports:
//   - "sqlite": a single-file SQLite database (modernc.org/sqlite, no cgo)
//   - "file":   an append-only JSONL log
//   - "" / "none": disabled
package storage
