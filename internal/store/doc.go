// Package store provides SQLite-backed storage for scheduler records, their
// per-gear QC status, and a local downstream job ledger.
//
// Tables:
//   - records: one row per visit record, keyed by id
//   - qc_status: one row per (record, gear) outcome
//   - jobs: triggered downstream jobs and their retry chain
//
// Effective dates are stored as Unix nanoseconds so the date filters used by
// the scheduler (exact, OR-list, ">=", ">") run as plain integer
// comparisons in SQL.
//
// # Ordering
//
// Every multi-row query has an ORDER BY. Records come back in
// (effective_date, id) order; jobs are ordered by their logical sequence
// number, never by wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: qc_status rows cannot outlive their record
package store
