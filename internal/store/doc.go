// Package store provides SQLite-backed durable storage for the provenance
// store.
//
// The in-memory asset store, run registry and ledger are the authority; this
// package is their durable shadow. Committed records reach SQLite through a
// Journal that writes batches asynchronously and in commit order, so no
// writer ever holds an in-memory lock across disk I/O.
//
// # Tables
//
//   - assets: id -> (type, canonical payload, created_at)
//   - runs: id -> (kind, status, runner_version, started_at, ended_at)
//   - edges: the append log keyed by seq
//
// Indices on edges exist for ad-hoc SQL only. The in-memory indices are
// rebuilt from the log at load time; the log is the source of truth.
//
// # Ordering
//
//   - Load returns edges ORDER BY seq ASC and assets ORDER BY id
//   - Timestamps are stored as RFC 3339 UTC text and never order anything
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - Schema managed by golang-migrate from the embedded migrations/ directory
package store
