// Package ledger implements the append-only edge ledger.
//
// Edges are validated, stamped with the next sequence number from Clock, and
// appended to an in-memory log together with their secondary indices (by
// src, dst, run and relation) in one critical section. Readers take a View:
// an immutable prefix of the log that can be iterated without locks and
// never observes a later append.
//
// Key invariants:
//   - Seq strictly increases with append order; timestamps never order edges
//   - A rejected Append/AppendMany commits nothing
//   - Committed edges are never changed or removed
//   - Indices are derived data; Rebuild recreates them from the log alone
package ledger
