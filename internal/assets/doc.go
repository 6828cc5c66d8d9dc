// Package assets implements the content-addressed asset store.
//
// The store is a deduplicated map from id to immutable Asset. Ids are derived
// by ir.Identify, so submitting the same (type, payload) twice always lands on
// one record. Hashing and optional schema checks run in parallel outside the
// critical section; only the dedup check and insertion are serialized.
//
// Key invariants:
//   - A stored payload is never mutated; callers always receive deep copies
//   - One id never maps to two canonical payloads (IntegrityConflict)
//   - A failed PutMany leaves the store unchanged
//   - The commit hook sees inserted assets in commit order
package assets
