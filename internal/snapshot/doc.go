// Package snapshot exports and imports portable copies of the provenance
// store.
//
// A snapshot is JSON Lines: one header line naming the format and the
// canonicalization version, then one line per asset, run and edge. Asset
// payloads are written in canonical form and edges ascend by seq, so two
// exports of the same state are byte-identical.
//
// Verify is the reproducibility audit: it recomputes every asset id from its
// payload and checks edge order and referential integrity without trusting
// anything the snapshot claims about itself.
package snapshot
