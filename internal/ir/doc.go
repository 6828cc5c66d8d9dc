// Package ir provides the canonical data model of the provenance store.
//
// This package contains the payload value variant, canonical JSON, asset
// identity, the Asset/Edge/Run records and the typed error taxonomy. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Payloads are a sealed variant over {null, string, int, float, bool,
//     array, object}; floats must be finite
//   - Asset ids are derived from (type, canonical payload) only, never from
//     wall-clock data
//   - Edge order comes from the ledger sequence, never from timestamps
//   - All JSON tags use snake_case
package ir
