package ir

// Version constants for the persisted formats.
const (
	// SnapshotFormat names the snapshot file format.
	SnapshotFormat = "mcg-snapshot/1"

	// StoreVersion is the mcg store version.
	StoreVersion = "0.1.0"
)
