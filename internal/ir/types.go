package ir

import (
	"fmt"
	"strings"
	"time"
)

// AssetType is the closed set of asset kinds.
type AssetType string

const (
	AssetSystem   AssetType = "System"
	AssetMethod   AssetType = "Method"
	AssetParams   AssetType = "Params"
	AssetResults  AssetType = "Results"
	AssetArtifact AssetType = "Artifact"
)

// AssetTypes lists every valid asset type in declaration order.
var AssetTypes = []AssetType{AssetSystem, AssetMethod, AssetParams, AssetResults, AssetArtifact}

// idPrefixes maps asset types to the short tag leading their ids.
var idPrefixes = map[AssetType]string{
	AssetSystem:   "sy",
	AssetMethod:   "me",
	AssetParams:   "pa",
	AssetResults:  "rs",
	AssetArtifact: "ar",
}

var prefixTypes = func() map[string]AssetType {
	m := make(map[string]AssetType, len(idPrefixes))
	for t, p := range idPrefixes {
		m[p] = t
	}
	return m
}()

// Valid reports whether t is in the closed set.
func (t AssetType) Valid() bool {
	_, ok := idPrefixes[t]
	return ok
}

// ParseAssetType resolves a type name case-insensitively.
func ParseAssetType(s string) (AssetType, error) {
	for _, t := range AssetTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", NewEncodingError(fmt.Sprintf("unknown asset type %q", s), nil)
}

// Relation is the closed set of edge relations.
type Relation string

const (
	RelUses       Relation = "USES"
	RelProduces   Relation = "PRODUCES"
	RelConfigures Relation = "CONFIGURES"
	RelDerives    Relation = "DERIVES"
	RelLogs       Relation = "LOGS"
)

// Relations lists every valid relation in declaration order.
var Relations = []Relation{RelUses, RelProduces, RelConfigures, RelDerives, RelLogs}

// Valid reports whether r is in the closed set.
func (r Relation) Valid() bool {
	for _, known := range Relations {
		if r == known {
			return true
		}
	}
	return false
}

// IsOutput reports whether r points from a producer to what it produced.
// Lineage traversal follows these edges.
func (r Relation) IsOutput() bool {
	return r == RelProduces || r == RelDerives || r == RelLogs
}

// IsInput reports whether r feeds an asset into a run.
func (r Relation) IsInput() bool {
	return r == RelUses || r == RelConfigures
}

// ParseRelation resolves a relation name case-insensitively.
// Fails with UnknownRelation outside the closed set.
func ParseRelation(s string) (Relation, error) {
	for _, r := range Relations {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", NewUnknownRelation(s)
}

// Asset is an immutable, content-addressed computational object.
// CreatedAt is assigned by the store and excluded from the id.
type Asset struct {
	ID        string    `json:"id"`
	Type      AssetType `json:"type"`
	Payload   Object    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetInput is what producers submit: the id is derived, never supplied.
type AssetInput struct {
	Type    AssetType `json:"type"`
	Payload Object    `json:"payload"`
}

// Edge is an immutable, directed, typed relationship recorded once.
// Seq is the edge id: assigned at append, strictly increasing.
type Edge struct {
	Seq       int64     `json:"seq"`
	SrcID     string    `json:"src_id"`
	DstID     string    `json:"dst_id"`
	Relation  Relation  `json:"relation"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EdgeInput is the producer-side form of an edge before append.
type EdgeInput struct {
	SrcID    string   `json:"src_id"`
	DstID    string   `json:"dst_id"`
	Relation Relation `json:"relation"`
	RunID    string   `json:"run_id"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunError   RunStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunDone || s == RunError
}

// ParseRunStatus resolves a status name case-insensitively.
func ParseRunStatus(s string) (RunStatus, error) {
	for _, st := range []RunStatus{RunQueued, RunRunning, RunDone, RunError} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", NewEncodingError(fmt.Sprintf("unknown run status %q", s), nil)
}

// Run names one execution of a computational method. It is identity-only:
// not content-hashed, referenced by edges, status owned by the runner.
type Run struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	Status        RunStatus  `json:"status"`
	RunnerVersion string     `json:"runner_version,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// State is a full copy of store contents: assets ordered by id, runs in
// registration order, edges ascending by seq. It is the unit exchanged by
// durable reload and snapshots.
type State struct {
	Assets []Asset `json:"assets"`
	Runs   []Run   `json:"runs"`
	Edges  []Edge  `json:"edges"`
}
