package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/testutil"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testAsset builds a stored asset with a derived id.
func testAsset(t *testing.T, typ ir.AssetType, payload ir.Object) ir.Asset {
	t.Helper()
	id, err := ir.Identify(typ, payload)
	if err != nil {
		t.Fatalf("Identify() failed: %v", err)
	}
	return ir.Asset{ID: id, Type: typ, Payload: payload, CreatedAt: testutil.Epoch}
}

// testRun builds a queued run.
func testRun(id, kind string) ir.Run {
	return ir.Run{ID: id, Kind: kind, Status: ir.RunQueued, StartedAt: testutil.Epoch}
}

// testEdge builds an edge with the given seq.
func testEdge(seq int64, src, dst string, rel ir.Relation, runID string) ir.Edge {
	return ir.Edge{
		Seq:       seq,
		SrcID:     src,
		DstID:     dst,
		Relation:  rel,
		RunID:     runID,
		Timestamp: testutil.Epoch.Add(time.Duration(seq) * time.Second),
	}
}

// canonical returns the canonical payload text for comparisons that must
// ignore Int/Float spelling.
func canonical(t *testing.T, p ir.Object) string {
	t.Helper()
	b, err := ir.CanonicalPayload(p)
	if err != nil {
		t.Fatalf("CanonicalPayload() failed: %v", err)
	}
	return string(b)
}

// scenario is the kappa workflow: system+method+params feed a run that
// produces results.
type scenario struct {
	system, method, params, results ir.Asset
	run                             ir.Run
	edges                           []ir.Edge
}

func newScenario(t *testing.T) scenario {
	t.Helper()
	sc := scenario{
		system:  testAsset(t, ir.AssetSystem, testutil.SiliconSystem()),
		method:  testAsset(t, ir.AssetMethod, testutil.BTEMethod()),
		params:  testAsset(t, ir.AssetParams, testutil.BTEParams()),
		results: testAsset(t, ir.AssetResults, testutil.KappaResults()),
		run:     testRun("run_0001", "phonon-bte"),
	}
	sc.edges = []ir.Edge{
		testEdge(1, sc.system.ID, sc.run.ID, ir.RelUses, sc.run.ID),
		testEdge(2, sc.method.ID, sc.run.ID, ir.RelUses, sc.run.ID),
		testEdge(3, sc.params.ID, sc.run.ID, ir.RelConfigures, sc.run.ID),
		testEdge(4, sc.run.ID, sc.results.ID, ir.RelProduces, sc.run.ID),
	}
	return sc
}

func (sc scenario) batch() Batch {
	return Batch{
		Assets: []ir.Asset{sc.system, sc.method, sc.params, sc.results},
		Runs:   []ir.Run{sc.run},
		Edges:  sc.edges,
	}
}
