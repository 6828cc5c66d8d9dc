package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/provenance"
	"github.com/roach88/mcg/internal/testutil"
)

func newIngestStore(t *testing.T) *provenance.Store {
	t.Helper()
	s := provenance.New(
		provenance.WithClock(testutil.NewStepClock().Now),
		provenance.WithRunIDs(testutil.NewSequentialRunIDs()),
		provenance.WithLogger(zap.NewNop()),
	)
	t.Cleanup(func() { s.Close() })
	return s
}

func loadManifest(t *testing.T) *Manifest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "kappa.yaml"))
	require.NoError(t, err)
	m, err := ParseManifest(data)
	require.NoError(t, err)
	return m
}

func TestParseManifestYAML(t *testing.T) {
	m := loadManifest(t)
	require.Len(t, m.Runs, 1)
	require.Len(t, m.Assets, 4)
	require.Len(t, m.Edges, 4)
	assert.Equal(t, "phonon-bte", m.Runs[0].Kind)
	assert.Equal(t, "2.4.0", m.Runs[0].RunnerVersion)
	assert.Equal(t, "configures", m.Edges[2].Relation)
}

func TestParseManifestJSON(t *testing.T) {
	m, err := ParseManifest([]byte(`{"assets":[{"name":"p","type":"Params","payload":{"mesh":8}}]}`))
	require.NoError(t, err)
	require.Len(t, m.Assets, 1)

	payload, err := manifestPayload(m.Assets[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"mesh": ir.Int(8)}, payload)
}

func TestParseManifestInvalid(t *testing.T) {
	_, err := ParseManifest([]byte("runs: [unterminated"))
	assert.Error(t, err)
}

func TestIngestRecordsComputation(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()

	res, err := Ingest(ctx, s, loadManifest(t))
	require.NoError(t, err)

	assert.Equal(t, "run_0001", res.Runs["bte"])
	assert.Equal(t, []int64{1, 2, 3, 4}, res.Seqs)
	assert.Equal(t,
		ir.MustIdentify(ir.AssetResults, ir.Object{
			"kappa_W_mK":    ir.Array{ir.Float(148.5)},
			"temperature_K": ir.Int(300),
		}),
		res.Assets["kappa"])

	run, err := s.GetRun("run_0001")
	require.NoError(t, err)
	assert.Equal(t, ir.RunDone, run.Status)

	chain, err := s.ExplainChain(ctx, res.Assets["kappa"])
	require.NoError(t, err)
	require.NotEmpty(t, chain)
	assert.Equal(t, ir.RelProduces, chain[len(chain)-1].Relation)
}

func TestIngestResolvesStoredIDs(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()

	sys, err := s.PutAsset(ctx, ir.AssetSystem, testutil.SiliconSystem())
	require.NoError(t, err)

	res, err := Ingest(ctx, s, &Manifest{
		Runs: []ManifestRun{{Name: "relax", Kind: "relax", Status: "running"}},
		Assets: []ManifestAsset{
			{Name: "relaxed", Type: "System", Payload: map[string]any{"formula": "Si2", "relaxed": true}},
		},
		Edges: []ManifestEdge{
			{Src: sys, Relation: "USES", Dst: "relax", Run: "relax"},
			{Src: "relax", Relation: "PRODUCES", Dst: "relaxed", Run: "relax"},
		},
	})
	require.NoError(t, err)

	run, err := s.GetRun(res.Runs["relax"])
	require.NoError(t, err)
	assert.Equal(t, ir.RunRunning, run.Status)

	anc, err := s.Ancestors(ctx, res.Assets["relaxed"])
	require.NoError(t, err)
	require.Len(t, anc, 1)
	assert.Equal(t, sys, anc[0].ID)
}

func TestIngestValidatesBeforeWriting(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		code     ir.ErrorCode
	}{
		{
			name:     "unnamed run",
			manifest: Manifest{Runs: []ManifestRun{{Kind: "relax"}}},
			code:     ir.ErrCodeEncoding,
		},
		{
			name:     "duplicate asset name",
			manifest: Manifest{Assets: []ManifestAsset{{Name: "a", Type: "Params"}, {Name: "a", Type: "Params"}}},
			code:     ir.ErrCodeEncoding,
		},
		{
			name:     "unknown asset type",
			manifest: Manifest{Assets: []ManifestAsset{{Name: "a", Type: "Image"}}},
			code:     ir.ErrCodeEncoding,
		},
		{
			name:     "unknown run status",
			manifest: Manifest{Runs: []ManifestRun{{Name: "r", Kind: "relax", Status: "paused"}}},
			code:     ir.ErrCodeEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newIngestStore(t)
			_, err := Ingest(context.Background(), s, &tt.manifest)
			require.Error(t, err)
			assert.Equal(t, tt.code, ir.CodeOf(err))

			stats := s.Stats()
			assert.Zero(t, stats.Assets)
			assert.Zero(t, stats.Runs)
		})
	}
}

func TestIngestEdgeFailureLeavesLedgerEmpty(t *testing.T) {
	s := newIngestStore(t)
	ctx := context.Background()

	m := loadManifest(t)
	m.Edges = append(m.Edges, ManifestEdge{Src: "kappa", Relation: "DERIVES", Dst: "nowhere", Run: "bte"})

	_, err := Ingest(ctx, s, m)
	require.Error(t, err)
	assert.True(t, ir.IsDanglingReference(err))
	assert.Zero(t, s.Stats().Edges)

	_, err = Ingest(ctx, s, &Manifest{Edges: []ManifestEdge{{Src: "a", Relation: "OWNS", Dst: "b", Run: "r"}}})
	assert.Equal(t, ir.ErrCodeUnknownRelation, ir.CodeOf(err))
}
