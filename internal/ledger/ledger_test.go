package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/testutil"
)

// nodes is a fixed Resolver for tests.
type nodes map[string]bool

func (n nodes) Exists(id string) bool { return n[id] }

var (
	sysID = ir.MustIdentify(ir.AssetSystem, testutil.SiliconSystem())
	resID = ir.MustIdentify(ir.AssetResults, testutil.KappaResults())
	parID = ir.MustIdentify(ir.AssetParams, testutil.BTEParams())
)

func newTestLedger(opts ...Option) *Ledger {
	assets := nodes{sysID: true, resID: true, parID: true}
	runs := nodes{"run_1": true, "run_2": true}
	clock := testutil.NewStepClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(assets, runs, opts...)
}

func TestAppendAssignsIncreasingSeq(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	s1, err := l.Append(ctx, ir.EdgeInput{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"})
	require.NoError(t, err)
	s2, err := l.Append(ctx, ir.EdgeInput{SrcID: "run_1", DstID: resID, Relation: ir.RelProduces, RunID: "run_1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), s1)
	assert.Equal(t, int64(2), s2)
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, int64(2), l.Head())

	e, ok := l.Get(2)
	require.True(t, ok)
	assert.Equal(t, resID, e.DstID)
	assert.Equal(t, testutil.Epoch.Add(time.Second), e.Timestamp)
}

func TestAppendRejectsUnknownRelation(t *testing.T) {
	l := newTestLedger()

	_, err := l.Append(context.Background(), ir.EdgeInput{SrcID: sysID, DstID: resID, Relation: "CAUSES", RunID: "run_1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ir.ErrUnknownRelation)
	assert.Equal(t, 0, l.Len())
}

func TestAppendNormalizesRelationCase(t *testing.T) {
	var committed []ir.Edge
	l := newTestLedger(WithCommitHook(func(edges []ir.Edge) { committed = append(committed, edges...) }))

	seqs, err := l.AppendMany(context.Background(), []ir.EdgeInput{
		{SrcID: sysID, DstID: "run_1", Relation: "uses", RunID: "run_1"},
		{SrcID: "run_1", DstID: resID, Relation: "Produces", RunID: "run_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seqs)

	e, ok := l.Get(1)
	require.True(t, ok)
	assert.Equal(t, ir.RelUses, e.Relation)
	require.Len(t, committed, 2)
	assert.Equal(t, ir.RelProduces, committed[1].Relation)
	assert.Len(t, l.View().ByRelation(ir.RelProduces), 1)
}

func TestAppendRejectsDanglingReferences(t *testing.T) {
	tests := []struct {
		name  string
		in    ir.EdgeInput
		field string
	}{
		{"unknown dst", ir.EdgeInput{SrcID: sysID, DstID: "rs_never_put", Relation: ir.RelDerives, RunID: "run_1"}, "dst_id"},
		{"unknown src", ir.EdgeInput{SrcID: "sy_nope", DstID: resID, Relation: ir.RelDerives, RunID: "run_1"}, "src_id"},
		{"empty src", ir.EdgeInput{DstID: resID, Relation: ir.RelDerives, RunID: "run_1"}, "src_id"},
		{"unknown run", ir.EdgeInput{SrcID: sysID, DstID: resID, Relation: ir.RelDerives, RunID: "run_9"}, "run_id"},
		{"empty run", ir.EdgeInput{SrcID: sysID, DstID: resID, Relation: ir.RelDerives}, "run_id"},
		{"asset as run", ir.EdgeInput{SrcID: sysID, DstID: resID, Relation: ir.RelDerives, RunID: sysID}, "run_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger()
			_, err := l.Append(context.Background(), tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ir.ErrDanglingReference)
			assert.Contains(t, err.Error(), tt.field)
			assert.Equal(t, 0, l.Len())
		})
	}
}

func TestAppendManyAllOrNothing(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.AppendMany(ctx, []ir.EdgeInput{
		{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
		{SrcID: parID, DstID: "run_1", Relation: ir.RelConfigures, RunID: "run_1"},
		{SrcID: "run_1", DstID: "rs_missing", Relation: ir.RelProduces, RunID: "run_1"},
		{SrcID: "run_1", DstID: resID, Relation: ir.RelProduces, RunID: "run_1"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ir.ErrDanglingReference)
	assert.Contains(t, err.Error(), "edge 2")
	assert.Equal(t, 0, l.Len())

	// The clock did not move: the next commit starts at 1.
	seqs, err := l.AppendMany(ctx, []ir.EdgeInput{
		{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
		{SrcID: "run_1", DstID: resID, Relation: ir.RelProduces, RunID: "run_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestAppendManyEmpty(t *testing.T) {
	l := newTestLedger()
	seqs, err := l.AppendMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, seqs)
}

func TestAppendTimeout(t *testing.T) {
	l := newTestLedger(WithAppendTimeout(20 * time.Millisecond))

	// Hold the slot so the append cannot get in.
	require.NoError(t, l.slot.Acquire(context.Background(), 1))
	defer l.slot.Release(1)

	_, err := l.Append(context.Background(), ir.EdgeInput{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ir.ErrAppendTimeout)
	assert.True(t, ir.Retryable(err))
	assert.Equal(t, 0, l.Len())
}

func TestAppendCallerCancel(t *testing.T) {
	l := newTestLedger(WithAppendTimeout(time.Minute))

	require.NoError(t, l.slot.Acquire(context.Background(), 1))
	defer l.slot.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Append(ctx, ir.EdgeInput{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ir.ErrAppendTimeout)
	assert.Equal(t, 0, l.Len())
}

func TestConcurrentAppendsAreGapless(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	const writers = 16
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := l.AppendMany(ctx, []ir.EdgeInput{
					{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
					{SrcID: "run_1", DstID: resID, Relation: ir.RelProduces, RunID: "run_1"},
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	edges := l.Edges()
	require.Len(t, edges, writers*perWriter*2)
	for i, e := range edges {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	// Batches stay contiguous.
	for i := 0; i < len(edges); i += 2 {
		assert.Equal(t, ir.RelUses, edges[i].Relation)
		assert.Equal(t, ir.RelProduces, edges[i+1].Relation)
	}
}

func TestViewIsPrefixConsistent(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Append(ctx, ir.EdgeInput{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"})
	require.NoError(t, err)

	v := l.View()

	_, err = l.Append(ctx, ir.EdgeInput{SrcID: sysID, DstID: "run_2", Relation: ir.RelUses, RunID: "run_2"})
	require.NoError(t, err)

	assert.Equal(t, 1, v.Len())
	assert.Equal(t, int64(1), v.Head())
	assert.Equal(t, []int{0}, v.BySrc(sysID))
	assert.Empty(t, v.ByRun("run_2"))

	now := l.View()
	assert.Equal(t, []int{0, 1}, now.BySrc(sysID))
	assert.Equal(t, []int{1}, now.ByRun("run_2"))
}

func TestIndicesMatchLog(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.AppendMany(ctx, []ir.EdgeInput{
		{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
		{SrcID: parID, DstID: "run_1", Relation: ir.RelConfigures, RunID: "run_1"},
		{SrcID: "run_1", DstID: resID, Relation: ir.RelProduces, RunID: "run_1"},
		{SrcID: sysID, DstID: resID, Relation: ir.RelDerives, RunID: "run_2"},
	})
	require.NoError(t, err)

	v := l.View()
	assert.Equal(t, []int{0, 3}, v.BySrc(sysID))
	assert.Equal(t, []int{0, 1}, v.ByDst("run_1"))
	assert.Equal(t, []int{2, 3}, v.ByDst(resID))
	assert.Equal(t, []int{0, 1, 2}, v.ByRun("run_1"))
	assert.Equal(t, []int{3}, v.ByRelation(ir.RelDerives))

	before := [][]int{v.BySrc(sysID), v.ByDst(resID), v.ByRun("run_1"), v.ByRelation(ir.RelUses)}
	l.Rebuild()
	v = l.View()
	after := [][]int{v.BySrc(sysID), v.ByDst(resID), v.ByRun("run_1"), v.ByRelation(ir.RelUses)}
	assert.Equal(t, before, after)
}

func TestCommitHookOrder(t *testing.T) {
	var got []int64
	l := newTestLedger(WithCommitHook(func(committed []ir.Edge) {
		for _, e := range committed {
			got = append(got, e.Seq)
		}
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, ir.EdgeInput{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"})
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestRestore(t *testing.T) {
	src := newTestLedger()
	ctx := context.Background()
	_, err := src.AppendMany(ctx, []ir.EdgeInput{
		{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
		{SrcID: "run_1", DstID: resID, Relation: ir.RelProduces, RunID: "run_1"},
	})
	require.NoError(t, err)

	dst := newTestLedger()
	require.NoError(t, dst.Restore(src.Edges()))
	assert.Equal(t, src.Edges(), dst.Edges())
	assert.Equal(t, []int{1}, dst.View().ByDst(resID))

	seq, err := dst.Append(ctx, ir.EdgeInput{SrcID: sysID, DstID: resID, Relation: ir.RelDerives, RunID: "run_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)
}

func TestRestoreRejectsDisorder(t *testing.T) {
	l := newTestLedger()
	err := l.Restore([]ir.Edge{
		{Seq: 2, SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
		{Seq: 2, SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"},
	})
	assert.ErrorIs(t, err, ir.ErrEncoding)

	err = l.Restore([]ir.Edge{{Seq: 1, Relation: "CAUSES"}})
	assert.ErrorIs(t, err, ir.ErrUnknownRelation)
	assert.Equal(t, 0, l.Len())
}

func TestWaitObserver(t *testing.T) {
	var waits int
	l := newTestLedger(WithWaitObserver(func(time.Duration) { waits++ }))
	_, err := l.Append(context.Background(), ir.EdgeInput{SrcID: sysID, DstID: "run_1", Relation: ir.RelUses, RunID: "run_1"})
	require.NoError(t, err)
	assert.Equal(t, 1, waits)
}

func TestPropertyLedgerOnlyGrows(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := newTestLedger()
		ctx := context.Background()
		ids := []string{sysID, resID, parID, "run_1", "rs_dangling"}
		rels := append([]ir.Relation{"BOGUS"}, ir.Relations...)

		var snapshot []ir.Edge
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			in := ir.EdgeInput{
				SrcID:    rapid.SampledFrom(ids).Draw(rt, fmt.Sprintf("src%d", i)),
				DstID:    rapid.SampledFrom(ids).Draw(rt, fmt.Sprintf("dst%d", i)),
				Relation: rapid.SampledFrom(rels).Draw(rt, fmt.Sprintf("rel%d", i)),
				RunID:    rapid.SampledFrom([]string{"run_1", "run_2", "run_x"}).Draw(rt, fmt.Sprintf("run%d", i)),
			}
			before := l.Len()
			_, err := l.Append(ctx, in)
			if err != nil && l.Len() != before {
				rt.Fatalf("rejected append changed length %d -> %d", before, l.Len())
			}

			edges := l.Edges()
			for j := range snapshot {
				if edges[j] != snapshot[j] {
					rt.Fatalf("edge %d changed after commit", j)
				}
			}
			for j := 1; j < len(edges); j++ {
				if edges[j].Seq <= edges[j-1].Seq {
					rt.Fatalf("seq not increasing at %d", j)
				}
			}
			snapshot = edges
		}
	})
}
