package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mcg/internal/ir"
)

// recordingWriter captures batches and can be told to fail.
type recordingWriter struct {
	mu      sync.Mutex
	batches []Batch
	fail    atomic.Int32 // remaining failures; -1 fails forever
	calls   atomic.Int32
	gate    chan struct{}
}

func (w *recordingWriter) WriteBatch(_ context.Context, b Batch) error {
	w.calls.Add(1)
	if w.gate != nil {
		<-w.gate
	}
	switch n := w.fail.Load(); {
	case n < 0:
		return errors.New("disk full")
	case n > 0:
		w.fail.Add(-1)
		return errors.New("database is locked")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, b)
	return nil
}

func (w *recordingWriter) edgeSeqs() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var seqs []int64
	for _, b := range w.batches {
		for _, e := range b.Edges {
			seqs = append(seqs, e.Seq)
		}
	}
	return seqs
}

func fastRetries() JournalOption {
	return WithRetries(2, time.Millisecond)
}

func TestJournal_FlushWritesEverything(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, fastRetries())
	defer j.Close()

	sc := newScenario(t)
	j.EnqueueAssets([]ir.Asset{sc.system, sc.method})
	j.EnqueueRun(sc.run)
	j.EnqueueEdges(sc.edges)

	require.NoError(t, j.Flush(context.Background()))
	assert.Equal(t, 0, j.Pending())
	assert.Equal(t, []int64{1, 2, 3, 4}, w.edgeSeqs())
}

func TestJournal_PreservesEnqueueOrder(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, fastRetries())
	defer j.Close()

	for seq := int64(1); seq <= 200; seq++ {
		j.EnqueueEdges([]ir.Edge{testEdge(seq, "a", "b", ir.RelUses, "r")})
	}
	require.NoError(t, j.Flush(context.Background()))

	seqs := w.edgeSeqs()
	require.Len(t, seqs, 200)
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}
}

func TestJournal_RetriesTransientFailure(t *testing.T) {
	w := &recordingWriter{}
	w.fail.Store(2)
	j := NewJournal(w, fastRetries())
	defer j.Close()

	j.EnqueueEdges([]ir.Edge{testEdge(1, "a", "b", ir.RelUses, "r")})
	require.NoError(t, j.Flush(context.Background()))
	assert.Equal(t, []int64{1}, w.edgeSeqs())
	assert.Equal(t, int32(3), w.calls.Load())
}

func TestJournal_StickyFailure(t *testing.T) {
	w := &recordingWriter{}
	w.fail.Store(-1)

	var failures atomic.Int32
	j := NewJournal(w, fastRetries(), WithFailureObserver(func(error) { failures.Add(1) }))
	defer j.Close()

	j.EnqueueEdges([]ir.Edge{testEdge(1, "a", "b", ir.RelUses, "r")})
	err := j.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(1), failures.Load())

	// Later records are dropped; the durable state stays a prefix.
	w.fail.Store(0)
	j.EnqueueEdges([]ir.Edge{testEdge(2, "a", "b", ir.RelUses, "r")})
	require.Error(t, j.Flush(context.Background()))
	assert.Empty(t, w.edgeSeqs())
	assert.Equal(t, 0, j.Pending())
}

func TestJournal_FlushHonorsContext(t *testing.T) {
	w := &recordingWriter{gate: make(chan struct{})}
	j := NewJournal(w, fastRetries())

	j.EnqueueEdges([]ir.Edge{testEdge(1, "a", "b", ir.RelUses, "r")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, j.Flush(ctx), context.DeadlineExceeded)

	close(w.gate)
	require.NoError(t, j.Close())
	assert.Equal(t, []int64{1}, w.edgeSeqs())
}

func TestJournal_CloseDrainsAndRejects(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w, fastRetries())

	j.EnqueueEdges([]ir.Edge{testEdge(1, "a", "b", ir.RelUses, "r")})
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.Equal(t, []int64{1}, w.edgeSeqs())

	j.EnqueueEdges([]ir.Edge{testEdge(2, "a", "b", ir.RelUses, "r")})
	assert.Equal(t, 0, j.Pending())
	assert.Equal(t, []int64{1}, w.edgeSeqs())
}

func TestJournal_DepthObserver(t *testing.T) {
	w := &recordingWriter{}
	var mu sync.Mutex
	var depths []int
	j := NewJournal(w, fastRetries(), WithDepthObserver(func(n int) {
		mu.Lock()
		depths = append(depths, n)
		mu.Unlock()
	}))

	j.EnqueueEdges([]ir.Edge{testEdge(1, "a", "b", ir.RelUses, "r")})
	require.NoError(t, j.Close())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, depths)
	assert.Equal(t, 1, depths[0])
	assert.Equal(t, 0, depths[len(depths)-1])
}

func TestJournal_EmptyEnqueueIsNoop(t *testing.T) {
	w := &recordingWriter{}
	j := NewJournal(w)
	defer j.Close()

	j.EnqueueAssets(nil)
	j.EnqueueEdges([]ir.Edge{})
	require.NoError(t, j.Flush(context.Background()))
	assert.Equal(t, int32(0), w.calls.Load())
}

func TestJournal_WithStore(t *testing.T) {
	s := createTestStore(t)
	j := NewJournal(s, fastRetries())
	defer j.Close()

	sc := newScenario(t)
	j.EnqueueAssets(sc.batch().Assets)
	j.EnqueueRun(sc.run)
	j.EnqueueEdges(sc.edges)
	require.NoError(t, j.Flush(context.Background()))

	assets, runs, edges, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, assets)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 4, edges)
}
