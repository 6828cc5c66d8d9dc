package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/mcg/internal/ir"
)

// DefaultAppendTimeout bounds how long an append waits for the ledger tail.
const DefaultAppendTimeout = 5 * time.Second

// Resolver answers existence checks for edge endpoints.
// Implemented by *assets.Store and *runs.Registry.
type Resolver interface {
	Exists(id string) bool
}

// CommitHook receives committed edges while the append slot is held.
// It must not block on I/O.
type CommitHook func(committed []ir.Edge)

// Ledger is the append-only edge log.
//
// Thread-safety: all methods are safe for concurrent use.
type Ledger struct {
	// slot serializes writers; acquiring it is the bounded wait that can
	// time out.
	slot *semaphore.Weighted

	// mu guards the log header and index maps for readers. Writers hold
	// it only while publishing an already-built batch.
	mu    sync.RWMutex
	log   []ir.Edge
	bySrc map[string][]int
	byDst map[string][]int
	byRun map[string][]int
	byRel map[ir.Relation][]int

	clock   *Clock
	assets  Resolver
	runs    Resolver
	now     func() time.Time
	timeout time.Duration

	onCommit CommitHook
	onWait   func(time.Duration)
	logger   *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the wall clock used for edge timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithAppendTimeout bounds lock acquisition. Zero or negative waits only on
// the caller's context.
func WithAppendTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.timeout = d }
}

// WithCommitHook registers the commit hook.
func WithCommitHook(h CommitHook) Option {
	return func(l *Ledger) { l.onCommit = h }
}

// WithWaitObserver receives how long each append waited for the slot.
func WithWaitObserver(f func(time.Duration)) Option {
	return func(l *Ledger) { l.onWait = f }
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Ledger) { l.logger = lg }
}

// New creates an empty ledger. Edge endpoints resolve against assets or
// runs; run ids resolve against runs only.
func New(assets, runs Resolver, opts ...Option) *Ledger {
	l := &Ledger{
		slot:    semaphore.NewWeighted(1),
		bySrc:   make(map[string][]int),
		byDst:   make(map[string][]int),
		byRun:   make(map[string][]int),
		byRel:   make(map[ir.Relation][]int),
		clock:   NewClock(),
		assets:  assets,
		runs:    runs,
		now:     time.Now,
		timeout: DefaultAppendTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "ledger"))
	return l
}

// Append validates and commits one edge, returning its seq.
func (l *Ledger) Append(ctx context.Context, in ir.EdgeInput) (int64, error) {
	seqs, err := l.AppendMany(ctx, []ir.EdgeInput{in})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendMany validates every edge, then commits all of them with
// consecutive seqs, or none.
//
// Failure modes, all with no effect on the ledger:
//   - UnknownRelation / DanglingReference from validation
//   - ConcurrentAppendTimeout if the slot is not acquired in time
//   - ctx.Err() if the caller gave up first
func (l *Ledger) AppendMany(ctx context.Context, inputs []ir.EdgeInput) ([]int64, error) {
	checked := make([]ir.EdgeInput, len(inputs))
	for i, in := range inputs {
		valid, err := l.validate(in)
		if err != nil {
			if len(inputs) > 1 {
				return nil, fmt.Errorf("edge %d: %w", i, err)
			}
			return nil, err
		}
		checked[i] = valid
	}
	inputs = checked
	if len(inputs) == 0 {
		return []int64{}, nil
	}

	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.slot.Release(1)

	// Last chance to abandon: past this point the batch is committed.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts := l.now()
	batch := make([]ir.Edge, len(inputs))
	seqs := make([]int64, len(inputs))
	for i, in := range inputs {
		seq := l.clock.Next()
		batch[i] = ir.Edge{
			Seq:       seq,
			SrcID:     in.SrcID,
			DstID:     in.DstID,
			Relation:  in.Relation,
			RunID:     in.RunID,
			Timestamp: ts,
		}
		seqs[i] = seq
	}

	l.mu.Lock()
	l.publish(batch)
	l.mu.Unlock()

	l.logger.Debug("edges appended",
		zap.Int("count", len(batch)),
		zap.Int64("first_seq", seqs[0]),
		zap.Int64("last_seq", seqs[len(seqs)-1]))

	if l.onCommit != nil {
		out := make([]ir.Edge, len(batch))
		copy(out, batch)
		l.onCommit(out)
	}
	return seqs, nil
}

// validate checks an edge and returns it with the relation in its
// canonical upper-case spelling. Relations match case-insensitively, the
// same as in ledger filters.
func (l *Ledger) validate(in ir.EdgeInput) (ir.EdgeInput, error) {
	rel, err := ir.ParseRelation(string(in.Relation))
	if err != nil {
		return in, err
	}
	in.Relation = rel
	if !l.isNode(in.SrcID) {
		return in, ir.NewDanglingReference("src_id", in.SrcID)
	}
	if !l.isNode(in.DstID) {
		return in, ir.NewDanglingReference("dst_id", in.DstID)
	}
	if in.RunID == "" || !l.runs.Exists(in.RunID) {
		return in, ir.NewDanglingReference("run_id", in.RunID)
	}
	return in, nil
}

func (l *Ledger) isNode(id string) bool {
	if id == "" {
		return false
	}
	return l.assets.Exists(id) || l.runs.Exists(id)
}

// acquire claims the append slot within the configured bound.
func (l *Ledger) acquire(ctx context.Context) error {
	start := time.Now()
	actx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	err := l.slot.Acquire(actx, 1)
	if l.onWait != nil {
		l.onWait(time.Since(start))
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		l.logger.Warn("append slot timeout", zap.Duration("bound", l.timeout))
		return ir.NewAppendTimeout(l.timeout)
	}
	return err
}

// publish appends edges and their index entries. Caller holds mu.
func (l *Ledger) publish(edges []ir.Edge) {
	for _, e := range edges {
		pos := len(l.log)
		l.log = append(l.log, e)
		l.bySrc[e.SrcID] = append(l.bySrc[e.SrcID], pos)
		l.byDst[e.DstID] = append(l.byDst[e.DstID], pos)
		l.byRun[e.RunID] = append(l.byRun[e.RunID], pos)
		l.byRel[e.Relation] = append(l.byRel[e.Relation], pos)
	}
}

// Len returns the number of committed edges.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.log)
}

// Head returns the seq of the last committed edge, or 0 when empty.
func (l *Ledger) Head() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.log) == 0 {
		return 0
	}
	return l.log[len(l.log)-1].Seq
}

// Get returns the edge with seq.
func (l *Ledger) Get(seq int64) (ir.Edge, bool) {
	return l.View().Get(seq)
}

// Edges returns a copy of the whole log in seq order.
func (l *Ledger) Edges() []ir.Edge {
	v := l.View()
	out := make([]ir.Edge, len(v.edges))
	copy(out, v.edges)
	return out
}

// View captures the current prefix of the log.
func (l *Ledger) View() View {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return View{ledger: l, edges: l.log[:len(l.log):len(l.log)]}
}

// Restore replaces the log with persisted edges and rebuilds indices.
// Seqs must be positive and strictly increasing; relations must be valid.
// Referential integrity was checked at original append and is not
// re-checked here (see snapshot.Verify for a full audit).
func (l *Ledger) Restore(edges []ir.Edge) error {
	var prev int64
	for i, e := range edges {
		if e.Seq <= prev {
			return ir.NewEncodingError(fmt.Sprintf("edge %d: seq %d does not follow %d", i, e.Seq, prev), nil)
		}
		if !e.Relation.Valid() {
			return ir.NewUnknownRelation(string(e.Relation))
		}
		prev = e.Seq
	}

	if err := l.slot.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer l.slot.Release(1)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.log = make([]ir.Edge, len(edges))
	copy(l.log, edges)
	l.rebuildLocked()
	l.clock = NewClockAt(prev)

	l.logger.Debug("ledger restored", zap.Int("edges", len(edges)), zap.Int64("head", prev))
	return nil
}

// Rebuild recreates every index from the log.
func (l *Ledger) Rebuild() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebuildLocked()
}

func (l *Ledger) rebuildLocked() {
	l.bySrc = make(map[string][]int)
	l.byDst = make(map[string][]int)
	l.byRun = make(map[string][]int)
	l.byRel = make(map[ir.Relation][]int)
	for pos, e := range l.log {
		l.bySrc[e.SrcID] = append(l.bySrc[e.SrcID], pos)
		l.byDst[e.DstID] = append(l.byDst[e.DstID], pos)
		l.byRun[e.RunID] = append(l.byRun[e.RunID], pos)
		l.byRel[e.Relation] = append(l.byRel[e.Relation], pos)
	}
}

// positions returns the index entries for key that fall inside the first n
// log positions. Entries are ascending, so the prefix is a binary search.
func (l *Ledger) positions(index func() []int, n int) []int {
	l.mu.RLock()
	all := index()
	l.mu.RUnlock()

	k := sort.SearchInts(all, n)
	return all[:k:k]
}
