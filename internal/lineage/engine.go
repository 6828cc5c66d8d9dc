package lineage

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/ledger"
)

// AssetReader is the asset store surface the engine needs.
type AssetReader interface {
	Exists(id string) bool
	GetMany(ctx context.Context, ids []string) ([]ir.Asset, error)
}

// RunReader is the run namespace surface the engine needs.
type RunReader interface {
	Exists(id string) bool
}

// Engine executes lineage queries.
type Engine struct {
	ledger *ledger.Ledger
	assets AssetReader
	runs   RunReader
	logger *zap.Logger
}

// New creates an Engine over the given stores.
func New(l *ledger.Ledger, assets AssetReader, runs RunReader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		ledger: l,
		assets: assets,
		runs:   runs,
		logger: logger.With(zap.String("component", "lineage")),
	}
}

// Filter selects edges. Set fields combine conjunctively; zero values are
// unconstrained.
type Filter struct {
	// ByAsset matches edges whose src or dst is this id (asset or run).
	ByAsset string `json:"by_asset,omitempty"`

	// ByRun matches edges recorded under this run.
	ByRun string `json:"by_run,omitempty"`

	// ByRelation matches edges with this relation.
	ByRelation ir.Relation `json:"by_relation,omitempty"`

	// SinceSeq keeps edges with seq strictly greater than this.
	SinceSeq int64 `json:"since_seq,omitempty"`

	// Limit caps the number of edges; 0 means no cap.
	Limit int `json:"limit,omitempty"`
}

func (f Filter) validate() error {
	if f.Limit < 0 {
		return ir.NewEncodingError(fmt.Sprintf("limit must be >= 0, got %d", f.Limit), nil)
	}
	if f.SinceSeq < 0 {
		return ir.NewEncodingError(fmt.Sprintf("since_seq must be >= 0, got %d", f.SinceSeq), nil)
	}
	if f.ByRelation != "" && !f.ByRelation.Valid() {
		return ir.NewUnknownRelation(string(f.ByRelation))
	}
	return nil
}

func (f Filter) match(e ir.Edge) bool {
	if e.Seq <= f.SinceSeq {
		return false
	}
	if f.ByAsset != "" && e.SrcID != f.ByAsset && e.DstID != f.ByAsset {
		return false
	}
	if f.ByRun != "" && e.RunID != f.ByRun {
		return false
	}
	if f.ByRelation != "" && e.Relation != f.ByRelation {
		return false
	}
	return true
}

// Select returns the edges matching f in ascending seq order.
//
// The sequence is lazy and restartable: it is bound to the ledger prefix
// visible when Select was called, and every range over it yields the same
// edges.
func (e *Engine) Select(ctx context.Context, f Filter) (iter.Seq[ir.Edge], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	view := e.ledger.View()
	candidates := plan(view, f)

	return func(yield func(ir.Edge) bool) {
		n := 0
		emit := func(edge ir.Edge) bool {
			if !f.match(edge) {
				return true
			}
			if !yield(edge) {
				return false
			}
			n++
			return f.Limit == 0 || n < f.Limit
		}

		if candidates == nil {
			for pos := view.SeekAfter(f.SinceSeq); pos < view.Len(); pos++ {
				if !emit(view.At(pos)) {
					return
				}
			}
			return
		}
		for _, pos := range candidates {
			if !emit(view.At(pos)) {
				return
			}
		}
	}, nil
}

// Collect materializes a selection.
func (e *Engine) Collect(ctx context.Context, f Filter) ([]ir.Edge, error) {
	seq, err := e.Select(ctx, f)
	if err != nil {
		return nil, err
	}
	out := []ir.Edge{}
	for edge := range seq {
		out = append(out, edge)
	}
	return out, nil
}

// plan picks the smallest index that covers f, or nil for a log scan.
func plan(view ledger.View, f Filter) []int {
	var best []int
	found := false
	consider := func(positions []int) {
		if !found || len(positions) < len(best) {
			best = positions
			found = true
		}
	}

	if f.ByAsset != "" {
		consider(mergePositions(view.BySrc(f.ByAsset), view.ByDst(f.ByAsset)))
	}
	if f.ByRun != "" {
		consider(view.ByRun(f.ByRun))
	}
	if f.ByRelation != "" {
		consider(view.ByRelation(f.ByRelation))
	}
	if !found {
		return nil
	}
	if best == nil {
		return []int{}
	}
	return best
}

// mergePositions unions two ascending position lists without duplicates.
// An edge whose src and dst are the same id appears in both.
func mergePositions(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// followable reports whether traversal may cross edge.
func (e *Engine) followable(edge ir.Edge) bool {
	if edge.Relation.IsOutput() {
		return true
	}
	return edge.Relation.IsInput() && e.runs.Exists(edge.DstID)
}

func (e *Engine) known(id string) bool {
	return e.assets.Exists(id) || e.runs.Exists(id)
}

// Ancestors returns every asset id was computed from, nearest first.
// Fails with NotFound if id is neither an asset nor a run.
func (e *Engine) Ancestors(ctx context.Context, id string) ([]ir.Asset, error) {
	return e.closure(ctx, id, true)
}

// Descendants returns every asset computed from id, nearest first.
// Fails with NotFound if id is neither an asset nor a run.
func (e *Engine) Descendants(ctx context.Context, id string) ([]ir.Asset, error) {
	return e.closure(ctx, id, false)
}

// closure is a breadth-first walk; within a node, edges are taken in seq
// order, so the result order is deterministic for a given ledger.
func (e *Engine) closure(ctx context.Context, id string, backward bool) ([]ir.Asset, error) {
	if !e.known(id) {
		return nil, ir.NewNotFound(id)
	}

	view := e.ledger.View()
	visited := map[string]bool{id: true}
	queue := []string{id}
	var found []string

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := queue[0]
		queue = queue[1:]

		positions := view.BySrc(node)
		if backward {
			positions = view.ByDst(node)
		}
		for _, pos := range positions {
			edge := view.At(pos)
			if !e.followable(edge) {
				continue
			}
			next := edge.DstID
			if backward {
				next = edge.SrcID
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
			if e.assets.Exists(next) {
				found = append(found, next)
			}
		}
	}

	e.logger.Debug("closure computed",
		zap.String("id", id),
		zap.Bool("backward", backward),
		zap.Int("visited", len(visited)),
		zap.Int("assets", len(found)))

	if len(found) == 0 {
		return []ir.Asset{}, nil
	}
	return e.assets.GetMany(ctx, found)
}

// ExplainChain returns the canonical path that produced id, from its origin
// to id. At each hop the earliest-seq followable edge into the current node
// is taken; the walk stops at a node with no such edge or when it would
// revisit a node.
func (e *Engine) ExplainChain(ctx context.Context, id string) ([]ir.Edge, error) {
	if !e.known(id) {
		return nil, ir.NewNotFound(id)
	}

	view := e.ledger.View()
	visited := map[string]bool{id: true}
	var chain []ir.Edge

	for cur := id; ; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var hop ir.Edge
		ok := false
		for _, pos := range view.ByDst(cur) {
			if edge := view.At(pos); e.followable(edge) {
				hop, ok = edge, true
				break
			}
		}
		if !ok || visited[hop.SrcID] {
			break
		}

		chain = append(chain, hop)
		visited[hop.SrcID] = true
		cur = hop.SrcID
	}

	slices.Reverse(chain)
	if chain == nil {
		chain = []ir.Edge{}
	}
	return chain, nil
}
