package ledger

import (
	"sort"

	"github.com/roach88/mcg/internal/ir"
)

// View is an immutable prefix of the ledger. Appends after the view was
// taken are invisible to it, so iterating a View twice yields the same
// edges in the same order.
type View struct {
	ledger *Ledger
	edges  []ir.Edge
}

// Len returns the number of edges in the view.
func (v View) Len() int {
	return len(v.edges)
}

// Head returns the seq of the last edge in the view, or 0.
func (v View) Head() int64 {
	if len(v.edges) == 0 {
		return 0
	}
	return v.edges[len(v.edges)-1].Seq
}

// At returns the edge at log position pos.
func (v View) At(pos int) ir.Edge {
	return v.edges[pos]
}

// Get returns the edge with seq.
func (v View) Get(seq int64) (ir.Edge, bool) {
	pos := v.SeekAfter(seq - 1)
	if pos < len(v.edges) && v.edges[pos].Seq == seq {
		return v.edges[pos], true
	}
	return ir.Edge{}, false
}

// SeekAfter returns the first log position whose seq is greater than seq.
func (v View) SeekAfter(seq int64) int {
	return sort.Search(len(v.edges), func(i int) bool { return v.edges[i].Seq > seq })
}

// BySrc returns log positions of edges leaving id, ascending.
func (v View) BySrc(id string) []int {
	if v.ledger == nil {
		return nil
	}
	return v.ledger.positions(func() []int { return v.ledger.bySrc[id] }, len(v.edges))
}

// ByDst returns log positions of edges entering id, ascending.
func (v View) ByDst(id string) []int {
	if v.ledger == nil {
		return nil
	}
	return v.ledger.positions(func() []int { return v.ledger.byDst[id] }, len(v.edges))
}

// ByRun returns log positions of edges recorded under run id, ascending.
func (v View) ByRun(id string) []int {
	if v.ledger == nil {
		return nil
	}
	return v.ledger.positions(func() []int { return v.ledger.byRun[id] }, len(v.edges))
}

// ByRelation returns log positions of edges with rel, ascending.
func (v View) ByRelation(rel ir.Relation) []int {
	if v.ledger == nil {
		return nil
	}
	return v.ledger.positions(func() []int { return v.ledger.byRel[rel] }, len(v.edges))
}
