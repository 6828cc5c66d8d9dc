package provenance

import (
	"context"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/lineage"
	"github.com/roach88/mcg/internal/snapshot"
	"github.com/roach88/mcg/internal/store"
)

// Filter selects ledger edges. See lineage.Filter.
type Filter = lineage.Filter

// Stats summarizes store contents.
type Stats struct {
	Assets  int   `json:"assets"`
	Runs    int   `json:"runs"`
	Edges   int   `json:"edges"`
	Head    int64 `json:"head"`
	Pending int   `json:"pending"`
	Durable bool  `json:"durable"`
}

// PutAssets stores assets and returns their ids in request order.
// Idempotent per item: resubmitting an equal asset returns the same id and
// changes nothing. Any failure stores nothing.
func (s *Store) PutAssets(ctx context.Context, inputs []ir.AssetInput) ([]string, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	results, err := s.assets.PutMany(ctx, inputs)
	done()
	if err != nil {
		s.metrics.RecordRejected("put_assets", err)
		return nil, err
	}

	ids := make([]string, len(results))
	inserted := 0
	for i, r := range results {
		ids[i] = r.ID
		if r.Inserted {
			inserted++
		}
	}
	s.metrics.RecordAssetsPut(inserted, len(results)-inserted)

	return ids, s.settle(ctx)
}

// PutAsset stores one asset and returns its id.
func (s *Store) PutAsset(ctx context.Context, t ir.AssetType, payload ir.Object) (string, error) {
	ids, err := s.PutAssets(ctx, []ir.AssetInput{{Type: t, Payload: payload}})
	if len(ids) == 0 {
		return "", err
	}
	return ids[0], err
}

// GetAssets returns every requested asset keyed by id, or NotFound naming
// the first missing id. All or nothing.
func (s *Store) GetAssets(ctx context.Context, ids []string) (map[string]ir.Asset, error) {
	found, err := s.assets.GetMany(ctx, ids)
	if err != nil {
		s.metrics.RecordRejected("get_assets", err)
		return nil, err
	}
	out := make(map[string]ir.Asset, len(found))
	for _, a := range found {
		out[a.ID] = a
	}
	return out, nil
}

// GetAsset returns one asset, or NotFound.
func (s *Store) GetAsset(ctx context.Context, id string) (ir.Asset, error) {
	a, err := s.assets.Get(ctx, id)
	if err != nil {
		s.metrics.RecordRejected("get_assets", err)
	}
	return a, err
}

// RegisterRun adds a run to the namespace. An empty id is generated; an
// empty status is queued.
func (s *Store) RegisterRun(ctx context.Context, run ir.Run) (ir.Run, error) {
	done, err := s.enter()
	if err != nil {
		return ir.Run{}, err
	}
	run, err = s.runs.Register(ctx, run)
	done()
	if err != nil {
		s.metrics.RecordRejected("register_run", err)
		return ir.Run{}, err
	}
	s.metrics.RecordRunStatus(run.Status)
	return run, s.settle(ctx)
}

// SetRunStatus moves a run forward: queued -> running -> done|error.
func (s *Store) SetRunStatus(ctx context.Context, id string, status ir.RunStatus) (ir.Run, error) {
	done, err := s.enter()
	if err != nil {
		return ir.Run{}, err
	}
	run, err := s.runs.SetStatus(ctx, id, status)
	done()
	if err != nil {
		s.metrics.RecordRejected("set_run_status", err)
		return ir.Run{}, err
	}
	s.metrics.RecordRunStatus(run.Status)
	return run, s.settle(ctx)
}

// GetRun returns a run, or NotFound.
func (s *Store) GetRun(id string) (ir.Run, error) {
	return s.runs.Get(id)
}

// Runs lists every run by start time.
func (s *Store) Runs() []ir.Run {
	return s.runs.List()
}

// Link appends edges atomically and returns their seqs in input order.
// Every endpoint and run id must already exist.
func (s *Store) Link(ctx context.Context, edges []ir.EdgeInput) ([]int64, error) {
	done, err := s.enter()
	if err != nil {
		return nil, err
	}
	seqs, err := s.ledger.AppendMany(ctx, edges)
	done()
	if err != nil {
		s.metrics.RecordRejected("link", err)
		return nil, err
	}
	s.metrics.RecordEdgesAppended(len(seqs))
	return seqs, s.settle(ctx)
}

// Ledger returns the edges matching f in ascending seq order, bound to the
// ledger prefix visible at the call.
func (s *Store) Ledger(ctx context.Context, f Filter) (iter.Seq[ir.Edge], error) {
	defer s.observe("ledger", time.Now())
	seq, err := s.lineage.Select(ctx, f)
	if err != nil {
		s.metrics.RecordRejected("ledger", err)
	}
	return seq, err
}

// Edges materializes Ledger.
func (s *Store) Edges(ctx context.Context, f Filter) ([]ir.Edge, error) {
	defer s.observe("ledger", time.Now())
	edges, err := s.lineage.Collect(ctx, f)
	if err != nil {
		s.metrics.RecordRejected("ledger", err)
	}
	return edges, err
}

// Ancestors returns every asset id was derived from, nearest first.
// Runs are passed through, never returned.
func (s *Store) Ancestors(ctx context.Context, id string) ([]ir.Asset, error) {
	defer s.observe("ancestors", time.Now())
	out, err := s.lineage.Ancestors(ctx, id)
	if err != nil {
		s.metrics.RecordRejected("ancestors", err)
	}
	return out, err
}

// Descendants returns every asset derived from id, nearest first.
func (s *Store) Descendants(ctx context.Context, id string) ([]ir.Asset, error) {
	defer s.observe("descendants", time.Now())
	out, err := s.lineage.Descendants(ctx, id)
	if err != nil {
		s.metrics.RecordRejected("descendants", err)
	}
	return out, err
}

// ExplainChain returns the edges leading to id, oldest first.
func (s *Store) ExplainChain(ctx context.Context, id string) ([]ir.Edge, error) {
	defer s.observe("explain_chain", time.Now())
	out, err := s.lineage.ExplainChain(ctx, id)
	if err != nil {
		s.metrics.RecordRejected("explain_chain", err)
	}
	return out, err
}

// Explain renders ExplainChain as a provenance narrative.
func (s *Store) Explain(ctx context.Context, id string) (string, error) {
	chain, err := s.ExplainChain(ctx, id)
	if err != nil {
		return "", err
	}
	return lineage.Narrate(id, chain), nil
}

// Snapshot copies the current state. The ledger is read first, so every
// asset and run an included edge references is included too.
func (s *Store) Snapshot(ctx context.Context) (ir.State, error) {
	if err := ctx.Err(); err != nil {
		return ir.State{}, err
	}
	edges := s.ledger.Edges()
	return ir.State{
		Assets: s.assets.All(),
		Runs:   s.runs.List(),
		Edges:  edges,
	}, nil
}

// Import loads a verified snapshot into an empty store. The records are
// written to disk first, then to memory, and are not journaled again.
// Mutations are held off from the emptiness check until the state is in
// place.
func (s *Store) Import(ctx context.Context, st ir.State) error {
	done, err := s.enterExclusive()
	if err != nil {
		return err
	}
	defer done()

	if err := snapshot.Verify(st); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if s.assets.Len() > 0 || s.runs.Len() > 0 || s.ledger.Len() > 0 {
		return fmt.Errorf("import: store is not empty")
	}

	if s.durable != nil {
		if err := s.journal.Flush(ctx); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if err := s.durable.WriteBatch(ctx, store.Batch{Assets: st.Assets, Runs: st.Runs, Edges: st.Edges}); err != nil {
			return fmt.Errorf("import: %w", err)
		}
	}
	if err := s.restore(st); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	s.logger.Info("snapshot imported",
		zap.Int("assets", len(st.Assets)),
		zap.Int("runs", len(st.Runs)),
		zap.Int("edges", len(st.Edges)))
	return nil
}

// Stats reports current counts.
func (s *Store) Stats() Stats {
	st := Stats{
		Assets:  s.assets.Len(),
		Runs:    s.runs.Len(),
		Edges:   s.ledger.Len(),
		Head:    s.ledger.Head(),
		Durable: s.journal != nil,
	}
	if s.journal != nil {
		st.Pending = s.journal.Pending()
	}
	return st
}

func (s *Store) observe(query string, start time.Time) {
	s.metrics.ObserveQuery(query, time.Since(start))
}
