package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/mcg/internal/ir"
)

// Batch groups records committed in memory that must reach disk together.
type Batch struct {
	Assets []ir.Asset
	Runs   []ir.Run
	Edges  []ir.Edge
}

// Empty reports whether the batch carries nothing.
func (b Batch) Empty() bool {
	return len(b.Assets) == 0 && len(b.Runs) == 0 && len(b.Edges) == 0
}

// Size is the total number of records in the batch.
func (b Batch) Size() int {
	return len(b.Assets) + len(b.Runs) + len(b.Edges)
}

// execer is the subset of *sql.DB and *sql.Tx used by writers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteBatch persists a batch in one transaction: assets, then runs, then
// edges. Either every record lands or none does.
func (s *Store) WriteBatch(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := writeAssets(ctx, tx, b.Assets); err != nil {
		return err
	}
	if err := writeRuns(ctx, tx, b.Runs); err != nil {
		return err
	}
	if err := appendEdges(ctx, tx, b.Edges); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// WriteAssets persists assets. Re-writing an existing id is a no-op:
// content addressing guarantees the stored payload is the same.
func (s *Store) WriteAssets(ctx context.Context, assets []ir.Asset) error {
	return s.WriteBatch(ctx, Batch{Assets: assets})
}

// WriteRuns persists runs, updating status and end time of existing rows.
func (s *Store) WriteRuns(ctx context.Context, runs []ir.Run) error {
	return s.WriteBatch(ctx, Batch{Runs: runs})
}

// AppendEdges persists edges. A seq already on disk is an error: the log
// is append-only.
func (s *Store) AppendEdges(ctx context.Context, edges []ir.Edge) error {
	return s.WriteBatch(ctx, Batch{Edges: edges})
}

func writeAssets(ctx context.Context, db execer, assets []ir.Asset) error {
	for _, a := range assets {
		payload, err := marshalPayload(a.Payload)
		if err != nil {
			return fmt.Errorf("write asset %s: %w", a.ID, err)
		}
		_, err = db.ExecContext(ctx, `
			INSERT INTO assets (id, type, payload, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, a.ID, string(a.Type), payload, formatTime(a.CreatedAt))
		if err != nil {
			return fmt.Errorf("write asset %s: %w", a.ID, err)
		}
	}
	return nil
}

func writeRuns(ctx context.Context, db execer, runs []ir.Run) error {
	for _, r := range runs {
		_, err := db.ExecContext(ctx, `
			INSERT INTO runs (id, kind, status, runner_version, started_at, ended_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				ended_at = excluded.ended_at
		`, r.ID, r.Kind, string(r.Status), r.RunnerVersion, formatTime(r.StartedAt), formatNullTime(r.EndedAt))
		if err != nil {
			return fmt.Errorf("write run %s: %w", r.ID, err)
		}
	}
	return nil
}

func appendEdges(ctx context.Context, db execer, edges []ir.Edge) error {
	for _, e := range edges {
		_, err := db.ExecContext(ctx, `
			INSERT INTO edges (seq, src_id, dst_id, relation, run_id, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.Seq, e.SrcID, e.DstID, string(e.Relation), e.RunID, formatTime(e.Timestamp))
		if err != nil {
			return fmt.Errorf("append edge %d: %w", e.Seq, err)
		}
	}
	return nil
}
