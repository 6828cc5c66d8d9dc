package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mcg/internal/ir"
)

// Load reads the whole durable state for startup replay.
// Assets come back ordered by id, runs by start time, edges by seq.
func (s *Store) Load(ctx context.Context) (ir.State, error) {
	assets, err := s.ReadAssets(ctx)
	if err != nil {
		return ir.State{}, err
	}
	runs, err := s.ReadRuns(ctx)
	if err != nil {
		return ir.State{}, err
	}
	edges, err := s.ReadEdgesSince(ctx, 0)
	if err != nil {
		return ir.State{}, err
	}
	return ir.State{Assets: assets, Runs: runs, Edges: edges}, nil
}

// ReadAsset retrieves one asset by id.
// Returns ir.ErrNotFound if no row exists.
func (s *Store) ReadAsset(ctx context.Context, id string) (ir.Asset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, payload, created_at FROM assets WHERE id = ?
	`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Asset{}, ir.NewNotFound(id)
	}
	if err != nil {
		return ir.Asset{}, fmt.Errorf("query asset: %w", err)
	}
	return a, nil
}

// ReadAssets returns every stored asset ordered by id.
func (s *Store) ReadAssets(ctx context.Context) ([]ir.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, payload, created_at FROM assets ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	defer rows.Close()

	assets := []ir.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}
	return assets, nil
}

// ReadRuns returns every stored run ordered by start time, then id.
func (s *Store) ReadRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, status, runner_version, started_at, ended_at
		FROM runs
		ORDER BY started_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		var (
			r                 ir.Run
			status, startedAt string
			endedAt           sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Kind, &status, &r.RunnerVersion, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = ir.RunStatus(status)
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if r.EndedAt, err = parseNullTime(endedAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadEdgesSince returns edges with seq > after, ascending by seq.
func (s *Store) ReadEdgesSince(ctx context.Context, after int64) ([]ir.Edge, error) {
	return s.QueryEdges(ctx, EdgeQuery{SinceSeq: after})
}

// LastSeq returns the highest persisted edge seq, or 0 for an empty log.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM edges`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

// Counts reports the number of persisted assets, runs and edges.
func (s *Store) Counts(ctx context.Context) (assets, runs, edges int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM assets),
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM edges)
	`).Scan(&assets, &runs, &edges)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("query counts: %w", err)
	}
	return assets, runs, edges, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(row scanner) (ir.Asset, error) {
	var (
		a                       ir.Asset
		typ, payload, createdAt string
	)
	if err := row.Scan(&a.ID, &typ, &payload, &createdAt); err != nil {
		return ir.Asset{}, err
	}
	a.Type = ir.AssetType(typ)
	obj, err := unmarshalPayload(payload)
	if err != nil {
		return ir.Asset{}, fmt.Errorf("asset %s: %w", a.ID, err)
	}
	a.Payload = obj
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return ir.Asset{}, fmt.Errorf("asset %s: %w", a.ID, err)
	}
	return a, nil
}
