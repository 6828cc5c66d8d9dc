package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/mcg/internal/ir"
)

// EdgeQuery selects persisted edges. Zero fields match everything; set
// fields combine with AND.
type EdgeQuery struct {
	// Node matches edges whose src or dst is this id.
	Node     string
	Run      string
	Relation ir.Relation
	// SinceSeq keeps edges with seq strictly greater than this.
	SinceSeq int64
	// Limit caps the result; 0 is unbounded.
	Limit int
}

// compile renders q as parameterized SQL. Values are always bound, never
// interpolated, and the result is always ordered by seq.
func (q EdgeQuery) compile() (string, []any, error) {
	if q.Limit < 0 {
		return "", nil, ir.NewEncodingError(fmt.Sprintf("limit must not be negative, got %d", q.Limit), nil)
	}
	if q.Relation != "" && !q.Relation.Valid() {
		return "", nil, ir.NewUnknownRelation(string(q.Relation))
	}

	var (
		preds  []string
		params []any
	)
	if q.SinceSeq > 0 {
		preds = append(preds, "seq > ?")
		params = append(params, q.SinceSeq)
	}
	if q.Node != "" {
		preds = append(preds, "(src_id = ? OR dst_id = ?)")
		params = append(params, q.Node, q.Node)
	}
	if q.Run != "" {
		preds = append(preds, "run_id = ?")
		params = append(params, q.Run)
	}
	if q.Relation != "" {
		preds = append(preds, "relation = ?")
		params = append(params, string(q.Relation))
	}

	var b strings.Builder
	b.WriteString("SELECT seq, src_id, dst_id, relation, run_id, timestamp FROM edges")
	if len(preds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(preds, " AND "))
	}
	b.WriteString(" ORDER BY seq ASC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}

// QueryEdges returns the persisted edges matching q, ascending by seq.
func (s *Store) QueryEdges(ctx context.Context, q EdgeQuery) ([]ir.Edge, error) {
	query, params, err := q.compile()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	edges := []ir.Edge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return edges, nil
}

func scanEdge(row scanner) (ir.Edge, error) {
	var (
		e            ir.Edge
		relation, ts string
	)
	if err := row.Scan(&e.Seq, &e.SrcID, &e.DstID, &relation, &e.RunID, &ts); err != nil {
		return ir.Edge{}, fmt.Errorf("scan edge: %w", err)
	}
	e.Relation = ir.Relation(relation)
	var err error
	if e.Timestamp, err = parseTime(ts); err != nil {
		return ir.Edge{}, fmt.Errorf("edge %d: %w", e.Seq, err)
	}
	return e, nil
}
