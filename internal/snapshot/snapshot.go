package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/mcg/internal/ir"
)

// Header is the first line of every snapshot.
type Header struct {
	Format           string `json:"format"`
	CanonicalVersion string `json:"canonical_version"`
	StoreVersion     string `json:"store_version"`
	Counts           Counts `json:"counts"`
}

// Counts is the number of records of each kind in a snapshot.
type Counts struct {
	Assets int `json:"assets"`
	Runs   int `json:"runs"`
	Edges  int `json:"edges"`
}

// line is one record line. Exactly one field is set.
type line struct {
	Asset *ir.Asset `json:"asset,omitempty"`
	Run   *ir.Run   `json:"run,omitempty"`
	Edge  *ir.Edge  `json:"edge,omitempty"`
}

// maxLine bounds a single record line.
const maxLine = 64 << 20

// Export writes st as a snapshot. Records are written in the order given;
// callers pass assets by id and edges by seq for byte-stable output.
func Export(w io.Writer, st ir.State) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	// Payload bytes must stay canonical.
	enc.SetEscapeHTML(false)

	hdr := Header{
		Format:           ir.SnapshotFormat,
		CanonicalVersion: ir.CanonicalVersion,
		StoreVersion:     ir.StoreVersion,
		Counts:           Counts{Assets: len(st.Assets), Runs: len(st.Runs), Edges: len(st.Edges)},
	}
	if err := enc.Encode(hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range st.Assets {
		if err := enc.Encode(line{Asset: &st.Assets[i]}); err != nil {
			return fmt.Errorf("write asset %s: %w", st.Assets[i].ID, err)
		}
	}
	for i := range st.Runs {
		if err := enc.Encode(line{Run: &st.Runs[i]}); err != nil {
			return fmt.Errorf("write run %s: %w", st.Runs[i].ID, err)
		}
	}
	for i := range st.Edges {
		if err := enc.Encode(line{Edge: &st.Edges[i]}); err != nil {
			return fmt.Errorf("write edge %d: %w", st.Edges[i].Seq, err)
		}
	}
	return bw.Flush()
}

// Import reads a snapshot. It checks the header format and that the record
// counts match; content checks are left to Verify.
func Import(r io.Reader) (ir.State, Header, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var hdr Header
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return ir.State{}, hdr, fmt.Errorf("read header: %w", err)
		}
		return ir.State{}, hdr, ir.NewEncodingError("snapshot is empty", nil)
	}
	if err := json.Unmarshal(sc.Bytes(), &hdr); err != nil {
		return ir.State{}, hdr, ir.NewEncodingError("invalid snapshot header", err)
	}
	if hdr.Format != ir.SnapshotFormat {
		return ir.State{}, hdr, ir.NewEncodingError(fmt.Sprintf("unsupported snapshot format %q", hdr.Format), nil)
	}
	if hdr.CanonicalVersion != ir.CanonicalVersion {
		return ir.State{}, hdr, ir.NewEncodingError(
			fmt.Sprintf("snapshot canonical version %q, want %q", hdr.CanonicalVersion, ir.CanonicalVersion), nil)
	}

	st := ir.State{
		Assets: make([]ir.Asset, 0, hdr.Counts.Assets),
		Runs:   make([]ir.Run, 0, hdr.Counts.Runs),
		Edges:  make([]ir.Edge, 0, hdr.Counts.Edges),
	}
	n := 1
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec line
		if err := json.Unmarshal(raw, &rec); err != nil {
			return ir.State{}, hdr, ir.NewEncodingError(fmt.Sprintf("line %d", n), err)
		}
		switch {
		case rec.Asset != nil:
			st.Assets = append(st.Assets, *rec.Asset)
		case rec.Run != nil:
			st.Runs = append(st.Runs, *rec.Run)
		case rec.Edge != nil:
			st.Edges = append(st.Edges, *rec.Edge)
		default:
			return ir.State{}, hdr, ir.NewEncodingError(fmt.Sprintf("line %d: empty record", n), nil)
		}
	}
	if err := sc.Err(); err != nil {
		return ir.State{}, hdr, fmt.Errorf("read snapshot: %w", err)
	}

	got := Counts{Assets: len(st.Assets), Runs: len(st.Runs), Edges: len(st.Edges)}
	if got != hdr.Counts {
		return ir.State{}, hdr, ir.NewEncodingError(
			fmt.Sprintf("header counts %+v, snapshot holds %+v", hdr.Counts, got), nil)
	}
	return st, hdr, nil
}

// Verify audits a state and returns every problem found, joined.
//
//   - each asset id recomputed from (type, payload) must match: IntegrityConflict
//   - asset and run ids must be unique: IntegrityConflict
//   - edge seqs must be strictly increasing: EncodingError
//   - edge relations must be in the closed set: UnknownRelation
//   - edge endpoints and run ids must resolve: DanglingReference
func Verify(st ir.State) error {
	var errs []error
	nodes := make(map[string]bool, len(st.Assets)+len(st.Runs))
	runs := make(map[string]bool, len(st.Runs))

	for _, a := range st.Assets {
		id, err := ir.Identify(a.Type, a.Payload)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("asset %s: %w", a.ID, err))
		case id != a.ID:
			errs = append(errs, ir.NewIntegrityConflict(a.ID, "payload hashes to "+id))
		}
		if nodes[a.ID] {
			errs = append(errs, ir.NewIntegrityConflict(a.ID, "asset listed twice"))
		}
		nodes[a.ID] = true
	}
	for _, r := range st.Runs {
		if nodes[r.ID] {
			errs = append(errs, ir.NewIntegrityConflict(r.ID, "run id listed twice or shared with an asset"))
		}
		nodes[r.ID] = true
		runs[r.ID] = true
	}

	var last int64
	for _, e := range st.Edges {
		if e.Seq <= last {
			errs = append(errs, ir.NewEncodingError(fmt.Sprintf("edge seq %d follows %d", e.Seq, last), nil))
		}
		last = e.Seq
		if !e.Relation.Valid() {
			errs = append(errs, fmt.Errorf("edge %d: %w", e.Seq, ir.NewUnknownRelation(string(e.Relation))))
		}
		if !nodes[e.SrcID] {
			errs = append(errs, fmt.Errorf("edge %d: %w", e.Seq, ir.NewDanglingReference("src_id", e.SrcID)))
		}
		if !nodes[e.DstID] {
			errs = append(errs, fmt.Errorf("edge %d: %w", e.Seq, ir.NewDanglingReference("dst_id", e.DstID)))
		}
		if !runs[e.RunID] {
			errs = append(errs, fmt.Errorf("edge %d: %w", e.Seq, ir.NewDanglingReference("run_id", e.RunID)))
		}
	}
	return errors.Join(errs...)
}
