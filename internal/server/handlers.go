package server

import (
	"net/http"
	"strconv"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/lineage"
	"github.com/roach88/mcg/internal/provenance"
)

type putAssetsRequest struct {
	Assets []ir.AssetInput `json:"assets"`
}

type putAssetsResponse struct {
	IDs []string `json:"ids"`
}

type getAssetsRequest struct {
	IDs []string `json:"ids"`
}

type getAssetsResponse struct {
	Assets map[string]ir.Asset `json:"assets"`
}

type registerRunRequest struct {
	ID            string       `json:"id,omitempty"`
	Kind          string       `json:"kind"`
	Status        ir.RunStatus `json:"status,omitempty"`
	RunnerVersion string       `json:"runner_version,omitempty"`
}

type setStatusRequest struct {
	Status ir.RunStatus `json:"status"`
}

type linkRequest struct {
	Edges []ir.EdgeInput `json:"edges"`
}

type linkResponse struct {
	Seqs []int64 `json:"seqs"`
}

type edgesResponse struct {
	Edges []ir.Edge `json:"edges"`
}

type assetsResponse struct {
	Assets []ir.Asset `json:"assets"`
}

type chainResponse struct {
	Edges     []ir.Edge `json:"edges"`
	Narrative string    `json:"narrative"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string]string{"state": "serving"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, s.store.Stats())
}

func (s *Server) putAssets(w http.ResponseWriter, r *http.Request) {
	var req putAssetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	ids, err := s.store.PutAssets(r.Context(), req.Assets)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, putAssetsResponse{IDs: ids})
}

func (s *Server) getAssets(w http.ResponseWriter, r *http.Request) {
	var req getAssetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	assets, err := s.store.GetAssets(r.Context(), req.IDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, getAssetsResponse{Assets: assets})
}

func (s *Server) registerRun(w http.ResponseWriter, r *http.Request) {
	var req registerRunRequest
	if !s.decode(w, r, &req) {
		return
	}
	run, err := s.store.RegisterRun(r.Context(), ir.Run{
		ID:            req.ID,
		Kind:          req.Kind,
		Status:        req.Status,
		RunnerVersion: req.RunnerVersion,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, run)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, map[string][]ir.Run{"runs": s.store.Runs()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, run)
}

func (s *Server) setRunStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if !s.decode(w, r, &req) {
		return
	}
	status, err := ir.ParseRunStatus(string(req.Status))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	run, err := s.store.SetRunStatus(r.Context(), r.PathValue("id"), status)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, run)
}

func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !s.decode(w, r, &req) {
		return
	}
	seqs, err := s.store.Link(r.Context(), req.Edges)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, linkResponse{Seqs: seqs})
}

func (s *Server) ledger(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	edges, err := s.store.Edges(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, edgesResponse{Edges: edges})
}

// parseFilter reads ledger query parameters. Relation names are matched
// case-insensitively.
func parseFilter(r *http.Request) (provenance.Filter, error) {
	q := r.URL.Query()
	f := provenance.Filter{
		ByAsset: q.Get("asset"),
		ByRun:   q.Get("run"),
	}
	if rel := q.Get("relation"); rel != "" {
		parsed, err := ir.ParseRelation(rel)
		if err != nil {
			return f, err
		}
		f.ByRelation = parsed
	}
	if v := q.Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, ir.NewEncodingError("since must be an integer", err)
		}
		f.SinceSeq = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, ir.NewEncodingError("limit must be an integer", err)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) ancestors(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.Ancestors(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, assetsResponse{Assets: assets})
}

func (s *Server) descendants(w http.ResponseWriter, r *http.Request) {
	assets, err := s.store.Descendants(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, assetsResponse{Assets: assets})
}

func (s *Server) chain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	edges, err := s.store.ExplainChain(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, chainResponse{Edges: edges, Narrative: lineage.Narrate(id, edges)})
}
