package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/provenance"
)

// Manifest describes one recorded computation: the runs, the assets they
// read and wrote, and the edges between them. Entries carry local names;
// edges refer to assets and runs by name or by stored id. JSON manifests
// are accepted too.
type Manifest struct {
	Runs   []ManifestRun   `yaml:"runs"`
	Assets []ManifestAsset `yaml:"assets"`
	Edges  []ManifestEdge  `yaml:"edges"`
}

// ManifestRun is a run to register. Status is where the run ends up once
// its edges are linked; empty means done.
type ManifestRun struct {
	Name          string `yaml:"name"`
	ID            string `yaml:"id"`
	Kind          string `yaml:"kind"`
	Status        string `yaml:"status"`
	RunnerVersion string `yaml:"runner_version"`
}

// ManifestAsset is an asset to store.
type ManifestAsset struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Payload map[string]any `yaml:"payload"`
}

// ManifestEdge links two names or ids under a run.
type ManifestEdge struct {
	Src      string `yaml:"src"`
	Dst      string `yaml:"dst"`
	Relation string `yaml:"relation"`
	Run      string `yaml:"run"`
}

// IngestResult maps manifest names to stored ids.
type IngestResult struct {
	Assets map[string]string `json:"assets"`
	Runs   map[string]string `json:"runs"`
	Seqs   []int64           `json:"seqs"`
}

// ParseManifest decodes a YAML or JSON manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <manifest>",
		Short: "Record a computation from a manifest",
		Long: `Record runs, assets and edges described in a YAML or JSON manifest.

Runs are registered first, then every asset is stored, then all edges are
appended as one batch, and finally each run is moved to its status. Edge
endpoints name a manifest entry or an id already in the store.

Example manifest:
  runs:
    - name: bte
      kind: phonon-bte
  assets:
    - name: si
      type: System
      payload: {formula: Si2}
    - name: kappa
      type: Results
      payload: {kappa_W_mK: [148.5]}
  edges:
    - {src: si,  relation: USES,     dst: bte,   run: bte}
    - {src: bte, relation: PRODUCES, dst: kappa, run: bte}

Example:
  mcg ingest --db ./mcg.db kappa.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, cmd, args[0])
		},
	}
}

func runIngest(opts *RootOptions, cmd *cobra.Command, source string) error {
	arg := source
	if arg != "-" {
		arg = "@" + source
	}
	data, err := readSource(arg, cmd.InOrStdin())
	if err != nil {
		return err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid manifest", err)
	}

	return opts.withSession(cmd, func(ctx context.Context, s *session) error {
		res, err := Ingest(ctx, s.store, m)
		if err != nil {
			return opFailure("ingest", err)
		}
		s.logger.Debug("manifest ingested",
			zap.Int("runs", len(res.Runs)),
			zap.Int("assets", len(res.Assets)),
			zap.Int("edges", len(res.Seqs)))

		return opts.output(cmd).Emit(res, func(w io.Writer) {
			for _, r := range m.Runs {
				fmt.Fprintf(w, "run    %-12s %s\n", r.Name, res.Runs[r.Name])
			}
			for _, a := range m.Assets {
				fmt.Fprintf(w, "asset  %-12s %s\n", a.Name, res.Assets[a.Name])
			}
			fmt.Fprintln(w, plural(len(res.Seqs), "edge appended", "edges appended"))
		})
	})
}

// Ingest records m in s. Assets already stored are deduplicated; a failing
// edge batch leaves the ledger untouched, though runs and assets recorded
// before it stay.
func Ingest(ctx context.Context, s *provenance.Store, m *Manifest) (IngestResult, error) {
	res := IngestResult{
		Assets: make(map[string]string, len(m.Assets)),
		Runs:   make(map[string]string, len(m.Runs)),
		Seqs:   []int64{},
	}

	targets := make([]ir.RunStatus, len(m.Runs))
	for i, r := range m.Runs {
		if r.Name == "" {
			return res, ir.NewEncodingError(fmt.Sprintf("runs[%d]: name is required", i), nil)
		}
		if _, dup := res.Runs[r.Name]; dup {
			return res, ir.NewEncodingError(fmt.Sprintf("runs[%d]: duplicate name %q", i, r.Name), nil)
		}
		targets[i] = ir.RunDone
		if r.Status != "" {
			st, err := ir.ParseRunStatus(r.Status)
			if err != nil {
				return res, fmt.Errorf("runs[%d]: %w", i, err)
			}
			targets[i] = st
		}
		res.Runs[r.Name] = ""
	}

	inputs := make([]ir.AssetInput, len(m.Assets))
	for i, a := range m.Assets {
		if a.Name == "" {
			return res, ir.NewEncodingError(fmt.Sprintf("assets[%d]: name is required", i), nil)
		}
		if _, dup := res.Assets[a.Name]; dup {
			return res, ir.NewEncodingError(fmt.Sprintf("assets[%d]: duplicate name %q", i, a.Name), nil)
		}
		t, err := ir.ParseAssetType(a.Type)
		if err != nil {
			return res, fmt.Errorf("assets[%d]: %w", i, err)
		}
		payload, err := manifestPayload(a.Payload)
		if err != nil {
			return res, fmt.Errorf("assets[%d]: %w", i, err)
		}
		inputs[i] = ir.AssetInput{Type: t, Payload: payload}
		res.Assets[a.Name] = ""
	}

	for i, r := range m.Runs {
		run, err := s.RegisterRun(ctx, ir.Run{ID: r.ID, Kind: r.Kind, RunnerVersion: r.RunnerVersion})
		if err != nil {
			return res, fmt.Errorf("runs[%d]: %w", i, err)
		}
		res.Runs[r.Name] = run.ID
	}

	if len(inputs) > 0 {
		ids, err := s.PutAssets(ctx, inputs)
		if err != nil {
			return res, err
		}
		for i, a := range m.Assets {
			res.Assets[a.Name] = ids[i]
		}
	}

	resolve := func(ref string) string {
		if id, ok := res.Assets[ref]; ok {
			return id
		}
		if id, ok := res.Runs[ref]; ok {
			return id
		}
		return ref
	}

	edges := make([]ir.EdgeInput, len(m.Edges))
	for i, e := range m.Edges {
		rel, err := ir.ParseRelation(e.Relation)
		if err != nil {
			return res, fmt.Errorf("edges[%d]: %w", i, err)
		}
		edges[i] = ir.EdgeInput{
			SrcID:    resolve(e.Src),
			DstID:    resolve(e.Dst),
			Relation: rel,
			RunID:    resolve(e.Run),
		}
	}
	if len(edges) > 0 {
		seqs, err := s.Link(ctx, edges)
		if err != nil {
			return res, err
		}
		res.Seqs = seqs
	}

	for i, r := range m.Runs {
		if _, err := s.SetRunStatus(ctx, res.Runs[r.Name], targets[i]); err != nil {
			return res, fmt.Errorf("runs[%d]: %w", i, err)
		}
	}
	return res, nil
}

// manifestPayload converts a decoded YAML mapping into a payload.
func manifestPayload(raw map[string]any) (ir.Object, error) {
	if raw == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromGo(normalizeYAML(raw))
	if err != nil {
		return nil, err
	}
	return v.(ir.Object), nil
}

// normalizeYAML rewrites the map[any]any yaml produces for non-string keys
// into map[string]any.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	default:
		return v
	}
}
