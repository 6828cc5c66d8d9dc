package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/provenance"
	"github.com/roach88/mcg/internal/store"
)

// LedgerOptions holds flags for the ledger command.
type LedgerOptions struct {
	*RootOptions
	Asset    string
	Run      string
	Relation string
	Since    int64
	Limit    int
	Durable  bool
}

// NewLedgerCommand creates the ledger command.
func NewLedgerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List ledger edges",
		Long: `List edges in ascending sequence order. Filters combine with AND.

Examples:
  mcg ledger --db ./mcg.db
  mcg ledger --db ./mcg.db --run run_0001 --relation produces
  mcg ledger --db ./mcg.db --since 120 --limit 50 --format json
  mcg ledger --db ./mcg.db --durable --asset rs_1773f8b6...

--durable answers from the database file without loading the store, so it
is cheap on large ledgers and sees only what has reached disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedger(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Asset, "asset", "", "edges touching this asset or run id")
	cmd.Flags().StringVar(&opts.Run, "run", "", "edges recorded under this run")
	cmd.Flags().StringVar(&opts.Relation, "relation", "", "edges with this relation")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "edges with seq greater than this")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of edges (0 for all)")
	cmd.Flags().BoolVar(&opts.Durable, "durable", false, "query the database file directly")

	return cmd
}

func runLedger(opts *LedgerOptions, cmd *cobra.Command) error {
	f := provenance.Filter{
		ByAsset:  opts.Asset,
		ByRun:    opts.Run,
		SinceSeq: opts.Since,
		Limit:    opts.Limit,
	}
	if opts.Relation != "" {
		rel, err := ir.ParseRelation(opts.Relation)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --relation", err)
		}
		f.ByRelation = rel
	}

	if opts.Durable {
		return runDurableLedger(opts, cmd, f)
	}

	return opts.withSession(cmd, func(ctx context.Context, s *session) error {
		edges, err := s.store.Edges(ctx, f)
		if err != nil {
			return opFailure("ledger", err)
		}
		return emitEdges(opts.RootOptions, cmd, edges)
	})
}

func runDurableLedger(opts *LedgerOptions, cmd *cobra.Command, f provenance.Filter) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return NewExitError(ExitCommandError, "--durable needs a database path")
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer db.Close()

	edges, err := db.QueryEdges(commandContext(cmd), store.EdgeQuery{
		Node:     f.ByAsset,
		Run:      f.ByRun,
		Relation: f.ByRelation,
		SinceSeq: f.SinceSeq,
		Limit:    f.Limit,
	})
	if err != nil {
		return opFailure("ledger", err)
	}
	return emitEdges(opts.RootOptions, cmd, edges)
}

func emitEdges(opts *RootOptions, cmd *cobra.Command, edges []ir.Edge) error {
	return opts.output(cmd).Emit(map[string][]ir.Edge{"edges": edges}, func(w io.Writer) {
		printEdges(w, edges)
	})
}

func printEdges(w io.Writer, edges []ir.Edge) {
	if len(edges) == 0 {
		fmt.Fprintln(w, "(no edges)")
		return
	}
	for _, e := range edges {
		fmt.Fprintf(w, "%6d  %s  %s -%s-> %s  run %s\n",
			e.Seq, shortTime(e.Timestamp), e.SrcID, e.Relation, e.DstID, e.RunID)
	}
	fmt.Fprintln(w, plural(len(edges), "edge", "edges"))
}
