package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/lineage"
)

// LineageResult is the JSON form of a lineage answer.
type LineageResult struct {
	ID        string     `json:"id"`
	Assets    []ir.Asset `json:"assets,omitempty"`
	Chain     []ir.Edge  `json:"chain,omitempty"`
	Narrative string     `json:"narrative,omitempty"`
}

// NewLineageCommand creates the lineage command group.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Answer provenance questions",
		Long: `Walk the ledger from an asset.

  ancestors    every asset it was derived from, nearest first
  descendants  every asset derived from it, nearest first
  chain        the edges that lead to it, oldest first, with a narrative

Traversal passes through runs: inputs of a run are ancestors of its outputs.

Examples:
  mcg lineage ancestors --db ./mcg.db rs_1773f8b6...
  mcg lineage chain --db ./mcg.db rs_1773f8b6... --format json`,
	}

	cmd.AddCommand(newClosureCommand(rootOpts, "ancestors", "List assets an asset was derived from", true))
	cmd.AddCommand(newClosureCommand(rootOpts, "descendants", "List assets derived from an asset", false))
	cmd.AddCommand(newChainCommand(rootOpts))

	return cmd
}

func newClosureCommand(rootOpts *RootOptions, name, short string, up bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return rootOpts.withSession(cmd, func(ctx context.Context, s *session) error {
				var (
					assets []ir.Asset
					err    error
				)
				if up {
					assets, err = s.store.Ancestors(ctx, id)
				} else {
					assets, err = s.store.Descendants(ctx, id)
				}
				if err != nil {
					return opFailure(name, err)
				}
				return rootOpts.output(cmd).Emit(LineageResult{ID: id, Assets: assets}, func(w io.Writer) {
					for _, a := range assets {
						fmt.Fprintf(w, "%s  %s\n", a.ID, a.Type)
					}
					fmt.Fprintln(w, plural(len(assets), name[:len(name)-1], name))
				})
			})
		},
	}
}

func newChainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <id>",
		Short: "Explain how an asset came to be",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return rootOpts.withSession(cmd, func(ctx context.Context, s *session) error {
				chain, err := s.store.ExplainChain(ctx, id)
				if err != nil {
					return opFailure("explain chain", err)
				}
				narrative := lineage.Narrate(id, chain)
				res := LineageResult{ID: id, Chain: chain, Narrative: narrative}
				return rootOpts.output(cmd).Emit(res, func(w io.Writer) { fmt.Fprint(w, narrative) })
			})
		},
	}
}
