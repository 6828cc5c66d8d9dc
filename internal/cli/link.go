package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mcg/internal/ir"
)

// LinkOptions holds flags for the link command.
type LinkOptions struct {
	*RootOptions
	Run   string
	Edges string
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link [<src> <relation> <dst>]",
		Short: "Append edges to the ledger",
		Long: `Append edges to the ledger and print their sequence numbers.

Either name one edge as <src> <relation> <dst> with --run, or pass a JSON
array of {src_id, dst_id, relation, run_id} with --edges (inline, @file,
or - for stdin). A batch is appended atomically: if any edge is rejected,
none is recorded.

Relations: USES, PRODUCES, CONFIGURES, DERIVES, LOGS.

Examples:
  mcg link --db ./mcg.db sy_ab12... USES run_0001 --run run_0001
  mcg link --db ./mcg.db --edges @edges.json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.Edges != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run the edge is recorded under")
	cmd.Flags().StringVar(&opts.Edges, "edges", "", "JSON array of edges (inline, @file, or -)")

	return cmd
}

func runLink(opts *LinkOptions, cmd *cobra.Command, args []string) error {
	edges, err := opts.edgeInputs(cmd, args)
	if err != nil {
		return err
	}

	return opts.withSession(cmd, func(ctx context.Context, s *session) error {
		seqs, err := s.store.Link(ctx, edges)
		if err != nil {
			return opFailure("link", err)
		}
		return opts.output(cmd).Emit(map[string][]int64{"seqs": seqs}, func(w io.Writer) {
			for i, seq := range seqs {
				e := edges[i]
				fmt.Fprintf(w, "%d  %s -%s-> %s  (run %s)\n", seq, e.SrcID, e.Relation, e.DstID, e.RunID)
			}
		})
	})
}

func (o *LinkOptions) edgeInputs(cmd *cobra.Command, args []string) ([]ir.EdgeInput, error) {
	if o.Edges == "" {
		if o.Run == "" {
			return nil, NewExitError(ExitCommandError, "--run is required when linking a single edge")
		}
		rel, err := ir.ParseRelation(args[1])
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid relation", err)
		}
		return []ir.EdgeInput{{SrcID: args[0], DstID: args[2], Relation: rel, RunID: o.Run}}, nil
	}

	data, err := readSource(o.Edges, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	var edges []ir.EdgeInput
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --edges JSON", err)
	}
	for i := range edges {
		if edges[i].RunID == "" {
			edges[i].RunID = o.Run
		}
	}
	return edges, nil
}
