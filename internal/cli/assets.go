package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mcg/internal/ir"
)

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <type> <payload>...",
		Short: "Store assets of one type",
		Long: `Store one or more assets of the given type and print their ids.

Each payload is a JSON object given inline, as @file, or as - for stdin.
Storing an asset that already exists returns its id and changes nothing.

Types: System, Method, Params, Results, Artifact (case-insensitive).

Examples:
  mcg put --db ./mcg.db System @si.json
  mcg put --db ./mcg.db Params '{"mesh":8}' '{"mesh":12}'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(rootOpts, cmd, args[0], args[1:])
		},
	}
}

func runPut(opts *RootOptions, cmd *cobra.Command, typeName string, payloads []string) error {
	t, err := ir.ParseAssetType(typeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid asset type", err)
	}

	inputs := make([]ir.AssetInput, len(payloads))
	for i, arg := range payloads {
		obj, err := readPayload(arg, cmd.InOrStdin())
		if err != nil {
			return err
		}
		inputs[i] = ir.AssetInput{Type: t, Payload: obj}
	}

	return opts.withSession(cmd, func(ctx context.Context, s *session) error {
		ids, err := s.store.PutAssets(ctx, inputs)
		if err != nil {
			return opFailure("put", err)
		}
		return opts.output(cmd).Emit(map[string][]string{"ids": ids}, func(w io.Writer) {
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
		})
	})
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>...",
		Short: "Fetch assets by id",
		Long: `Fetch assets by id. Fails without output if any id is unknown.

Example:
  mcg get --db ./mcg.db rs_1773f8b6... --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, cmd, args)
		},
	}
}

func runGet(opts *RootOptions, cmd *cobra.Command, ids []string) error {
	return opts.withSession(cmd, func(ctx context.Context, s *session) error {
		assets, err := s.store.GetAssets(ctx, ids)
		if err != nil {
			return opFailure("get", err)
		}
		return opts.output(cmd).Emit(map[string]any{"assets": assets}, func(w io.Writer) {
			printAssets(w, orderedAssets(ids, assets))
		})
	})
}

// orderedAssets lists assets in request order, once per id.
func orderedAssets(ids []string, byID map[string]ir.Asset) []ir.Asset {
	seen := make(map[string]bool, len(ids))
	out := make([]ir.Asset, 0, len(byID))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, byID[id])
	}
	return out
}

func printAssets(w io.Writer, assets []ir.Asset) {
	if len(assets) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	for _, a := range assets {
		payload, err := ir.CanonicalPayload(a.Payload)
		if err != nil {
			payload = []byte("<unencodable>")
		}
		fmt.Fprintf(w, "%s  %-8s  %s\n", a.ID, a.Type, shortTime(a.CreatedAt))
		fmt.Fprintf(w, "  %s\n", payload)
	}
}
