package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/mcg/internal/ir"
)

// RunRegisterOptions holds flags for the run register command.
type RunRegisterOptions struct {
	*RootOptions
	ID            string
	Kind          string
	Status        string
	RunnerVersion string
}

// NewRunCommand creates the run command group.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Register runs and track their status",
		Long: `A run names one execution of a computational method. Edges are
recorded under a run; its status moves forward only:
queued -> running -> done | error.`,
	}

	cmd.AddCommand(newRunRegisterCommand(rootOpts))
	cmd.AddCommand(newRunStatusCommand(rootOpts))
	cmd.AddCommand(newRunGetCommand(rootOpts))
	cmd.AddCommand(newRunListCommand(rootOpts))

	return cmd
}

func newRunRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunRegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new run",
		Long: `Register a new run and print its id.

Examples:
  mcg run register --db ./mcg.db --kind phonon-bte
  mcg run register --db ./mcg.db --kind relax --id run_relax_01 --runner-version 7.3.1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "run kind, e.g. relax or phonon-bte (required)")
	_ = cmd.MarkFlagRequired("kind")
	cmd.Flags().StringVar(&opts.ID, "id", "", "run id (generated when empty)")
	cmd.Flags().StringVar(&opts.Status, "status", "queued", "initial status (queued|running)")
	cmd.Flags().StringVar(&opts.RunnerVersion, "runner-version", "", "version of the program executing the run")

	return cmd
}

func runRegister(opts *RunRegisterOptions, cmd *cobra.Command) error {
	status, err := ir.ParseRunStatus(opts.Status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}

	return opts.withSession(cmd, func(ctx context.Context, s *session) error {
		run, err := s.store.RegisterRun(ctx, ir.Run{
			ID:            opts.ID,
			Kind:          opts.Kind,
			Status:        status,
			RunnerVersion: opts.RunnerVersion,
		})
		if err != nil {
			return opFailure("register run", err)
		}
		return opts.output(cmd).Emit(run, func(w io.Writer) { fmt.Fprintln(w, run.ID) })
	})
}

func newRunStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id> <status>",
		Short: "Move a run to a later status",
		Example: `  mcg run status --db ./mcg.db run_0001 running
  mcg run status --db ./mcg.db run_0001 done`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ir.ParseRunStatus(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid status", err)
			}
			return rootOpts.withSession(cmd, func(ctx context.Context, s *session) error {
				run, err := s.store.SetRunStatus(ctx, args[0], status)
				if err != nil {
					return opFailure("set run status", err)
				}
				return rootOpts.output(cmd).Emit(run, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s\n", run.ID, run.Status)
				})
			})
		},
	}
}

func newRunGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(_ context.Context, s *session) error {
				run, err := s.store.GetRun(args[0])
				if err != nil {
					return opFailure("get run", err)
				}
				return rootOpts.output(cmd).Emit(run, func(w io.Writer) { printRuns(w, []ir.Run{run}) })
			})
		},
	}
}

func newRunListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runs in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withSession(cmd, func(_ context.Context, s *session) error {
				runs := s.store.Runs()
				return rootOpts.output(cmd).Emit(map[string][]ir.Run{"runs": runs}, func(w io.Writer) {
					printRuns(w, runs)
				})
			})
		},
	}
}

func printRuns(w io.Writer, runs []ir.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}
	for _, r := range runs {
		ended := "-"
		if r.EndedAt != nil {
			ended = shortTime(*r.EndedAt)
		}
		fmt.Fprintf(w, "%s  %-12s  %-7s  started %s  ended %s  runner %s\n",
			r.ID, r.Kind, r.Status, shortTime(r.StartedAt), ended, orDash(r.RunnerVersion))
	}
}
