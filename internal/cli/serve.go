package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Long: `Serve the store over HTTP JSON with Prometheus metrics on /metrics.
Stops gracefully on SIGINT or SIGTERM and drains pending writes.

Example:
  mcg serve --db ./mcg.db --addr 127.0.0.1:8750`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := opts.open(ctx, true)
	if err != nil {
		return err
	}

	cfg := s.cfg.Server
	if opts.Addr != "" {
		cfg.Addr = opts.Addr
	}

	srv := server.New(s.store, cfg, s.logger)
	serveErr := srv.ListenAndServe(ctx)
	if serveErr != nil {
		s.logger.Error("server stopped", zap.Error(serveErr))
	}

	closeErr := s.Close()
	if serveErr != nil {
		return WrapExitError(ExitCommandError, "server failed", serveErr)
	}
	return closeErr
}
