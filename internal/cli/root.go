package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/mcg/internal/config"
	"github.com/roach88/mcg/internal/ir"
	"github.com/roach88/mcg/internal/logging"
	"github.com/roach88/mcg/internal/metrics"
	"github.com/roach88/mcg/internal/provenance"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string
	Database   string

	// StoreOptions apply after configuration when a command opens the
	// store. Tests use them for deterministic clocks and run ids.
	StoreOptions []provenance.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mcg CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcg",
		Short: "mcg - materials computation provenance graph",
		Long: `A content-addressed provenance store for computational materials science.

Assets (systems, methods, parameters, results, artifacts) are identified by
the hash of their canonical payload. Runs link inputs to outputs through an
append-only edge ledger that answers lineage questions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before MCG_* overrides")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")

	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewLineageCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Failures are reported on stdout as a JSON envelope with --format json,
// on stderr otherwise.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, &RootOptions{}, args, stdout, stderr)
}

func execute(ctx context.Context, opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	// Anything not already classified came from flag or argument parsing.
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		err = WrapExitError(ExitCommandError, "invalid command", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	if !isValidFormat(out.Format) {
		out.Format = "text"
	}
	out.Fail(err)
	return GetExitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// output returns the formatter for cmd.
func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig layers the config file, dotenv file and environment, then
// applies --db.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(o.ConfigPath).
		WithEnvFile(o.EnvFile).
		Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.Database != "" {
		cfg.Store.Path = o.Database
	}
	return cfg, nil
}

// logger builds the process logger. One-shot commands log warnings only
// unless --verbose is set.
func (o *RootOptions) logger(cfg *config.Config, serving bool) (*zap.Logger, error) {
	logCfg := cfg.Log
	switch {
	case o.Verbose:
		logCfg.Level = "debug"
	case !serving:
		logCfg.Level = "warn"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build logger", err)
	}
	return logger, nil
}

// session is an open store plus what a command needs around it.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector
	store   *provenance.Store
}

// open loads configuration and opens the store it names.
func (o *RootOptions) open(ctx context.Context, serving bool) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.logger(cfg, serving)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector(metrics.DefaultNamespace, nil, logger)
	storeOpts := append([]provenance.Option{
		provenance.WithLogger(logger),
		provenance.WithMetrics(collector),
	}, o.StoreOptions...)

	st, err := provenance.Open(ctx, cfg, storeOpts...)
	if err != nil {
		logger.Sync() //nolint:errcheck
		// Stored data the store refuses is a failure, not a usage error.
		if ir.CodeOf(err) != "" {
			return nil, opFailure("open store", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger.Debug("store opened", zap.String("path", cfg.Store.Path), zap.Bool("durable", st.Durable()))

	return &session{cfg: cfg, logger: logger, metrics: collector, store: st}, nil
}

// Close drains the store to disk.
func (s *session) Close() error {
	err := s.store.Close()
	s.logger.Sync() //nolint:errcheck
	if err != nil {
		return WrapExitError(ExitFailure, "failed to close store", err)
	}
	return nil
}

// withSession runs fn against an open store and closes it afterwards,
// reporting a close failure only when fn succeeded.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := commandContext(cmd)
	s, err := o.open(ctx, false)
	if err != nil {
		return err
	}
	runErr := fn(ctx, s)
	closeErr := s.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
