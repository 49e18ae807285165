package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/aigrace/internal/api"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr             string
	DBPath           string
	Engines          []string
	Timeout          time.Duration
	Stages           []string
	NoTransform      bool
	StatsSource      string
	TransformTimeout time.Duration
	WorkDir          string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := rootOpts.Config
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP verification service",
		Long: `Serve the run API: submit verifications, follow their tool output live,
cancel them, and query results and aggregate statistics. Runs are recorded
in a SQLite database. Prometheus metrics are served on /metrics.

Example:
  aigrace serve --addr :8080 --db aigrace.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", cfg.ListenAddr, "listen address")
	cmd.Flags().StringVar(&opts.DBPath, "db", cfg.DBPath, "path to SQLite database")
	cmd.Flags().StringSliceVarP(&opts.Engines, "engines", "e", cfg.Engines, "default engines for submitted runs")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", cfg.Timeout, "default per-engine time budget")
	cmd.Flags().StringArrayVar(&opts.Stages, "stage", nil, "default transform stage as name=commands (repeatable)")
	cmd.Flags().BoolVar(&opts.NoTransform, "no-transform", false, "race submitted datasets as given by default")
	cmd.Flags().StringVar(&opts.StatsSource, "stats-source", cfg.StatsSource, "circuit statistics source (abc|native|auto)")
	cmd.Flags().DurationVar(&opts.TransformTimeout, "transform-timeout", cfg.TransformTimeout, "time budget per transform stage (0 = none)")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", cfg.WorkDir, "directory for transformed circuits")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	engines, err := parseEngines(opts.Engines)
	if err != nil {
		return err
	}
	timeout, err := parseTimeout(opts.Timeout)
	if err != nil {
		return err
	}
	stages, err := parseStages(opts.Stages, opts.NoTransform)
	if err != nil {
		return err
	}
	source, err := parseStatsSource(opts.StatsSource)
	if err != nil {
		return err
	}

	logger := opts.Logger(cmd)
	logger.Info("aigrace: starting",
		"listen_addr", opts.Addr,
		"db_path", opts.DBPath,
		"abc", opts.ABCBin,
	)

	a, err := newApp(opts.abcConfig(), appOptions{
		DBPath:           opts.DBPath,
		WorkDir:          opts.WorkDir,
		StatsSource:      source,
		TransformTimeout: opts.TransformTimeout,
	}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.Close()

	srv := api.NewServer(opts.Addr, a.store, a.registry, a.runner, api.Defaults{
		Engines: engines,
		Timeout: timeout,
		Stages:  stages,
	}, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Run returns once in-flight requests have drained.
	serveErr := srv.Run(ctx)

	a.runner.Shutdown()
	if err := a.backend.Cleanup(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("cleanup failed", "error", err)
	}

	if serveErr != nil {
		return WrapExitError(ExitFailure, "server error", serveErr)
	}
	return nil
}
