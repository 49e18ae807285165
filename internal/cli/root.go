package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/config"
)

// RootOptions holds global flags and the environment configuration shared by
// all commands.
type RootOptions struct {
	Verbose   bool
	LogLevel  string
	LogFormat string
	// ABCBin and ABCWorkDir override the tool settings from the environment.
	ABCBin     string
	ABCWorkDir string

	Config config.Config
	ABC    abc.Config

	logger *slog.Logger
}

// NewRootOptions loads the environment configuration into fresh options.
func NewRootOptions() *RootOptions {
	cfg := config.Load()
	abcCfg := abc.LoadConfig()
	return &RootOptions{
		LogLevel:   strings.ToLower(cfg.LogLevel.String()),
		LogFormat:  cfg.LogFormat,
		ABCBin:     abcCfg.Bin,
		ABCWorkDir: abcCfg.WorkDir,
		Config:     cfg,
		ABC:        abcCfg,
	}
}

// NewRootCommand creates the root command for the aigrace CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(NewRootOptions())
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aigrace",
		Short: "Race model-checking engines against AIG circuits",
		Long: `aigrace verifies And-Inverter Graph circuits by racing several ABC
engines (pdr, bmc, int, dprove, sim) in parallel and keeping the first
conclusive answer. Circuits are simplified first unless told otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogFormat != config.LogFormatJSON && opts.LogFormat != config.LogFormatText {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid log format %q: must be json or text", opts.LogFormat))
			}
			opts.logger = nil
			opts.Logger(cmd)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log tool output (same as --log-level debug)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "log format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ABCBin, "abc", opts.ABCBin, "path to the abc binary")
	cmd.PersistentFlags().StringVar(&opts.ABCWorkDir, "abc-work-dir", opts.ABCWorkDir, "working directory of abc processes (default: current directory)")

	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewRaceCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewEnginesCommand(opts))

	return cmd
}

// Logger returns the logger for cmd, building it on first use. Logs go to
// the command's error stream so reports on stdout stay clean.
func (o *RootOptions) Logger(cmd *cobra.Command) *slog.Logger {
	if o.logger == nil {
		level := config.ParseLogLevel(o.LogLevel)
		if o.Verbose {
			level = slog.LevelDebug
		}
		o.logger = config.NewLogger(cmd.ErrOrStderr(), level, o.LogFormat)
	}
	return o.logger
}

func (o *RootOptions) abcConfig() abc.Config {
	cfg := o.ABC
	cfg.Bin = o.ABCBin
	cfg.WorkDir = o.ABCWorkDir
	return cfg
}
