package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/aigrace/internal/batch"
	"github.com/seantiz/aigrace/internal/config"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/pipeline"
	"github.com/seantiz/aigrace/internal/report"
	"github.com/seantiz/aigrace/internal/stats"
)

// DefaultReportName is the CSV report written when no output is given.
const DefaultReportName = "dataset_results.csv"

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Manifest         string
	Engines          []string
	Timeout          time.Duration
	Stages           []string
	NoTransform      bool
	Parallel         int
	StatsSource      string
	TransformTimeout time.Duration
	WorkDir          string
	DBPath           string
	Format           string
	Output           string
}

// batchPlan is a fully resolved batch.
type batchPlan struct {
	datasets    []string
	engines     []model.Engine
	timeout     time.Duration
	stages      []pipeline.Stage
	parallel    int
	statsSource stats.Source
	workDir     string
	format      report.Format
	output      string
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := rootOpts.Config
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch [dataset.aig ...]",
		Short: "Verify a list of circuits and write a report",
		Long: `Verify every dataset in turn and write one report row per dataset.

Each dataset is simplified, then the engines race on the result. A dataset
that cannot be processed is reported as ERROR and the batch continues.
Datasets come from the arguments, a YAML manifest, or both; flags override
manifest values, which override the environment.

Example:
  aigrace batch dataset/139442p0.aig dataset/bob1u05cu.aig
  aigrace batch --manifest batch.yaml --parallel 4 --format text
  aigrace batch --stage simplify="dc2; strash" --stage balance="balance -l" a.aig`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Manifest, "manifest", "m", "", "YAML batch manifest")
	cmd.Flags().StringSliceVarP(&opts.Engines, "engines", "e", cfg.Engines, "engines to race")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", cfg.Timeout, "per-engine time budget")
	cmd.Flags().StringArrayVar(&opts.Stages, "stage", nil, "transform stage as name=commands (repeatable, default simplify)")
	cmd.Flags().BoolVar(&opts.NoTransform, "no-transform", false, "race the datasets as given")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", cfg.Parallel, "datasets verified at once")
	cmd.Flags().StringVar(&opts.StatsSource, "stats-source", cfg.StatsSource, "circuit statistics source (abc|native|auto)")
	cmd.Flags().DurationVar(&opts.TransformTimeout, "transform-timeout", cfg.TransformTimeout, "time budget per transform stage (0 = none)")
	cmd.Flags().StringVar(&opts.WorkDir, "work-dir", cfg.WorkDir, "directory for transformed circuits, reset before the batch")
	cmd.Flags().StringVar(&opts.DBPath, "db", ":memory:", "SQLite database recording the runs")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", string(report.FormatCSV), "report format (csv|json|text)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", `report path, "-" for stdout (default `+DefaultReportName+`, stdout for text)`)

	return cmd
}

func runBatch(opts *BatchOptions, cmd *cobra.Command, args []string) error {
	plan, err := opts.resolve(cmd, args)
	if err != nil {
		return err
	}
	logger := opts.Logger(cmd)

	a, err := newApp(opts.abcConfig(), appOptions{
		DBPath:           opts.DBPath,
		WorkDir:          plan.workDir,
		StatsSource:      plan.statsSource,
		TransformTimeout: opts.TransformTimeout,
	}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer a.Close()

	logger.Info("batch starting",
		"datasets", len(plan.datasets),
		"engines", plan.engines,
		"timeout", plan.timeout,
		"stages", len(plan.stages),
		"parallel", plan.parallel,
	)

	driver := batch.NewDriver(a.runner, a.backend, batch.Options{
		Engines:  plan.engines,
		Timeout:  plan.timeout,
		Stages:   plan.stages,
		Parallel: plan.parallel,
		WorkDir:  plan.workDir,
	}, logger)

	rows, runErr := driver.Run(cmd.Context(), plan.datasets)
	if rows == nil && runErr != nil {
		return WrapExitError(ExitCommandError, "batch failed", runErr)
	}

	if err := writeReport(cmd.OutOrStdout(), plan.format, plan.output, rows); err != nil {
		return WrapExitError(ExitFailure, "failed to write report", err)
	}
	if plan.output != "-" {
		logger.Info("report written", "path", plan.output, "rows", len(rows))
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "batch interrupted", runErr)
	}
	return nil
}

// resolve merges arguments, manifest and flags into a plan.
func (o *BatchOptions) resolve(cmd *cobra.Command, args []string) (*batchPlan, error) {
	flags := cmd.Flags()
	engines := o.Engines
	timeout := o.Timeout
	parallel := o.Parallel
	statsSource := o.StatsSource
	workDir := o.WorkDir
	format := o.Format
	output := o.Output
	var datasets []string
	var manifestStages []pipeline.Stage

	if o.Manifest != "" {
		m, err := config.LoadManifest(o.Manifest)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load manifest", err)
		}
		datasets = append(datasets, m.Datasets...)
		manifestStages = m.Stages
		if !flags.Changed("engines") && len(m.Engines) > 0 {
			engines = m.Engines
		}
		if !flags.Changed("timeout") && m.Timeout > 0 {
			timeout = m.Timeout
		}
		if !flags.Changed("parallel") && m.Parallel > 0 {
			parallel = m.Parallel
		}
		if !flags.Changed("stats-source") && m.StatsSource != "" {
			statsSource = m.StatsSource
		}
		if !flags.Changed("work-dir") && m.WorkDir != "" {
			workDir = m.WorkDir
		}
		if !flags.Changed("format") && m.Format != "" {
			format = m.Format
		}
		if !flags.Changed("output") && m.Output != "" {
			output = m.Output
		}
	}
	datasets = append(datasets, args...)
	if len(datasets) == 0 {
		return nil, WrapExitError(ExitCommandError, "nothing to verify", errNoDatasets)
	}

	plan := &batchPlan{datasets: datasets, workDir: workDir}
	var err error
	if plan.engines, err = parseEngines(engines); err != nil {
		return nil, err
	}
	if plan.timeout, err = parseTimeout(timeout); err != nil {
		return nil, err
	}
	if plan.statsSource, err = parseStatsSource(statsSource); err != nil {
		return nil, err
	}
	if parallel < 1 {
		return nil, NewExitError(ExitCommandError, "parallel must be at least 1")
	}
	plan.parallel = parallel

	if manifestStages != nil && !flags.Changed("stage") && !o.NoTransform {
		plan.stages = manifestStages
	} else if plan.stages, err = parseStages(o.Stages, o.NoTransform); err != nil {
		return nil, err
	}

	if plan.format, err = report.ParseFormat(format); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid format", err)
	}
	plan.output = output
	if plan.output == "" {
		plan.output = defaultOutput(plan.format)
	}
	return plan, nil
}

func defaultOutput(f report.Format) string {
	switch f {
	case report.FormatText:
		return "-"
	case report.FormatJSON:
		return "dataset_results.json"
	default:
		return DefaultReportName
	}
}

// writeReport writes rows to path, or to stdout when path is "-".
func writeReport(stdout io.Writer, format report.Format, path string, rows []report.Row) error {
	if path == "-" {
		return report.Write(stdout, format, rows)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(f, format, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
