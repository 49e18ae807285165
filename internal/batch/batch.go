// Package batch verifies a list of circuit datasets and collects one report
// row per dataset. A failing dataset becomes an ERROR row; the batch always
// continues.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/pipeline"
	"github.com/seantiz/aigrace/internal/report"
	"github.com/seantiz/aigrace/internal/runner"
	"github.com/seantiz/aigrace/internal/workspace"
)

// Executor runs one verification to completion.
type Executor interface {
	Execute(ctx context.Context, req runner.Request) (runner.Outcome, error)
}

// Cleaner removes tool leftovers once the batch is over.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Options configures a batch.
type Options struct {
	Engines []model.Engine
	Timeout time.Duration
	Stages  []pipeline.Stage
	// Parallel bounds how many datasets are verified at once. Values below
	// one mean one.
	Parallel int
	// WorkDir, when set, is reset before the first dataset runs.
	WorkDir string
}

// Driver runs batches.
type Driver struct {
	exec    Executor
	cleaner Cleaner
	opts    Options
	logger  *slog.Logger
}

// NewDriver creates a driver. cleaner may be nil.
func NewDriver(exec Executor, cleaner Cleaner, opts Options, logger *slog.Logger) *Driver {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Driver{exec: exec, cleaner: cleaner, opts: opts, logger: logger}
}

// Run verifies every dataset and returns the rows in dataset order. It
// returns an error only when the workspace cannot be prepared or ctx was
// cancelled; in the latter case the rows are still complete.
func (d *Driver) Run(ctx context.Context, datasets []string) ([]report.Row, error) {
	if d.opts.WorkDir != "" {
		if err := workspace.Reset(d.opts.WorkDir); err != nil {
			return nil, fmt.Errorf("prepare workspace: %w", err)
		}
	}
	defer d.cleanup()

	rows := make([]report.Row, len(datasets))
	var g errgroup.Group
	g.SetLimit(d.opts.Parallel)
	for i, ds := range datasets {
		g.Go(func() error {
			rows[i] = d.runOne(ctx, ds)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return rows, fmt.Errorf("batch interrupted: %w", err)
	}
	return rows, nil
}

func (d *Driver) runOne(ctx context.Context, dataset string) (row report.Row) {
	d.logger.Info("running dataset", "dataset", dataset)

	var out runner.Outcome
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("dataset panicked", "dataset", dataset, "panic", p)
			row = report.ErrorRow(dataset, out.Stats, out.StatsKnown)
		}
	}()

	out, err := d.exec.Execute(ctx, runner.Request{
		Dataset: dataset,
		Engines: d.opts.Engines,
		Timeout: d.opts.Timeout,
		Stages:  d.opts.Stages,
	})
	if err != nil {
		d.logger.Error("dataset failed", "dataset", dataset, "error", err)
		return report.ErrorRow(dataset, out.Stats, out.StatsKnown)
	}

	d.logger.Info("dataset finished",
		"dataset", dataset,
		"run_id", out.RunID,
		"verdict", string(out.Result.Verdict),
		"engine", out.Result.Engine.String(),
	)
	return report.NewRow(dataset, out.Stats, out.StatsKnown, out.Result)
}

func (d *Driver) cleanup() {
	if d.cleaner == nil {
		return
	}
	if err := d.cleaner.Cleanup(context.Background()); err != nil {
		d.logger.Warn("cleanup failed", "error", err)
	}
}
