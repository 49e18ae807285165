package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/pipeline"
	"github.com/seantiz/aigrace/internal/race"
	"github.com/seantiz/aigrace/internal/runner"
	"github.com/seantiz/aigrace/internal/stats"
	"github.com/seantiz/aigrace/internal/store"
)

// app is the wired verification stack shared by batch and serve.
type app struct {
	logger   *slog.Logger
	store    store.Store
	backend  *abc.Backend
	registry *backend.Registry
	runner   *runner.Runner
}

type appOptions struct {
	DBPath           string
	WorkDir          string
	StatsSource      stats.Source
	TransformTimeout time.Duration
}

func newApp(abcCfg abc.Config, ao appOptions, logger *slog.Logger) (*app, error) {
	st, err := store.NewSQLiteStore(ao.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := abc.NewBackend(abcCfg, logger)
	reg := backend.NewRegistry()
	reg.Register(abc.BackendName, b)

	p := pipeline.New(b, race.NewRacer(b, logger), pipeline.Options{
		WorkDir:          ao.WorkDir,
		TransformTimeout: ao.TransformTimeout,
	}, logger)
	collector := stats.NewCollector(b, ao.StatsSource, 0, logger)

	return &app{
		logger:   logger,
		store:    st,
		backend:  b,
		registry: reg,
		runner:   runner.New(st, p, collector, logger),
	}, nil
}

// Close stops outstanding runs and closes the database.
func (a *app) Close() {
	a.runner.Shutdown()
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// requireTool fails fast when bin cannot be found.
func requireTool(bin string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return WrapExitError(ExitCommandError, "abc binary not found", err)
	}
	return nil
}

// parseEngines validates engine names from flags or configuration.
func parseEngines(names []string) ([]model.Engine, error) {
	if len(names) == 0 {
		return nil, NewExitError(ExitCommandError, "at least one engine is required")
	}
	engines, err := model.ParseEngines(names)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid engines", err)
	}
	return engines, nil
}

// parseStages turns repeated name=commands flags into stages. No flags
// selects the default simplification; noTransform disables stages.
func parseStages(flags []string, noTransform bool) ([]pipeline.Stage, error) {
	if noTransform {
		if len(flags) > 0 {
			return nil, NewExitError(ExitCommandError, "--stage and --no-transform are mutually exclusive")
		}
		return nil, nil
	}
	if len(flags) == 0 {
		return pipeline.DefaultStages, nil
	}
	stages := make([]pipeline.Stage, 0, len(flags))
	for _, f := range flags {
		st, err := pipeline.ParseStage(f)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid stage", err)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

func parseTimeout(d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, NewExitError(ExitCommandError, "timeout must be positive")
	}
	return d, nil
}

func parseStatsSource(s string) (stats.Source, error) {
	src, err := stats.ParseSource(s)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid stats source", err)
	}
	return src, nil
}

var errNoDatasets = errors.New("no datasets given: pass paths or --manifest")
