package race

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/verdict"
)

// WorkerSpec describes one engine invocation.
type WorkerSpec struct {
	// ID correlates the invocation with its run.
	ID       string
	Artifact string
	Engine   model.Engine
	// Timeout is the engine's wall-clock budget. Zero or negative means none.
	Timeout time.Duration
	// LogWriter receives raw output lines as they are produced. Optional.
	LogWriter func(line string)
}

// Worker invokes one engine against one artifact and classifies the output.
type Worker struct {
	backend backend.Backend
	logger  *slog.Logger
}

// NewWorker creates a worker that runs engines through b.
func NewWorker(b backend.Backend, logger *slog.Logger) *Worker {
	return &Worker{backend: b, logger: logger}
}

// EngineCommands returns the tool script that runs engine e on artifact.
func EngineCommands(artifact string, e model.Engine) []string {
	return []string{"read " + artifact, e.Command(), "print_stats"}
}

// Run invokes the engine and returns exactly one result. It never fails:
// a budget overrun yields TIMEOUT with the budget as elapsed time, and any
// other failure, including a panic, yields UNKNOWN. The tool process has
// been reaped by the time Run returns.
func (w *Worker) Run(ctx context.Context, spec WorkerSpec) (res model.EngineResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("engine worker panicked",
				"id", spec.ID,
				"engine", spec.Engine.String(),
				"panic", p,
			)
			res = model.NewEngineResult(verdict.Unknown, spec.Engine, time.Since(start))
		}
		engineResultsTotal.WithLabelValues(spec.Engine.String(), string(res.Verdict)).Inc()
	}()

	runCtx, cancel := budget(ctx, spec.Timeout)
	defer cancel()

	out, err := w.backend.Execute(runCtx, backend.InvocationSpec{
		ID:        spec.ID,
		Label:     spec.Engine.String(),
		Commands:  EngineCommands(absPath(spec.Artifact), spec.Engine),
		LogWriter: spec.LogWriter,
	})
	elapsed := time.Since(start)

	w.logger.Debug("engine output",
		"id", spec.ID,
		"engine", spec.Engine.String(),
		"output", out.Output,
	)

	if err != nil {
		// Only the worker's own deadline counts as a timeout; a cancelled
		// parent means the race is already over.
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return model.NewEngineResult(verdict.Timeout, spec.Engine, spec.Timeout)
		}
		if ctx.Err() == nil {
			w.logger.Warn("engine invocation failed",
				"id", spec.ID,
				"engine", spec.Engine.String(),
				"error", err,
			)
		}
		return model.NewEngineResult(verdict.Unknown, spec.Engine, elapsed)
	}

	return model.NewEngineResult(verdict.Classify(out.Output), spec.Engine, elapsed)
}

// absPath anchors a relative artifact to the caller's working directory; the
// tool runs in its own.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func budget(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
