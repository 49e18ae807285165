package race

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/model"
)

// Spec describes one race.
type Spec struct {
	// ID correlates the race with its run in logs.
	ID       string
	Artifact string
	// Engines are launched in order; order never affects which result wins.
	Engines []model.Engine
	// Timeout is applied to each engine independently.
	Timeout time.Duration
	// LogWriter receives every engine's raw output lines. Optional.
	LogWriter func(e model.Engine, line string)
	// OnResult observes each result consumed by the race, in arrival order,
	// before arbitration. It runs on the race goroutine. Optional.
	OnResult func(model.EngineResult)
}

// Racer runs engine races.
type Racer struct {
	worker *Worker
	logger *slog.Logger
}

// NewRacer creates a racer whose workers run engines through b.
func NewRacer(b backend.Backend, logger *slog.Logger) *Racer {
	return &Racer{
		worker: NewWorker(b, logger),
		logger: logger,
	}
}

// Race launches one worker per engine and returns the first conclusive result,
// or an UNKNOWN outcome with no engine and no elapsed time when every worker
// reports without one. Remaining workers are cancelled and Race blocks until
// all of them have returned, so no tool process outlives the call.
func (r *Racer) Race(ctx context.Context, spec Spec) model.EngineResult {
	if len(spec.Engines) == 0 {
		return model.Inconclusive()
	}

	start := time.Now()
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so a worker finishing after the race is decided never blocks.
	results := make(chan model.EngineResult, len(spec.Engines))
	var wg sync.WaitGroup
	for _, e := range spec.Engines {
		ws := WorkerSpec{
			ID:       spec.ID,
			Artifact: spec.Artifact,
			Engine:   e,
			Timeout:  spec.Timeout,
		}
		if spec.LogWriter != nil {
			ws.LogWriter = func(line string) { spec.LogWriter(e, line) }
		}
		wg.Go(func() {
			results <- r.worker.Run(raceCtx, ws)
		})
	}

	outcome := model.Inconclusive()
	for range spec.Engines {
		res := <-results
		if spec.OnResult != nil {
			spec.OnResult(res)
		}
		r.logger.Info("engine finished",
			"id", spec.ID,
			"engine", res.Engine.String(),
			"verdict", string(res.Verdict),
		)
		if res.Verdict.Conclusive() {
			outcome = res
			break
		}
	}

	cancel()
	wg.Wait()
	close(results)
	for res := range results {
		r.logger.Debug("engine cancelled",
			"id", spec.ID,
			"engine", res.Engine.String(),
			"verdict", string(res.Verdict),
		)
	}

	raceDuration.WithLabelValues(string(outcome.Verdict)).Observe(time.Since(start).Seconds())
	if outcome.Engine.Valid() {
		raceWinsTotal.WithLabelValues(outcome.Engine.String()).Inc()
	}
	return outcome
}
