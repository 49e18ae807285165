package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/pipeline"
	"github.com/seantiz/aigrace/internal/stats"
	"github.com/seantiz/aigrace/internal/store"
)

// DefaultTimeout is the per-engine budget when a request names none.
const DefaultTimeout = 120 * time.Second

var (
	// ErrNotActive is returned by Cancel for runs that are not executing.
	ErrNotActive = errors.New("run is not active")
	// ErrClosed is returned by Submit once Shutdown has begun.
	ErrClosed = errors.New("runner is shut down")
)

// Request describes one verification run.
type Request struct {
	Dataset string
	Engines []model.Engine
	// Timeout is the per-engine budget. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Stages run before the race; empty races the dataset directly.
	Stages []pipeline.Stage
}

// Outcome is what a finished run produced. Stats are reported even when the
// run failed.
type Outcome struct {
	RunID      string
	Stats      stats.Stats
	StatsKnown bool
	Result     model.EngineResult
}

// Runner executes verification runs.
type Runner struct {
	store     store.Store
	pipeline  *pipeline.Pipeline
	collector *stats.Collector
	logger    *slog.Logger
	broker    *LogBroker
	wg        sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// New creates a runner.
func New(s store.Store, p *pipeline.Pipeline, c *stats.Collector, logger *slog.Logger) *Runner {
	return &Runner{
		store:     s,
		pipeline:  p,
		collector: c,
		logger:    logger,
		broker:    NewLogBroker(),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Broker returns the runner's log broker for live subscriptions.
func (r *Runner) Broker() *LogBroker {
	return r.broker
}

func (req Request) withDefaults() Request {
	if req.Timeout <= 0 {
		req.Timeout = DefaultTimeout
	}
	return req
}

func newRun(req Request) *model.Run {
	return &model.Run{
		ID:        model.NewID(),
		Status:    model.StatusPending,
		Dataset:   req.Dataset,
		Engines:   req.Engines,
		TimeoutS:  int((req.Timeout + time.Second - 1) / time.Second),
		CreatedAt: time.Now().UTC(),
	}
}

// Submit records a pending run and executes it in the background. The run
// outlives ctx; use Cancel to stop it.
func (r *Runner) Submit(ctx context.Context, req Request) (*model.Run, error) {
	req = req.withDefaults()
	run := newRun(req)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := r.admit(run.ID, cancel); err != nil {
		cancel()
		return nil, err
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		r.untrack(run.ID)
		cancel()
		r.wg.Done()
		return nil, fmt.Errorf("create run: %w", err)
	}

	runCopy := *run
	go func() {
		defer r.wg.Done()
		defer cancel()
		if _, err := r.execute(runCtx, &runCopy, req); err != nil {
			r.logger.Warn("run failed", "run_id", runCopy.ID, "error", err)
		}
	}()
	return run, nil
}

// admit registers a background run unless the runner is shutting down.
// Registration and the closed check share the lock so Shutdown either
// rejects a submission or cancels and waits for it.
func (r *Runner) admit(id string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.wg.Add(1)
	r.cancels[id] = cancel
	return nil
}

// Execute records a run and executes it on the calling goroutine. The error
// is non-nil when the run could not produce a verdict; the outcome still
// carries whatever was learned before the failure.
func (r *Runner) Execute(ctx context.Context, req Request) (Outcome, error) {
	req = req.withDefaults()
	run := newRun(req)
	if err := r.store.CreateRun(ctx, run); err != nil {
		return Outcome{RunID: run.ID}, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.track(run.ID, cancel)

	return r.execute(runCtx, run, req)
}

// Cancel stops a pending or running run, killing its tool processes.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotActive
	}
	cancel()
	return nil
}

// Active returns the number of runs currently tracked as pending or running.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// CancelAll stops every active run.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
}

// Shutdown rejects further submissions, cancels every active run and waits
// for background runs to finish.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Wait blocks until all submitted runs finish.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[id] = cancel
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, id)
}

// execute drives run through pending→running→completed|failed|cancelled.
func (r *Runner) execute(ctx context.Context, run *model.Run, req Request) (out Outcome, err error) {
	out.RunID = run.ID
	runsInFlight.Inc()
	defer runsInFlight.Dec()
	defer r.untrack(run.ID)
	defer r.broker.Close(run.ID)

	// Store writes must land even after ctx is cancelled.
	persist := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("run %s panicked: %v", run.ID, p)
			r.logger.Error("run panicked", "run_id", run.ID, "panic", p)
			r.finish(persist, run, model.StatusFailed, err.Error())
		}
	}()

	if ctx.Err() != nil {
		r.finish(persist, run, model.StatusCancelled, "cancelled before start")
		return out, ctx.Err()
	}

	if err := r.store.UpdateRunStatus(persist, run.ID, model.StatusRunning); err != nil {
		r.logger.Error("failed to transition to running", "run_id", run.ID, "error", err)
		r.finish(persist, run, model.StatusFailed, fmt.Sprintf("failed to start: %v", err))
		return out, fmt.Errorf("start run: %w", err)
	}
	now := time.Now().UTC()
	run.Status = model.StatusRunning
	run.StartedAt = &now

	r.logger.Info("run started",
		"run_id", run.ID,
		"dataset", run.Dataset,
		"engines", run.Engines,
		"timeout_s", run.TimeoutS,
	)

	out.Stats, out.StatsKnown = r.collector.Collect(ctx, req.Dataset)
	if out.StatsKnown {
		run.Inputs = &out.Stats.Inputs
		run.Latches = &out.Stats.Latches
		run.Ands = &out.Stats.Ands
	}

	var logSeq, resultSeq atomic.Int32
	res, err := r.pipeline.Verify(ctx, pipeline.Request{
		ID:       run.ID,
		Artifact: req.Dataset,
		Stages:   req.Stages,
		Engines:  req.Engines,
		Timeout:  req.Timeout,
		LogWriter: func(source, line string) {
			tagged := source + ": " + line
			r.logger.Debug("tool output", "run_id", run.ID, "source", source, "line", line)
			seq := int(logSeq.Add(1) - 1)
			if err := r.store.InsertLogLine(persist, run.ID, seq, tagged); err != nil {
				r.logger.Error("failed to persist log line", "run_id", run.ID, "seq", seq, "error", err)
			}
			r.broker.Publish(run.ID, tagged)
		},
		OnResult: func(er model.EngineResult) {
			seq := int(resultSeq.Add(1) - 1)
			if err := r.store.InsertEngineResult(persist, run.ID, seq, er); err != nil {
				r.logger.Error("failed to persist engine result", "run_id", run.ID, "seq", seq, "error", err)
			}
		},
	})
	out.Result = res

	if err != nil {
		if ctx.Err() != nil {
			r.finish(persist, run, model.StatusCancelled, "cancelled")
			return out, fmt.Errorf("run %s: %w", run.ID, ctx.Err())
		}
		r.finish(persist, run, model.StatusFailed, err.Error())
		return out, fmt.Errorf("run %s: %w", run.ID, err)
	}

	run.Verdict = res.Verdict
	run.Engine = res.Engine
	if res.Elapsed != nil {
		ms := int(res.Elapsed.Milliseconds())
		run.ElapsedMS = &ms
	}
	r.finish(persist, run, model.StatusCompleted, "")

	r.logger.Info("run finished",
		"run_id", run.ID,
		"verdict", string(res.Verdict),
		"engine", res.Engine.String(),
	)
	return out, nil
}

// finish writes the terminal state of run.
func (r *Runner) finish(ctx context.Context, run *model.Run, status, errMsg string) {
	now := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	if status != model.StatusCompleted {
		run.Verdict = ""
		run.Engine = model.EngineNone
		run.ElapsedMS = nil
	}

	if err := r.store.UpdateRun(ctx, run); err != nil {
		r.logger.Error("failed to record finished run", "run_id", run.ID, "status", status, "error", err)
	}
	runsTotal.WithLabelValues(status, string(run.Verdict)).Inc()
}
