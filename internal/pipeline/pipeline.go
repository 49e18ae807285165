// Package pipeline applies transformation stages to a circuit and races the
// engines against the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/race"
)

// Options configures a Pipeline.
type Options struct {
	// WorkDir holds transformed artifacts. Each invocation uses its own
	// subdirectory, removed when the invocation returns.
	WorkDir string
	// TransformTimeout bounds each stage. Zero means no bound.
	TransformTimeout time.Duration
}

// Request describes one verification.
type Request struct {
	ID       string
	Artifact string
	// Stages run in order; each consumes the previous stage's output.
	// An empty list races Artifact directly.
	Stages  []Stage
	Engines []model.Engine
	Timeout time.Duration
	// LogWriter receives raw tool output tagged with the stage or engine
	// that produced it. Optional.
	LogWriter func(source, line string)
	// OnResult observes every engine result the race consumes. Optional.
	OnResult func(model.EngineResult)
}

// Pipeline runs transform-then-race verifications.
type Pipeline struct {
	backend backend.Backend
	racer   *race.Racer
	opts    Options
	logger  *slog.Logger
}

// New creates a pipeline that runs transforms through b and races with racer.
func New(b backend.Backend, racer *race.Racer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Pipeline{backend: b, racer: racer, opts: opts, logger: logger}
}

// TransformAndVerify applies one stage to artifact and races engines against
// the result.
func (p *Pipeline) TransformAndVerify(ctx context.Context, artifact string, st Stage, engines []model.Engine, timeout time.Duration) (model.EngineResult, error) {
	return p.Verify(ctx, Request{
		Artifact: artifact,
		Stages:   []Stage{st},
		Engines:  engines,
		Timeout:  timeout,
	})
}

// Verify runs every stage and then the race. A stage that leaves no usable
// artifact ends the verification with FAIL and no engine is started. The
// only error is a tool that could not be launched, or a cancelled ctx.
func (p *Pipeline) Verify(ctx context.Context, req Request) (model.EngineResult, error) {
	for _, st := range req.Stages {
		if err := st.Validate(); err != nil {
			return model.Failed(), err
		}
	}

	current, err := filepath.Abs(req.Artifact)
	if err != nil {
		return model.Failed(), fmt.Errorf("resolve artifact: %w", err)
	}

	if len(req.Stages) > 0 {
		dir, err := p.scratchDir(req.ID)
		if err != nil {
			return model.Failed(), err
		}
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				p.logger.Warn("remove transformed artifacts", "dir", dir, "error", err)
			}
		}()

		for _, st := range req.Stages {
			out, ok, err := p.transform(ctx, req, dir, current, st)
			if err != nil {
				return model.Failed(), err
			}
			if ctx.Err() != nil {
				return model.Inconclusive(), ctx.Err()
			}
			if !ok {
				return model.Failed(), nil
			}
			current = out
		}
	}

	var logWriter func(model.Engine, string)
	if req.LogWriter != nil {
		logWriter = func(e model.Engine, line string) { req.LogWriter(e.String(), line) }
	}
	res := p.racer.Race(ctx, race.Spec{
		ID:        req.ID,
		Artifact:  current,
		Engines:   req.Engines,
		Timeout:   req.Timeout,
		LogWriter: logWriter,
		OnResult:  req.OnResult,
	})
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (p *Pipeline) scratchDir(id string) (string, error) {
	base, err := filepath.Abs(p.opts.WorkDir)
	if err != nil {
		return "", fmt.Errorf("resolve work dir: %w", err)
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	pattern := "verify-*"
	if id != "" {
		pattern = id + "-*"
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}
	return dir, nil
}

// transform runs one stage. It reports false when the stage produced no
// usable artifact.
func (p *Pipeline) transform(ctx context.Context, req Request, dir, in string, st Stage) (string, bool, error) {
	out := filepath.Join(dir, st.Name+"_"+filepath.Base(in))

	if p.opts.TransformTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TransformTimeout)
		defer cancel()
	}

	spec := backend.InvocationSpec{
		ID:       req.ID,
		Label:    st.Name,
		Commands: []string{"read " + in, st.Commands, "write " + out},
	}
	if req.LogWriter != nil {
		spec.LogWriter = func(line string) { req.LogWriter(st.Name, line) }
	}

	_, err := p.backend.Execute(ctx, spec)
	if err != nil {
		if errors.Is(err, backend.ErrLaunch) {
			transformsTotal.WithLabelValues(st.Name, "error").Inc()
			return "", false, fmt.Errorf("transform %s: %w", st.Name, err)
		}
		p.logger.Warn("transform failed",
			"id", req.ID,
			"stage", st.Name,
			"artifact", in,
			"error", err,
		)
		transformsTotal.WithLabelValues(st.Name, "fail").Inc()
		return "", false, nil
	}

	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		p.logger.Warn("transform produced no artifact",
			"id", req.ID,
			"stage", st.Name,
			"artifact", in,
		)
		transformsTotal.WithLabelValues(st.Name, "fail").Inc()
		return "", false, nil
	}

	transformsTotal.WithLabelValues(st.Name, "ok").Inc()
	return out, true, nil
}
