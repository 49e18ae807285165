// Package abc implements backend.Backend by running the ABC logic synthesis
// and verification tool as a fresh OS process per invocation.
package abc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/model"
)

// Compile-time interface satisfaction check.
var _ backend.Backend = (*Backend)(nil)

// Backend runs `abc -c "<script>"` processes.
type Backend struct {
	cfg    Config
	logger *slog.Logger
}

// NewBackend creates a new ABC backend. Zero-valued config fields fall back
// to the package defaults.
func NewBackend(cfg Config, logger *slog.Logger) *Backend {
	if cfg.Bin == "" {
		cfg.Bin = DefaultBin
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	return &Backend{cfg: cfg, logger: logger}
}

// Execute runs one ABC process for spec. It returns only after the process
// has exited or been killed and reaped. A non-zero exit status is not an
// error: callers judge invocations by their output. The returned error wraps
// backend.ErrLaunch when the binary could not be started, and the context
// error when the invocation was cut short.
func (b *Backend) Execute(ctx context.Context, spec backend.InvocationSpec) (backend.InvocationResult, error) {
	label := spec.Label
	if label == "" {
		label = "invocation"
	}

	cmd := exec.CommandContext(ctx, b.cfg.Bin, "-c", spec.Script())
	cmd.Dir = b.cfg.WorkDir
	cmd.WaitDelay = b.cfg.KillGrace
	killGroupOnCancel(cmd)

	// Both writers share one mutex so LogWriter sees whole lines, one at a time.
	var mu sync.Mutex
	stdout := &lineWriter{mu: &mu, emit: spec.LogWriter}
	stderr := &lineWriter{mu: &mu, emit: spec.LogWriter}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		invocationsTotal.WithLabelValues(label, statusLaunchFailed).Inc()
		return backend.InvocationResult{}, fmt.Errorf("%w: %s: %v", backend.ErrLaunch, b.cfg.Bin, err)
	}

	activeProcesses.Inc()
	b.logger.Debug("abc started",
		"id", spec.ID,
		"label", label,
		"pid", cmd.Process.Pid,
		"script", spec.Script(),
	)

	waitErr := cmd.Wait()
	duration := time.Since(start)
	activeProcesses.Dec()
	invocationDuration.WithLabelValues(label).Observe(duration.Seconds())

	stdout.flush()
	stderr.flush()

	result := backend.InvocationResult{
		Output:   stdout.String() + stderr.String(),
		Duration: duration,
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		invocationsTotal.WithLabelValues(label, statusKilled).Inc()
		return result, fmt.Errorf("abc %s: %w", label, ctx.Err())
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		invocationsTotal.WithLabelValues(label, statusError).Inc()
		return result, fmt.Errorf("abc %s: %w", label, waitErr)
	}

	invocationsTotal.WithLabelValues(label, statusCompleted).Inc()
	return result, nil
}

// Capabilities reports the binary, working directory and known engines.
func (b *Backend) Capabilities() backend.Capabilities {
	engines := make([]string, 0, len(model.AllEngines))
	for _, e := range model.AllEngines {
		engines = append(engines, e.Command())
	}
	return backend.Capabilities{
		Name:    BackendName,
		Binary:  b.cfg.Bin,
		WorkDir: b.cfg.WorkDir,
		Engines: engines,
	}
}

// Cleanup deletes the history file ABC leaves in its working directory.
func (b *Backend) Cleanup(_ context.Context) error {
	path := filepath.Join(b.cfg.WorkDir, b.cfg.HistoryFile)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove history file: %w", err)
	}
	return nil
}

// lineWriter accumulates process output and forwards each complete line to
// emit as it arrives.
type lineWriter struct {
	mu      *sync.Mutex
	emit    func(line string)
	out     bytes.Buffer
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.out.Write(p)
	if w.emit == nil {
		return len(p), nil
	}

	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.pending[:i]), "\r"))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// flush emits a trailing partial line, if any.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.emit != nil && len(w.pending) > 0 {
		w.emit(string(w.pending))
	}
	w.pending = nil
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.String()
}
