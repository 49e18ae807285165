package abc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/testutil/fakeabc"
)

func newTestBackend(t *testing.T, cfg fakeabc.Config) (*abc.Backend, *fakeabc.Tool) {
	t.Helper()
	tool := fakeabc.Install(t, cfg)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	b := abc.NewBackend(abc.Config{
		Bin:       tool.Bin,
		WorkDir:   tool.Dir,
		KillGrace: 500 * time.Millisecond,
	}, logger)
	return b, tool
}

func TestExecuteCapturesOutput(t *testing.T) {
	b, _ := newTestBackend(t, fakeabc.Config{
		Engines: map[string]fakeabc.Engine{
			"pdr": {Output: "Property proved."},
		},
	})

	var mu sync.Mutex
	var lines []string
	res, err := b.Execute(context.Background(), backend.InvocationSpec{
		ID:       "run-1",
		Label:    "pdr",
		Commands: []string{"read circuit.aig", "pdr", "print_stats"},
		LogWriter: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(res.Output, "Property proved.") {
		t.Errorf("output = %q, want it to contain the engine line", res.Output)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", res.Duration)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 2 || lines[0] != "Property proved." {
		t.Errorf("streamed lines = %q, want engine line then stats line", lines)
	}
}

func TestExecuteTimeoutKillsProcess(t *testing.T) {
	b, tool := newTestBackend(t, fakeabc.Config{
		Engines: map[string]fakeabc.Engine{"bmc": {Hang: true}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Execute(ctx, backend.InvocationSpec{
		Label:    "bmc",
		Commands: []string{"read circuit.aig", "bmc", "print_stats"},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Execute error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Execute returned after %v, want prompt kill", elapsed)
	}

	pids := tool.PIDs(t)
	if len(pids) != 1 {
		t.Fatalf("recorded %d pids, want 1", len(pids))
	}
	if alive := fakeabc.WaitDead(pids, 2*time.Second); len(alive) > 0 {
		t.Errorf("process %v still alive after Execute returned", alive)
	}
}

func TestExecuteLaunchFailure(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	b := abc.NewBackend(abc.Config{Bin: filepath.Join(t.TempDir(), "missing-abc")}, logger)

	_, err := b.Execute(context.Background(), backend.InvocationSpec{
		Label:    "stats",
		Commands: []string{"read circuit.aig", "print_stats"},
	})
	if !errors.Is(err, backend.ErrLaunch) {
		t.Fatalf("Execute error = %v, want ErrLaunch", err)
	}
}

func TestCleanupRemovesHistory(t *testing.T) {
	b, tool := newTestBackend(t, fakeabc.Config{})

	if _, err := b.Execute(context.Background(), backend.InvocationSpec{
		Commands: []string{"read circuit.aig", "print_stats"},
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	history := filepath.Join(tool.Dir, abc.DefaultHistoryFile)
	if _, err := os.Stat(history); err != nil {
		t.Fatalf("expected history file after invocation: %v", err)
	}

	if err := b.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(history); !os.IsNotExist(err) {
		t.Errorf("history file still present after Cleanup: %v", err)
	}

	// A second cleanup with nothing to remove is not an error.
	if err := b.Cleanup(context.Background()); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	b := abc.NewBackend(abc.Config{}, logger)

	caps := b.Capabilities()
	if caps.Name != abc.BackendName {
		t.Errorf("name = %q, want %q", caps.Name, abc.BackendName)
	}
	if caps.Binary != abc.DefaultBin {
		t.Errorf("binary = %q, want %q", caps.Binary, abc.DefaultBin)
	}
	if len(caps.Engines) != 5 {
		t.Errorf("engines = %v, want 5 entries", caps.Engines)
	}
}
