package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/pipeline"
	"github.com/seantiz/aigrace/internal/race"
	"github.com/seantiz/aigrace/internal/runner"
	"github.com/seantiz/aigrace/internal/stats"
	"github.com/seantiz/aigrace/internal/store"
	"github.com/seantiz/aigrace/internal/testutil/fakeabc"
)

var testDefaults = Defaults{
	Engines: []model.Engine{model.EnginePDR, model.EngineBMC},
	Timeout: 5 * time.Second,
	Stages:  pipeline.DefaultStages,
}

// newTestServer builds a server whose tool binary does not exist. Handlers
// that never start a run are fully usable.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	return buildServer(t, filepath.Join(dir, "missing-abc"), dir)
}

// newToolServer builds a server backed by a scripted fake tool.
func newToolServer(t *testing.T, cfg fakeabc.Config) *Server {
	t.Helper()
	tool := fakeabc.Install(t, cfg)
	return buildServer(t, tool.Bin, tool.Dir)
}

func buildServer(t *testing.T, bin, workDir string) *Server {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	b := abc.NewBackend(abc.Config{Bin: bin, WorkDir: workDir, KillGrace: 500 * time.Millisecond}, logger)
	reg := backend.NewRegistry()
	reg.Register(backend.DefaultName, b)

	p := pipeline.New(b, race.NewRacer(b, logger), pipeline.Options{WorkDir: t.TempDir()}, logger)
	r := runner.New(s, p, stats.NewCollector(b, stats.SourceTool, 0, logger), logger)
	t.Cleanup(func() {
		r.CancelAll()
		r.Wait()
	})

	return NewServer(":0", s, reg, r, testDefaults, logger)
}

// writeDataset creates a placeholder circuit file the fake tool can read.
func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counter.aig")
	if err := os.WriteFile(path, []byte("aig 0 0 0 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// seedRun stores a run and walks it through the given statuses.
func seedRun(t *testing.T, srv *Server, statuses ...string) *model.Run {
	t.Helper()
	ctx := context.Background()
	run := &model.Run{
		ID:        model.NewID(),
		Status:    model.StatusPending,
		Dataset:   "dataset/counter.aig",
		Engines:   testDefaults.Engines,
		TimeoutS:  5,
		CreatedAt: time.Now().UTC(),
	}
	if err := srv.store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for _, st := range statuses {
		if err := srv.store.UpdateRunStatus(ctx, run.ID, st); err != nil {
			t.Fatalf("→%s: %v", st, err)
		}
		run.Status = st
	}
	return run
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/v1/runs", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /v1/runs: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t)
	srv.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
