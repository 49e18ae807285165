package e2e

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/aigrace/internal/testutil/fakeabc"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running server subprocess and its output.
type serverProc struct {
	cmd    *exec.Cmd
	stderr *lockedBuffer
	url    string
	tool   *fakeabc.Tool
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "aigrace-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "aigrace")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/aigrace")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

// toolEnv points the binary at tool and keeps every file it writes inside
// temporary directories.
func toolEnv(t *testing.T, tool *fakeabc.Tool) []string {
	t.Helper()
	return append(os.Environ(),
		"AIGRACE_ABC_BIN="+tool.Bin,
		"AIGRACE_ABC_WORK_DIR="+tool.Dir,
		"AIGRACE_WORK_DIR="+filepath.Join(t.TempDir(), "temp"),
		"AIGRACE_LOG_FORMAT=json",
		"AIGRACE_LOG_LEVEL=info",
	)
}

func startServer(t *testing.T, cfg fakeabc.Config) *serverProc {
	t.Helper()
	binary := getBinary(t)
	tool := fakeabc.Install(t, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	stderr := &lockedBuffer{}
	cmd := exec.Command(binary, "serve")
	cmd.Env = append(toolEnv(t, tool),
		"AIGRACE_LISTEN_ADDR="+addr,
		"AIGRACE_DB_PATH="+filepath.Join(t.TempDir(), "test.db"),
		"AIGRACE_TIMEOUT=10",
	)
	cmd.Stdout = stderr
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:    cmd,
		stderr: stderr,
		url:    "http://" + addr,
		tool:   tool,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\noutput:\n%s", startupTimeout, stderr.String())
	return nil
}

func writeCircuit(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("aig 0 0 0 0 0\n"), 0o644); err != nil {
		t.Fatalf("write circuit: %v", err)
	}
	return path
}
