package race_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/race"
	"github.com/seantiz/aigrace/internal/testutil/fakeabc"
	"github.com/seantiz/aigrace/internal/verdict"
)

func TestRaceKillsLosingProcesses(t *testing.T) {
	tool := fakeabc.Install(t, fakeabc.Config{
		Engines: map[string]fakeabc.Engine{
			"pdr": {Delay: 300 * time.Millisecond, Output: "Property proved."},
			"bmc": {Hang: true},
			"sim": {Hang: true},
		},
	})
	b := abc.NewBackend(abc.Config{
		Bin:       tool.Bin,
		WorkDir:   tool.Dir,
		KillGrace: 500 * time.Millisecond,
	}, discardLogger())
	r := race.NewRacer(b, discardLogger())

	res := r.Race(context.Background(), race.Spec{
		ID:       "e2e",
		Artifact: "circuit.aig",
		Engines:  engines("pdr", "bmc", "sim"),
		Timeout:  10 * time.Second,
	})

	if res.Verdict != verdict.UNSAT || res.Engine != model.EnginePDR {
		t.Fatalf("outcome = %+v, want UNSAT from pdr", res)
	}
	secs, _ := res.Seconds()
	if secs < 0.3 || secs >= 10 {
		t.Errorf("elapsed = %.3fs, want between the engine delay and the timeout", secs)
	}

	pids := tool.PIDs(t)
	if len(pids) != 3 {
		t.Fatalf("recorded %d processes, want 3", len(pids))
	}
	for _, pid := range pids {
		if fakeabc.Alive(pid) {
			t.Errorf("process %d still alive after Race returned", pid)
		}
	}
}

func TestRaceRelativeArtifactWithSeparateWorkDir(t *testing.T) {
	tool := fakeabc.Install(t, fakeabc.Config{
		CheckInput: true,
		Engines: map[string]fakeabc.Engine{
			"pdr": {Output: "Property proved."},
			"bmc": {Hang: true},
		},
	})
	cwd := t.TempDir()
	if err := os.WriteFile(filepath.Join(cwd, "circuit.aig"), []byte("aig 0 0 0 0 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(cwd)

	b := abc.NewBackend(abc.Config{
		Bin:       tool.Bin,
		WorkDir:   tool.Dir,
		KillGrace: 500 * time.Millisecond,
	}, discardLogger())
	r := race.NewRacer(b, discardLogger())

	res := r.Race(context.Background(), race.Spec{
		Artifact: "circuit.aig",
		Engines:  engines("pdr", "bmc"),
		Timeout:  10 * time.Second,
	})

	if res.Verdict != verdict.UNSAT || res.Engine != model.EnginePDR {
		t.Fatalf("outcome = %+v, want UNSAT from pdr", res)
	}
}
