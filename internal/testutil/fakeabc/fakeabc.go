// Package fakeabc installs a scripted stand-in for the ABC binary so process
// level behavior (timeouts, kills, reaping) can be tested without the real
// tool. The fake records the PID and script of every invocation.
package fakeabc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

// Transform behaviors for scripts ending in "write <path>".
const (
	TransformCopy  = "copy"  // copy the input artifact to the output path
	TransformEmpty = "empty" // create a zero-length output
	TransformNone  = "none"  // write nothing
)

// DefaultStats is the summary line printed for print_stats scripts.
const DefaultStats = "top  : i/o =    5/    3  lat =    2  and =     17  lev =  6"

// Engine scripts one engine's behavior.
type Engine struct {
	// Delay before Output is printed.
	Delay time.Duration
	// Output is printed after Delay.
	Output string
	// Hang makes the process sleep until killed.
	Hang bool
}

// Config scripts the fake tool.
type Config struct {
	// Engines is keyed by engine command ("pdr", "bmc", ...). Unlisted engines
	// print an inconclusive line and exit immediately.
	Engines map[string]Engine
	// Transform selects the behavior for write scripts. Default TransformCopy.
	Transform string
	// Stats is printed for print_stats scripts. Default DefaultStats.
	Stats string
	// CheckInput makes every script fail like the real tool when the file
	// named by its leading "read" command does not exist relative to the
	// process working directory.
	CheckInput bool
}

// Tool is an installed fake.
type Tool struct {
	// Bin is the path of the executable script.
	Bin string
	// Dir holds the bookkeeping files and is the suggested work directory.
	Dir string
}

// SkipUnlessSupported skips t when the host cannot run the fake.
func SkipUnlessSupported(t testing.TB) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("/proc not available")
	}
}

// Install writes the fake into a fresh temp directory.
func Install(t testing.TB, cfg Config) *Tool {
	t.Helper()
	SkipUnlessSupported(t)

	dir := t.TempDir()
	bin := filepath.Join(dir, "abc")
	if err := os.WriteFile(bin, []byte(render(dir, cfg)), 0o755); err != nil {
		t.Fatalf("write fake abc: %v", err)
	}
	return &Tool{Bin: bin, Dir: dir}
}

// PIDs returns the PIDs of every invocation so far.
func (tool *Tool) PIDs(t testing.TB) []int {
	t.Helper()
	var pids []int
	for _, line := range tool.readLines(t, "pids") {
		pid, err := strconv.Atoi(line)
		if err != nil {
			t.Fatalf("parse pid %q: %v", line, err)
		}
		pids = append(pids, pid)
	}
	return pids
}

// Invocations returns the scripts of every invocation so far, sorted.
func (tool *Tool) Invocations(t testing.TB) []string {
	t.Helper()
	lines := tool.readLines(t, "invocations")
	sort.Strings(lines)
	return lines
}

// EngineInvocations counts invocations that ran the given engine command.
func (tool *Tool) EngineInvocations(t testing.TB, engine string) int {
	t.Helper()
	n := 0
	for _, s := range tool.Invocations(t) {
		if strings.Contains(s, "; "+engine+";") {
			n++
		}
	}
	return n
}

func (tool *Tool) readLines(t testing.TB, name string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(tool.Dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Alive reports whether pid names a running (non-zombie) process.
func Alive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ...; comm may contain spaces and parens.
	s := string(data)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	state := s[i+2]
	return state != 'Z' && state != 'X'
}

// WaitDead polls until none of pids is alive or the deadline passes, and
// returns the PIDs still alive.
func WaitDead(pids []int, within time.Duration) []int {
	deadline := time.Now().Add(within)
	for {
		var alive []int
		for _, pid := range pids {
			if Alive(pid) {
				alive = append(alive, pid)
			}
		}
		if len(alive) == 0 || time.Now().After(deadline) {
			return alive
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func render(dir string, cfg Config) string {
	stats := cfg.Stats
	if stats == "" {
		stats = DefaultStats
	}
	transform := cfg.Transform
	if transform == "" {
		transform = TransformCopy
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString(`script="$2"` + "\n")
	fmt.Fprintf(&b, "dir=%s\n", quote(dir))
	b.WriteString(`echo $$ >> "$dir/pids"` + "\n")
	b.WriteString(`printf '%s\n' "$script" >> "$dir/invocations"` + "\n")
	b.WriteString(`printf '%s\n' "$script" >> abc.history` + "\n")
	if cfg.CheckInput {
		b.WriteString("in=\"${script#read }\"\nin=\"${in%%;*}\"\n")
		b.WriteString(`if [ ! -f "$in" ]; then` + "\n")
		b.WriteString(`	echo "Error: Cannot open input file \"$in\"."` + "\n")
		b.WriteString("\texit 1\nfi\n")
	}
	b.WriteString(`case "$script" in` + "\n")

	names := make([]string, 0, len(cfg.Engines))
	for name := range cfg.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e := cfg.Engines[name]
		fmt.Fprintf(&b, "*%s*)\n", quote("; "+name+";"))
		if e.Hang {
			b.WriteString("\texec sleep 3600\n")
		} else {
			if e.Delay > 0 {
				fmt.Fprintf(&b, "\tsleep %.3f\n", e.Delay.Seconds())
			}
			fmt.Fprintf(&b, "\tprintf '%%s\\n' %s\n", quote(e.Output))
			fmt.Fprintf(&b, "\tprintf '%%s\\n' %s\n", quote(stats))
		}
		b.WriteString("\t;;\n")
	}

	b.WriteString(`*"; write "*)` + "\n")
	b.WriteString("\tin=\"${script#read }\"\n\tin=\"${in%%;*}\"\n")
	b.WriteString("\tout=\"${script##*; write }\"\n")
	switch transform {
	case TransformCopy:
		b.WriteString("\tcp \"$in\" \"$out\"\n")
	case TransformEmpty:
		b.WriteString("\t: > \"$out\"\n")
	}
	b.WriteString("\techo 'transform done'\n\t;;\n")

	b.WriteString("*print_stats*)\n")
	fmt.Fprintf(&b, "\tprintf '%%s\\n' %s\n", quote(stats))
	b.WriteString("\t;;\n")
	b.WriteString("*)\n\techo 'no verdict'\n\t;;\nesac\n")
	return b.String()
}
