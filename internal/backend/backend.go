package backend

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrLaunch is returned (wrapped) when the external tool could not be started
// at all, as opposed to starting and then failing or timing out.
var ErrLaunch = errors.New("launch external tool")

// Backend is the interface that all tool backends must implement. Each call to
// Execute runs one fresh, isolated invocation of the tool.
type Backend interface {
	// Execute runs the script described by spec and returns its combined output.
	// The context carries the time budget; when it is done the invocation is
	// killed and reaped before Execute returns.
	Execute(ctx context.Context, spec InvocationSpec) (InvocationResult, error)

	// Capabilities reports what this backend runs and where.
	Capabilities() Capabilities

	// Cleanup removes incidental state the tool leaves behind (history files).
	Cleanup(ctx context.Context) error
}

// InvocationSpec describes one tool invocation.
type InvocationSpec struct {
	// ID correlates the invocation with a run in logs and metrics.
	ID string `json:"id"`

	// Label names the invocation kind ("pdr", "simplify", "stats").
	Label string `json:"label"`

	// Commands are the tool commands, executed in order.
	Commands []string `json:"commands"`

	// LogWriter is an optional callback that receives each output line as it is
	// produced. It is advisory and must not block.
	LogWriter func(line string) `json:"-"`
}

// Script joins the commands into the tool's command-line script form.
func (s InvocationSpec) Script() string {
	return Script(s.Commands...)
}

// Script joins tool commands with "; ".
func Script(commands ...string) string {
	parts := make([]string, 0, len(commands))
	for _, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "; ")
}

// InvocationResult holds what a backend observed from one invocation.
type InvocationResult struct {
	// Output is the combined stdout and stderr text.
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Capabilities describes a backend.
type Capabilities struct {
	Name    string   `json:"name"`
	Binary  string   `json:"binary"`
	WorkDir string   `json:"work_dir"`
	Engines []string `json:"engines"`
}
