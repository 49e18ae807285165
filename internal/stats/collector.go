package stats

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/seantiz/aigrace/internal/backend"
)

// Source selects where circuit figures come from.
type Source string

const (
	// SourceTool runs print_stats through the backend.
	SourceTool Source = "abc"
	// SourceNative parses the AIGER file in-process.
	SourceNative Source = "native"
	// SourceAuto tries the tool first and falls back to native parsing.
	SourceAuto Source = "auto"
)

// ParseSource validates a source name. The empty string selects SourceTool.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "":
		return SourceTool, nil
	case SourceTool, SourceNative, SourceAuto:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown stats source %q: must be abc, native or auto", s)
}

// Collector gathers circuit figures for artifacts.
type Collector struct {
	backend backend.Backend
	source  Source
	timeout time.Duration
	logger  *slog.Logger
}

// NewCollector creates a collector. timeout bounds each tool invocation;
// zero means no bound.
func NewCollector(b backend.Backend, source Source, timeout time.Duration, logger *slog.Logger) *Collector {
	if source == "" {
		source = SourceTool
	}
	return &Collector{backend: b, source: source, timeout: timeout, logger: logger}
}

// Collect returns the figures for artifact and whether they are known.
// Failures are logged, never returned. A relative artifact is resolved
// against the caller's working directory, not the tool's.
func (c *Collector) Collect(ctx context.Context, artifact string) (Stats, bool) {
	if abs, err := filepath.Abs(artifact); err == nil {
		artifact = abs
	}
	switch c.source {
	case SourceNative:
		return c.native(artifact)
	case SourceAuto:
		if st, ok := c.tool(ctx, artifact); ok {
			return st, true
		}
		return c.native(artifact)
	default:
		return c.tool(ctx, artifact)
	}
}

func (c *Collector) tool(ctx context.Context, artifact string) (Stats, bool) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.backend.Execute(ctx, backend.InvocationSpec{
		Label:    "stats",
		Commands: []string{"read " + artifact, "print_stats"},
	})
	if err != nil {
		c.logger.Warn("stats invocation failed", "artifact", artifact, "error", err)
		return Stats{}, false
	}
	st, ok := Extract(res.Output)
	if !ok {
		c.logger.Warn("no stats line in tool output", "artifact", artifact)
	}
	return st, ok
}

func (c *Collector) native(artifact string) (Stats, bool) {
	st, err := Inspect(artifact)
	if err != nil {
		c.logger.Warn("native stats failed", "artifact", artifact, "error", err)
		return Stats{}, false
	}
	return st, true
}
