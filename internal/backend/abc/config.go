package abc

import (
	"os"
	"time"
)

// Environment variable names for ABC backend configuration.
const (
	envBin         = "AIGRACE_ABC_BIN"
	envWorkDir     = "AIGRACE_ABC_WORK_DIR"
	envHistoryFile = "AIGRACE_HISTORY_FILE"
	envKillGrace   = "AIGRACE_KILL_GRACE"
)

// Config holds configuration for the ABC process backend.
type Config struct {
	// Bin is the path (or PATH-resolved name) of the ABC binary.
	Bin string

	// WorkDir is the working directory of every ABC process. Empty means the
	// current directory of aigrace itself.
	WorkDir string

	// HistoryFile is the name of the history file ABC leaves in WorkDir.
	HistoryFile string

	// KillGrace bounds output draining after a forced kill.
	KillGrace time.Duration
}

// LoadConfig reads ABC backend configuration from environment variables,
// applying defaults for values not set.
func LoadConfig() Config {
	cfg := Config{
		Bin:         DefaultBin,
		HistoryFile: DefaultHistoryFile,
		KillGrace:   DefaultKillGrace,
	}

	if v := os.Getenv(envBin); v != "" {
		cfg.Bin = v
	}
	if v := os.Getenv(envWorkDir); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv(envHistoryFile); v != "" {
		cfg.HistoryFile = v
	}
	if v := os.Getenv(envKillGrace); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.KillGrace = d
		}
	}

	return cfg
}
