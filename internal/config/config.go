package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const (
	defaultListenAddr  = ":8080"
	defaultDBPath      = "aigrace.db"
	defaultWorkDir     = "temp"
	defaultTimeout     = 120 * time.Second
	defaultStatsSource = "abc"
	defaultParallel    = 1

	envListenAddr       = "AIGRACE_LISTEN_ADDR"
	envDBPath           = "AIGRACE_DB_PATH"
	envLogLevel         = "AIGRACE_LOG_LEVEL"
	envLogFormat        = "AIGRACE_LOG_FORMAT"
	envWorkDir          = "AIGRACE_WORK_DIR"
	envTimeout          = "AIGRACE_TIMEOUT"
	envEngines          = "AIGRACE_ENGINES"
	envStatsSource      = "AIGRACE_STATS_SOURCE"
	envParallel         = "AIGRACE_PARALLEL"
	envTransformTimeout = "AIGRACE_TRANSFORM_TIMEOUT"
)

// Log formats accepted by NewLogger.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// DefaultEngines is the engine set raced when none is configured.
var DefaultEngines = []string{"pdr", "bmc", "int", "dprove", "sim"}

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	LogFormat  string

	// WorkDir holds transformed artifacts; batches reset it before starting.
	WorkDir string
	// Timeout is the per-engine budget.
	Timeout time.Duration
	// Engines are engine names, validated by the caller.
	Engines     []string
	StatsSource string
	// Parallel bounds concurrently verified datasets in a batch.
	Parallel int
	// TransformTimeout bounds each transform stage. Zero means no bound.
	TransformTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric values are ignored in favour of the default.
func Load() Config {
	cfg := Config{
		ListenAddr:  defaultListenAddr,
		DBPath:      defaultDBPath,
		LogLevel:    slog.LevelInfo,
		LogFormat:   LogFormatJSON,
		WorkDir:     defaultWorkDir,
		Timeout:     defaultTimeout,
		Engines:     append([]string(nil), DefaultEngines...),
		StatsSource: defaultStatsSource,
		Parallel:    defaultParallel,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = ParseLogLevel(v)
	}
	if v := os.Getenv(envLogFormat); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := os.Getenv(envWorkDir); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv(envTimeout); v != "" {
		if d, ok := parseSeconds(v); ok {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv(envEngines); v != "" {
		cfg.Engines = SplitList(v)
	}
	if v := os.Getenv(envStatsSource); v != "" {
		cfg.StatsSource = strings.ToLower(v)
	}
	if v := os.Getenv(envParallel); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Parallel = n
		}
	}
	if v := os.Getenv(envTransformTimeout); v != "" {
		if d, ok := parseSeconds(v); ok {
			cfg.TransformTimeout = d
		}
	}

	return cfg
}

// parseSeconds accepts a Go duration ("90s", "2m") or a bare number of seconds.
func parseSeconds(s string) (time.Duration, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, false
		}
		return time.Duration(n) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w at level. The text
// format is meant for terminals and is colored when w is one; anything else
// selects JSON.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	if format == LogFormatText {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
