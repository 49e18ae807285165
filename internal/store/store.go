package store

import (
	"context"
	"errors"

	"github.com/seantiz/aigrace/internal/model"
)

// ErrInvalidTransition is returned when a run status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate verification statistics.
type RunStats struct {
	Total          int            `json:"total"`
	CountByStatus  map[string]int `json:"count_by_status"`
	CountByVerdict map[string]int `json:"count_by_verdict"`
	WinsByEngine   map[string]int `json:"wins_by_engine"`
	AvgElapsedMS   float64        `json:"avg_elapsed_ms"`
}

// Store defines the persistence operations for runs.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	UpdateRun(ctx context.Context, r *model.Run) error
	GetRunStats(ctx context.Context) (*RunStats, error)
	InsertEngineResult(ctx context.Context, runID string, seq int, res model.EngineResult) error
	GetEngineResults(ctx context.Context, runID string) ([]model.ResultRecord, error)
	InsertLogLine(ctx context.Context, runID string, seq int, line string) error
	GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error)
	Close() error
}
