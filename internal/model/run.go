package model

import (
	"time"

	"github.com/seantiz/aigrace/internal/verdict"
)

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether status is a final run status.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// LogLine represents a single persisted line of engine or transform output.
type LogLine struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// ResultRecord is an engine result as persisted for a run, in arrival order.
type ResultRecord struct {
	RunID     string          `json:"run_id"`
	Seq       int             `json:"seq"`
	Engine    Engine          `json:"engine"`
	Verdict   verdict.Verdict `json:"verdict"`
	ElapsedMS *int            `json:"elapsed_ms,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Run is one verification of one circuit dataset.
type Run struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Dataset   string          `json:"dataset"`
	Engines   []Engine        `json:"engines"`
	TimeoutS  int             `json:"timeout_s"`
	Inputs    *int            `json:"inputs,omitempty"`
	Latches   *int            `json:"latches,omitempty"`
	Ands      *int            `json:"ands,omitempty"`
	Verdict   verdict.Verdict `json:"verdict,omitempty"`
	Engine    Engine          `json:"engine"`
	ElapsedMS *int            `json:"elapsed_ms,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	// FinishedAt is set on every terminal transition.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
