package model

import (
	"time"

	"github.com/seantiz/aigrace/internal/verdict"
)

// EngineResult is the single result produced by one engine worker. Values are
// built with the constructors below and never modified afterwards.
type EngineResult struct {
	Verdict verdict.Verdict `json:"verdict"`
	Engine  Engine          `json:"engine"`
	Elapsed *time.Duration  `json:"elapsed_ns,omitempty"`
}

// NewEngineResult returns a result for engine e that took elapsed.
func NewEngineResult(v verdict.Verdict, e Engine, elapsed time.Duration) EngineResult {
	return EngineResult{Verdict: v, Engine: e, Elapsed: &elapsed}
}

// Inconclusive is the race outcome when no engine settles the property.
func Inconclusive() EngineResult {
	return EngineResult{Verdict: verdict.Unknown}
}

// Failed is the outcome of a transform stage that produced no usable artifact.
func Failed() EngineResult {
	return EngineResult{Verdict: verdict.Fail}
}

// Seconds returns the elapsed time in seconds and whether it is known.
func (r EngineResult) Seconds() (float64, bool) {
	if r.Elapsed == nil {
		return 0, false
	}
	return r.Elapsed.Seconds(), true
}
