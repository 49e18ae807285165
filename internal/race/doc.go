// Package race runs several verification engines against one circuit at the
// same time and accepts the first conclusive verdict.
//
// Each engine runs in its own goroutine driving its own tool process. Results
// flow to the orchestrator over one buffered channel; the first SAT or UNSAT
// result wins, every other process is killed, and Race returns only after all
// workers have reported back.
package race
