// Package runner executes verification runs: it records each run in the
// store, collects circuit statistics, drives the transform-and-race pipeline,
// and streams tool output to live subscribers. Runs may be executed inline or
// submitted for background execution and cancelled by ID.
package runner
