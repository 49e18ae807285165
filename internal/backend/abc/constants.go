package abc

import "time"

// Backend constants.
const (
	// BackendName is the name used when registering with the backend registry.
	BackendName = "abc"

	// DefaultBin is the tool binary looked up on PATH when none is configured.
	DefaultBin = "abc"

	// DefaultHistoryFile is the command history ABC writes into its working
	// directory on every invocation.
	DefaultHistoryFile = "abc.history"

	// DefaultKillGrace bounds how long Execute waits for output pipes to drain
	// after the process group has been killed.
	DefaultKillGrace = 2 * time.Second
)

// Invocation status label values.
const (
	statusCompleted    = "completed"
	statusKilled       = "killed"
	statusLaunchFailed = "launch_failed"
	statusError        = "error"
)
