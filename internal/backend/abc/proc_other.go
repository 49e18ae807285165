//go:build !unix

package abc

import "os/exec"

// killGroupOnCancel keeps exec's default cancellation, which kills the
// process itself.
func killGroupOnCancel(_ *exec.Cmd) {}
