//go:build !unix

package runtime

import "os/exec"

// Kills only the direct child on cancellation; process groups are unix-only.
func isolate(cmd *exec.Cmd) {}
