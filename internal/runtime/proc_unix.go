//go:build unix

package runtime

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Starts cmd in a new process group and kills the whole group on
// cancellation, so tools spawned by make or configure do not outlive it.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
