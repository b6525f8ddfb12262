package build

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrBuild               = errors.New("build failed")
	ErrExternalToolFailed  = internal.NewClassError("external tool failed", errdefs.ErrAborted)
	ErrUnsafePath          = internal.NewClassError("path outside build directories", errdefs.ErrPermissionDenied)
	ErrFileSystemOperation = errors.New("file system operation failed")
)

// Reports an external tool that exited unsuccessfully or could not start.
type ExternalToolError struct {
	Tool     string   // Program that was run.
	Args     []string // Its arguments.
	ExitCode int      // Exit status; -1 if the tool was killed or never started.
	Output   string   // Tail of the combined output.
	Err      error    // Start failure, if any.
}

func (e *ExternalToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrExternalToolFailed, e.Tool, e.Err)
	}
	msg := fmt.Sprintf("%s: %s exited with status %d", ErrExternalToolFailed, e.Tool, e.ExitCode)
	if out := lastLines(e.Output, 5); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ExternalToolError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExternalToolFailed, e.Err}
	}
	return []error{ErrExternalToolFailed}
}

// Returns the last n non-empty lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
