package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cruciblehq/kiln/internal"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Grace period for output pipes after the process exits or is killed.
const waitDelay = 2 * time.Second

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Output of a command execution.
type ExecResult struct {
	ExitCode int    // Exit code of the process; -1 if it was killed by a signal.
	Stdout   string // Captured standard output.
	Stderr   string // Captured standard error.
}

// Runs args directly and captures its output.
func (rt *Runtime) ExecArgs(ctx context.Context, args []string, env []string, workdir string) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	exitCode, err := rt.ExecStream(ctx, args, env, workdir, &stdout, &stderr)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Runs args, streaming its output to stdout and stderr, and returns the exit
// code.
//
// Nil writers discard the stream. If ctx ends while the process runs, the
// whole process group is killed and internal.ErrTimeout or
// internal.ErrCancelled is returned. A process that cannot be started fails
// with ErrRuntime.
func (rt *Runtime) ExecStream(ctx context.Context, args []string, env []string, workdir string, stdout, stderr io.Writer) (int, error) {
	if len(args) == 0 || args[0] == "" {
		return 0, ErrEmptyArgs
	}
	if err := internal.Interrupted(ctx); err != nil {
		return 0, err
	}

	pspec := rt.buildProcessSpec(env, workdir, args...)
	return execProcess(ctx, pspec, stdout, stderr)
}

// Starts the process described by pspec, waits for it to exit, and returns
// the exit code.
func execProcess(ctx context.Context, pspec *specs.Process, stdout, stderr io.Writer) (int, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	cmd := exec.CommandContext(ctx, lookPath(pspec.Args[0], pspec.Env), pspec.Args[1:]...)
	cmd.Args[0] = pspec.Args[0]
	cmd.Env = pspec.Env
	cmd.Dir = pspec.Cwd
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	id := nextExecID()
	slog.Debug("starting process", "id", id, "args", strings.Join(pspec.Args, " "), "dir", pspec.Cwd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: starting %s: %w", ErrRuntime, pspec.Args[0], err)
	}

	err := cmd.Wait()
	if ierr := internal.Interrupted(ctx); ierr != nil {
		slog.Debug("process interrupted", "id", id, "error", ierr)
		return 0, fmt.Errorf("%s: %w", pspec.Args[0], ierr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		slog.Debug("process exited", "id", id, "code", exitErr.ExitCode())
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("%w: waiting for %s: %w", ErrRuntime, pspec.Args[0], err)
}

// Merges override env vars on top of a base env slice. The result is sorted
// so that processes see a stable environment.
func mergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}
	for _, entry := range overrides {
		if k, v, ok := strings.Cut(entry, "="); ok {
			merged[k] = v
		}
	}

	result := make([]string, 0, len(merged))
	for k, v := range merged {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// Resolves a bare program name against the PATH entry of env.
//
// The process environment may prepend directories the current process does
// not search, such as the bin directories of dependencies. Names containing
// a separator, and names not found, are returned unchanged.
func lookPath(name string, env []string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	var path string
	for _, entry := range env {
		if v, ok := strings.CutPrefix(entry, "PATH="); ok {
			path = v
		}
	}
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return candidate
		}
	}
	return name
}
