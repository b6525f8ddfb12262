// Package runtime runs external build tools as host subprocesses.
//
// A [Runtime] holds the base environment every process inherits. Each
// invocation is described as an OCI runtime-spec process (arguments,
// environment, working directory) and started in its own process group, so
// that a timeout or cancellation kills the tool together with everything it
// spawned. A non-zero exit code is not an error at this level; callers
// decide what it means.
//
// Example usage:
//
//	rt := runtime.New(nil)
//
//	result, err := rt.ExecArgs(ctx, []string{"make", "-j8"}, []string{"CFLAGS=-O2"}, srcDir)
//	if err != nil {
//	    return err
//	}
//	if result.ExitCode != 0 {
//	    return fmt.Errorf("make exited with %d: %s", result.ExitCode, result.Stderr)
//	}
package runtime
