package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/runtime"
)

// Name of the tool output log inside the work directory.
const LogFile = "build.log"

// Describes where and how the steps of one recipe run.
type Env struct {
	Name        string            // Recipe name, used in logs and the license directory.
	WorkDir     string            // Scratch directory; holds the build log.
	SourceDir   string            // Default working directory of tools.
	InstallDir  string            // Install directory of the component.
	Jobs        int               // Parallel make jobs; zero means one.
	Vars        map[string]string // Environment seeded by the caller.
	StepTimeout time.Duration     // Per-step limit; zero means none.
	Output      io.Writer         // Optional extra sink for tool output.
}

// Returned after the steps of a recipe finish.
//
// On failure the report lists the steps that completed before the failing
// one.
type Report struct {
	Steps    []StepResult // Completed steps, in order.
	Licenses []License    // Licenses declared by the recipe.
	Log      string       // Path to the build log.
}

// Outcome of one completed step.
type StepResult struct {
	Index       int             // 1-based position in the recipe.
	Kind        recipe.StepKind // Step kind.
	Description string          // Human readable description.
	Duration    time.Duration   // Wall time spent.
}

// A license declared by a recipe.
type License struct {
	Name   string // License name, such as "BSD-2-Clause".
	Source string // File or URL the recipe named, if any.
	Path   string // Installed copy of a local license file, if any.
}

// Executes rendered steps in order.
//
// Execution stops at the first failing step; its error is wrapped as
// "step <i> (<description>): ..." and the report up to that point is
// returned with it. Interruption by ctx is reported as internal.ErrTimeout
// or internal.ErrCancelled.
func Execute(ctx context.Context, rt *runtime.Runtime, steps []recipe.Step, env Env) (*Report, error) {
	for _, dir := range []string{env.WorkDir, env.SourceDir, env.InstallDir} {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
		}
	}

	logPath := filepath.Join(env.WorkDir, LogFile)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, paths.DefaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}
	defer f.Close()

	var out io.Writer = f
	if env.Output != nil {
		out = io.MultiWriter(f, env.Output)
	}

	x := &executor{
		rt:     rt,
		env:    env,
		state:  newStepState(env.SourceDir, env.Vars),
		out:    out,
		report: &Report{Log: logPath},
	}

	slog.Info("executing steps", "recipe", env.Name, "steps", len(steps))

	for i, step := range steps {
		if err := internal.Interrupted(ctx); err != nil {
			return x.report, err
		}

		start := time.Now()
		slog.Debug("executing step", "recipe", env.Name, "step", i+1, "kind", step.Kind())
		fmt.Fprintf(out, "==> step %d: %s\n", i+1, step)

		if err := x.step(ctx, step); err != nil {
			return x.report, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}

		x.report.Steps = append(x.report.Steps, StepResult{
			Index:       i + 1,
			Kind:        step.Kind(),
			Description: step.String(),
			Duration:    time.Since(start),
		})
	}

	return x.report, nil
}
