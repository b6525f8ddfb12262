package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/runtime"
)

// Amount of tool output kept for error reports.
const tailSize = 64 << 10

// Runs the steps of one recipe.
type executor struct {
	rt     *runtime.Runtime
	env    Env
	state  *stepState
	out    io.Writer
	report *Report
}

// Executes a single step, dispatching on its kind.
func (x *executor) step(ctx context.Context, step recipe.Step) error {
	if x.env.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.env.StepTimeout)
		defer cancel()
	}

	switch s := step.(type) {
	case recipe.RunStep:
		return x.run(ctx, s)
	case recipe.DeleteStep:
		return x.delete(string(s.Path))
	case recipe.LicenseStep:
		return x.license(s)
	case recipe.AutotoolsStep:
		return x.autotools(ctx, s)
	}
	return fmt.Errorf("%w: unsupported step kind %q", ErrBuild, step.Kind())
}

// Runs an external tool with scoped directory and environment overrides.
func (x *executor) run(ctx context.Context, s recipe.RunStep) error {
	args := []string{string(s.Command)}
	for _, a := range s.Args {
		args = append(args, string(a))
	}
	return x.exec(ctx, x.state.resolve(string(s.Dir), s.Env), args)
}

// Runs the configure, make, and install phases of an autotools project.
func (x *executor) autotools(ctx context.Context, s recipe.AutotoolsStep) error {
	resolved := x.state.resolve("", s.Env)

	jobs := x.env.Jobs
	if jobs < 1 {
		jobs = 1
	}
	build := []string{"make", "-j" + strconv.Itoa(jobs)}
	for _, a := range s.MakeArgs {
		build = append(build, string(a))
	}

	for _, args := range [][]string{
		append([]string{"./configure"}, s.ConfigureArgs()...),
		build,
		{"make", "install"},
	} {
		if err := x.exec(ctx, resolved, args); err != nil {
			return err
		}
	}
	return nil
}

// Runs args in the resolved state, appending its output to the build log.
//
// A non-zero exit or a failure to start is reported as an
// [ExternalToolError] carrying the tail of the output.
func (x *executor) exec(ctx context.Context, st *stepState, args []string) error {
	if err := os.MkdirAll(st.workdir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	slog.Debug("run", "recipe", x.env.Name, "command", strings.Join(args, " "), "dir", st.workdir)
	fmt.Fprintf(x.out, "+ %s\n", strings.Join(args, " "))

	tail := newTailBuffer(tailSize)
	w := io.MultiWriter(x.out, tail)

	code, err := x.rt.ExecStream(ctx, args, st.environ(), st.workdir, w, w)
	if err != nil {
		if internal.IsInterrupted(err) {
			return err
		}
		return &ExternalToolError{Tool: args[0], Args: args[1:], ExitCode: -1, Output: tail.String(), Err: err}
	}
	if code != 0 {
		return &ExternalToolError{Tool: args[0], Args: args[1:], ExitCode: code, Output: tail.String()}
	}
	return nil
}

// Removes every path matching pattern.
//
// Relative patterns are resolved against the source directory. Every match
// must lie inside the work or install directory, and nothing is removed
// unless all of them do. No match is not an error.
func (x *executor) delete(pattern string) error {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(x.env.SourceDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuild, err)
	}

	for _, m := range matches {
		if !x.removable(m) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, m)
		}
	}
	if len(matches) == 0 && !x.removable(pattern) {
		return fmt.Errorf("%w: %s", ErrUnsafePath, pattern)
	}

	for _, m := range matches {
		slog.Debug("delete", "recipe", x.env.Name, "path", m)
		if err := os.RemoveAll(m); err != nil {
			return fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
		}
	}
	return nil
}

// Returns true if p lies strictly inside the work or install directory once
// symlinks in its parent and in both roots are resolved. The final element of
// p is not followed: removing a link removes only the link.
func (x *executor) removable(p string) bool {
	real := realPath(filepath.Dir(p))
	if real == "" {
		return false
	}
	real = filepath.Join(real, filepath.Base(p))
	return within(realPath(x.env.WorkDir), real) || within(realPath(x.env.InstallDir), real)
}

// Returns p with symlinks resolved. A path that does not exist yet is
// resolved through its deepest existing ancestor. Returns "" on other errors.
func realPath(p string) string {
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	var rest []string
	for {
		r, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{r}, rest...)...)
		}
		if !os.IsNotExist(err) {
			return ""
		}
		parent := filepath.Dir(p)
		if parent == p {
			return ""
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// Records a license and installs its local file, if any.
func (x *executor) license(s recipe.LicenseStep) error {
	lic := License{Name: string(s.Name), Source: string(s.File)}

	if s.File != "" && !s.IsRemote() {
		src := string(s.File)
		if !filepath.IsAbs(src) {
			src = filepath.Join(x.env.SourceDir, src)
		}
		dir := filepath.Join(x.env.InstallDir, "LICENSES", x.env.Name)

		installed, err := installFile(src, dir)
		switch {
		case os.IsNotExist(err):
			slog.Warn("license file not found", "recipe", x.env.Name, "file", s.File)
		case err != nil:
			return err
		default:
			lic.Path = installed
		}
	}

	x.report.Licenses = append(x.report.Licenses, lic)
	return nil
}

// Returns true if p is a descendant of root. Both must be clean.
func within(root, p string) bool {
	if root == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(root), p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
