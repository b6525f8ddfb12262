package build

import (
	"maps"
	"path/filepath"
	"slices"

	"github.com/cruciblehq/kiln/internal/recipe"
)

// Tracks the environment and working directory steps run with.
//
// The persistent state holds the variables seeded by the caller and the
// source directory. Operations read their effective values via resolve
// without modifying the persistent state.
type stepState struct {
	workdir string
	env     map[string]string
}

// Creates a [stepState] rooted at the source directory.
func newStepState(sourceDir string, vars map[string]string) *stepState {
	s := &stepState{
		workdir: sourceDir,
		env:     make(map[string]string, len(vars)),
	}
	maps.Copy(s.env, vars)
	return s
}

// Returns a new [stepState] with step-level overrides overlaid on the
// persistent state. The receiver is not modified.
//
// A relative dir is resolved against the persistent working directory; an
// empty dir keeps it.
func (s *stepState) resolve(dir string, env map[string]recipe.Template) *stepState {
	resolved := &stepState{
		workdir: s.workdir,
		env:     make(map[string]string, len(s.env)+len(env)),
	}
	maps.Copy(resolved.env, s.env)
	for k, v := range env {
		resolved.env[k] = string(v)
	}

	switch {
	case dir == "":
	case filepath.IsAbs(dir):
		resolved.workdir = filepath.Clean(dir)
	default:
		resolved.workdir = filepath.Join(s.workdir, dir)
	}
	return resolved
}

// Formats the environment as a sorted list of "key=value" strings.
func (s *stepState) environ() []string {
	env := make([]string, 0, len(s.env))
	for _, k := range slices.Sorted(maps.Keys(s.env)) {
		env = append(env, k+"="+s.env[k])
	}
	return env
}
