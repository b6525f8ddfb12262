package runtime

import (
	"os"
	"slices"

	"github.com/containerd/platforms"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// Starts build tools with a shared base environment.
type Runtime struct {
	env []string // Base environment inherited by every process.
}

// Creates a runtime whose processes inherit env. A nil env means the
// environment of the current process.
func New(env []string) *Runtime {
	if env == nil {
		env = os.Environ()
	}
	return &Runtime{env: slices.Clone(env)}
}

// Returns the platform processes run on, such as "linux/amd64".
func (rt *Runtime) Platform() string {
	return platforms.DefaultString()
}

// Returns a copy of the base environment.
func (rt *Runtime) Environ() []string {
	return slices.Clone(rt.env)
}

// Builds an OCI process spec for running args.
//
// The base environment is copied, then env entries override it, then
// workdir becomes the working directory if set.
func (rt *Runtime) buildProcessSpec(env []string, workdir string, args ...string) *specs.Process {
	return &specs.Process{
		Args: args,
		Env:  mergeEnv(rt.env, env),
		Cwd:  workdir,
	}
}
