package resolve

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrUnknownDependency = internal.NewClassError("unknown dependency", errdefs.ErrNotFound)
	ErrCyclicDependency  = internal.NewClassError("cyclic dependency", errdefs.ErrFailedPrecondition)
)

// Reports a dependency that names no recipe in the catalog.
type UnknownDependencyError struct {
	Name      string // Missing recipe.
	Dependent string // Recipe that declared it; empty for the target itself.
}

func (e *UnknownDependencyError) Error() string {
	if e.Dependent == "" {
		return fmt.Sprintf("%s: no recipe named %q", ErrUnknownDependency, e.Name)
	}
	return fmt.Sprintf("%s: %q required by %q", ErrUnknownDependency, e.Name, e.Dependent)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// Reports a dependency loop.
type CycleError struct {
	Path []string // Recipes forming the loop; the first and last are the same.
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }
