package engine

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrInvalidConfig = internal.NewClassError("invalid engine configuration", errdefs.ErrInvalidArgument)
	ErrStamp         = errors.New("install stamp")
)

// Reports the recipe whose build failed.
type RecipeError struct {
	Recipe string
	Err    error
}

func (e *RecipeError) Error() string {
	return fmt.Sprintf("recipe %q: %v", e.Recipe, e.Err)
}

func (e *RecipeError) Unwrap() error {
	return e.Err
}
