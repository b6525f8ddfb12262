package recipe

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrMalformedRecipe = internal.NewClassError("malformed recipe", errdefs.ErrInvalidArgument)
	ErrDuplicateRecipe = internal.NewClassError("duplicate recipe", errdefs.ErrAlreadyExists)
)

// Returns an ErrMalformedRecipe naming the offending field.
func malformed(field string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedRecipe, field, fmt.Sprintf(format, args...))
}

// Wraps err as an ErrMalformedRecipe for field.
func malformedErr(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedRecipe, field, err)
}
