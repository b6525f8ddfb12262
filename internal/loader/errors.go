package loader

import (
	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrUnknownOverride = internal.NewClassError("version override for unknown recipe", errdefs.ErrNotFound)
	ErrInvalidOverride = internal.NewClassError("invalid version override", errdefs.ErrInvalidArgument)
	ErrNoRecipes       = internal.NewClassError("no recipe files found", errdefs.ErrNotFound)
)
