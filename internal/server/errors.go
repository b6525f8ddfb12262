package server

import (
	"errors"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/fetch"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/resolve"
)

var ErrServer = errors.New("server error")

// Error classes reported to clients, in match order.
var errorKinds = []struct {
	err  error
	kind string
}{
	{internal.ErrCancelled, "cancelled"},
	{internal.ErrTimeout, "timeout"},
	{recipe.ErrMalformedRecipe, "malformed_recipe"},
	{resolve.ErrUnknownDependency, "unknown_dependency"},
	{resolve.ErrCyclicDependency, "cyclic_dependency"},
	{fetch.ErrIntegrityMismatch, "integrity_mismatch"},
	{archive.ErrUnsafeArchiveEntry, "unsafe_archive_entry"},
	{build.ErrExternalToolFailed, "external_tool_failed"},
}

// Returns the class name of err reported in error responses, or "".
func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}
