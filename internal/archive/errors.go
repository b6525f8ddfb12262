package archive

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrUnsafeArchiveEntry = internal.NewClassError("unsafe archive entry", errdefs.ErrPermissionDenied)
	ErrUnsupportedMethod  = internal.NewClassError("unsupported extraction method", errdefs.ErrNotImplemented)
	ErrExtract            = errors.New("extraction failed")
)

// Describes an archive entry that would be written outside the target root.
type UnsafeEntryError struct {
	Name   string // Entry name as stored in the archive.
	Reason string // Why the entry was rejected.
}

// Returns a description naming the entry and the reason.
func (e *UnsafeEntryError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrUnsafeArchiveEntry, e.Name, e.Reason)
}

// Returns [ErrUnsafeArchiveEntry].
func (e *UnsafeEntryError) Unwrap() error {
	return ErrUnsafeArchiveEntry
}
