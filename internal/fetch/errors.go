package fetch

import (
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
	"github.com/opencontainers/go-digest"
)

var (
	ErrIntegrityMismatch = internal.NewClassError("integrity mismatch", errdefs.ErrDataLoss)
	ErrDownload          = internal.NewClassError("download failed", errdefs.ErrUnavailable)
	ErrUnsupportedURL    = internal.NewClassError("unsupported source URL", errdefs.ErrInvalidArgument)
)

// Reports downloaded content whose digest differs from the expected one.
type IntegrityMismatchError struct {
	URL      string
	Expected digest.Digest
	Actual   digest.Digest
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s, got %s", ErrIntegrityMismatch, e.URL, e.Expected, e.Actual)
}

func (e *IntegrityMismatchError) Unwrap() error { return ErrIntegrityMismatch }

// Reports an unsuccessful HTTP response.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s: %d %s", ErrDownload, e.url, e.code, http.StatusText(e.code))
}

func (e *statusError) Unwrap() error { return ErrDownload }

// Returns true if the request may succeed when repeated.
func (e *statusError) temporary() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests || e.code == http.StatusRequestTimeout
}
