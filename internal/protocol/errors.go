package protocol

import (
	"errors"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
)

var (
	ErrProtocol    = errors.New("protocol error")
	ErrUnavailable = internal.NewClassError("daemon unavailable", errdefs.ErrUnavailable)
)

// Error reported by the daemon.
type RemoteError struct {
	Message string
	Kind    string
}

func (e *RemoteError) Error() string {
	return e.Message
}
