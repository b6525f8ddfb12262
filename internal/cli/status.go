package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the 'kiln status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context) error {
	_, payload, err := protocol.Call(ctx, socketPath(), protocol.CmdStatus, nil)
	if err != nil {
		return err
	}
	status, err := protocol.DecodePayload[protocol.StatusResult](payload)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "version: %s\npid:     %d\nuptime:  %s\nbuilds:  %d completed, %d active\n",
		status.Version, status.Pid, status.Uptime, status.Builds, status.Active)
	return nil
}
