package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/kiln/internal/server"
)

// Represents the 'kiln start' command.
type StartCmd struct {
	EngineFlags `embed:""`
}

// Executes the start command.
//
// Starts the daemon on a Unix domain socket and blocks until the context is
// cancelled (e.g. via SIGINT or SIGTERM) or a client requests shutdown.
func (c *StartCmd) Run(ctx context.Context) error {
	srv, err := server.New(server.Config{
		SocketPath: socketPath(),
		Engine:     c.config(),
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("kiln daemon is running")

	stopped := make(chan struct{})
	go func() {
		srv.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case <-stopped:
	}
	return srv.Stop()
}
