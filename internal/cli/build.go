package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/kiln/internal/engine"
	"github.com/cruciblehq/kiln/internal/protocol"
)

// Represents the 'kiln build' command.
type BuildCmd struct {
	Target string `arg:"" help:"Recipe to build."`
	Remote bool   `help:"Submit the build to the running daemon."`

	RecipeFlags `embed:""`
	EngineFlags `embed:""`
}

// Executes the build command.
//
// Builds the target locally, or through the daemon with --remote, and
// prints the install directory of every recipe in build order.
func (c *BuildCmd) Run(ctx context.Context) error {
	if c.Remote {
		return c.runRemote(ctx)
	}

	catalog, err := c.load(ctx)
	if err != nil {
		return err
	}
	eng, err := engine.New(c.config())
	if err != nil {
		return err
	}

	result, err := eng.Run(ctx, c.Target, catalog)
	if err != nil {
		return err
	}

	printInstalls(result.Order, result.Installs, result.Cached)
	return nil
}

// Submits the build to the daemon and waits for its result.
func (c *BuildCmd) runRemote(ctx context.Context) error {
	recipes := make([]string, len(c.Recipes))
	for i, r := range c.Recipes {
		abs, err := filepath.Abs(r)
		if err != nil {
			return err
		}
		recipes[i] = abs
	}

	slog.Info("submitting build", "target", c.Target, "socket", socketPath())
	_, payload, err := protocol.Call(ctx, socketPath(), protocol.CmdBuild, &protocol.BuildRequest{
		Target:   c.Target,
		Recipes:  recipes,
		Versions: c.Set,
		Jobs:     c.Jobs,
		KeepWork: c.KeepWork,
	})
	if err != nil {
		return err
	}
	result, err := protocol.DecodePayload[protocol.BuildResult](payload)
	if err != nil {
		return err
	}

	printInstalls(result.Order, result.Installs, result.Cached)
	return nil
}

// Prints one line per recipe: name, install directory, and "(cached)" for
// skipped recipes.
func printInstalls(order []string, installs map[string]string, cached []string) {
	skipped := make(map[string]bool, len(cached))
	for _, n := range cached {
		skipped[n] = true
	}
	for _, name := range order {
		suffix := ""
		if skipped[name] {
			suffix = " (cached)"
		}
		fmt.Fprintf(os.Stdout, "%s\t%s%s\n", name, installs[name], suffix)
	}
}
