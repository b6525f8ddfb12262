package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cruciblehq/kiln/internal/engine"
)

// Represents the 'kiln fetch' command.
type FetchCmd struct {
	Target string `arg:"" help:"Recipe whose sources to fetch."`

	RecipeFlags `embed:""`
	EngineFlags `embed:""`
}

// Executes the fetch command.
//
// Downloads and verifies every source in the closure of the target into the
// cache, then prints the cached path of each.
func (c *FetchCmd) Run(ctx context.Context) error {
	catalog, err := c.load(ctx)
	if err != nil {
		return err
	}
	eng, err := engine.New(c.config())
	if err != nil {
		return err
	}

	artifacts, err := eng.Fetch(ctx, c.Target, catalog)
	if err != nil {
		return err
	}

	entries, err := eng.Plan(c.Target, catalog)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if art, ok := artifacts[e.Name]; ok {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", e.Name, art.Descriptor.Digest, art.Path)
		}
	}
	return nil
}
