package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Builds a single recipe.
type buildFunc func(ctx context.Context, name string) error

// Outcome of one dispatched recipe.
type completion struct {
	name string
	err  error
}

// Runs fn for every recipe of rp, at most cfg.Jobs at a time.
//
// A recipe is dispatched once all of its dependencies have completed. Ready
// recipes are dispatched in resolver order. After the first failure the
// context passed to running builds is cancelled, nothing more is dispatched,
// and the first error is returned once every running build has returned.
func (e *Engine) schedule(ctx context.Context, rp *runPlan, fn buildFunc) error {
	order := rp.graph.Order()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Jobs)

	waiting := make(map[string]int, len(order))
	for _, name := range order {
		waiting[name] = len(rp.graph.Dependencies(name))
	}

	done := make(chan completion, len(order))
	pending := order
	running := 0
	failed := false

	for {
		if !failed && gctx.Err() == nil {
			var rest []string
			for _, name := range pending {
				if waiting[name] > 0 || running >= e.cfg.Jobs {
					rest = append(rest, name)
					continue
				}
				running++
				g.Go(func() error {
					err := fn(gctx, name)
					done <- completion{name: name, err: err}
					return err
				})
			}
			pending = rest
		}

		if running == 0 {
			break
		}

		c := <-done
		running--
		if c.err != nil {
			failed = true
			continue
		}
		for _, dep := range rp.graph.Dependents(c.name) {
			waiting[dep]--
		}
	}

	return g.Wait()
}
