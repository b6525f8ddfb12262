package engine

import (
	"fmt"
	"path/filepath"

	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/resolve"
	"github.com/opencontainers/go-digest"
)

// Recipe rendered for one run.
type planned struct {
	recipe      *recipe.Recipe
	plan        *recipe.Plan
	fingerprint digest.Digest // Chained over the recipe and its dependencies.
	stamp       string        // Install stamp path.
}

// Resolved and rendered closure of a target.
type runPlan struct {
	graph   *resolve.Graph
	recipes map[string]*planned
}

// Resolves the closure of target and renders every recipe in it.
//
// Work directories are named "<name>-<version>-<run>" under the work root,
// where run is the first eight characters of runID.
func (e *Engine) plan(target string, catalog *recipe.Catalog, runID string) (*runPlan, error) {
	graph, err := resolve.Resolve(target, catalog)
	if err != nil {
		return nil, err
	}

	short := runID
	if len(short) > 8 {
		short = short[:8]
	}

	rp := &runPlan{graph: graph, recipes: make(map[string]*planned)}
	for _, name := range graph.Order() {
		r, _ := catalog.Get(name)

		workDir := filepath.Join(e.cfg.WorkRoot, fmt.Sprintf("%s-%s-%s", r.Name(), r.Version(), short))
		plan, err := r.Render(recipe.Layout{
			InstallRoot: e.cfg.InstallRoot,
			WorkDir:     workDir,
			Jobs:        e.cfg.MakeJobs,
		})
		if err != nil {
			return nil, &RecipeError{Recipe: name, Err: err}
		}

		deps := graph.Dependencies(name)
		depFingerprints := make([]digest.Digest, len(deps))
		for i, d := range deps {
			depFingerprints[i] = rp.recipes[d].fingerprint
		}

		rp.recipes[name] = &planned{
			recipe:      r,
			plan:        plan,
			fingerprint: chain(plan.Fingerprint, deps, depFingerprints),
			stamp:       stampPath(plan.InstallDir, name),
		}
	}
	return rp, nil
}

// Returns the install directories of the transitive dependencies of name,
// in build order.
func (rp *runPlan) depInstallDirs(name string) []string {
	var dirs []string
	for _, d := range rp.graph.Transitive(name) {
		dirs = append(dirs, rp.recipes[d].plan.InstallDir)
	}
	return dirs
}

// Combines a recipe fingerprint with the chained fingerprints of its direct
// dependencies, in declaration order.
func chain(own digest.Digest, deps []string, fps []digest.Digest) digest.Digest {
	d := digest.Canonical.Digester()
	h := d.Hash()
	fmt.Fprintf(h, "%s\n", own)
	for i, name := range deps {
		fmt.Fprintf(h, "%s=%s\n", name, fps[i])
	}
	return d.Digest()
}
