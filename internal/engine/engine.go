package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/fetch"
	"github.com/cruciblehq/kiln/internal/paths"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/cruciblehq/kiln/internal/runtime"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Builds recipes and their dependencies.
type Engine struct {
	cfg     Config
	rt      *runtime.Runtime
	fetcher *fetch.Fetcher
}

// Outcome of a successful run.
type Result struct {
	RunID     string                   // Unique identifier of the run.
	Target    string                   // Requested recipe.
	Order     []string                 // Resolved build order.
	Built     []string                 // Recipes built by this run, in build order.
	Cached    []string                 // Recipes skipped because their stamp matched.
	Installs  map[string]string        // Install directory of every recipe in the order.
	Durations map[string]time.Duration // Time spent per recipe.
}

// Creates an engine, creating the install and work roots if needed.
func New(cfg Config) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.InstallRoot, cfg.WorkRoot} {
		if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	fetcher, err := fetch.New(fetch.Config{
		CacheDir: cfg.CacheDir,
		Timeout:  cfg.FetchTimeout,
		Retries:  cfg.Retries,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{cfg: cfg, rt: runtime.New(cfg.Env), fetcher: fetcher}, nil
}

// Builds target and every recipe it depends on.
//
// Recipes whose stamp matches are skipped. The first failure is returned as
// a [*RecipeError] after in-flight builds have stopped. If ctx is cancelled,
// internal.ErrCancelled is returned instead.
func (e *Engine) Run(ctx context.Context, target string, catalog *recipe.Catalog) (*Result, error) {
	runID := uuid.NewString()
	rp, err := e.plan(target, catalog, runID)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine:   e,
		id:       runID,
		plan:     rp,
		platform: e.rt.Platform(),
		log:      slog.With("run", runID[:8]),
		result: &Result{
			RunID:     runID,
			Target:    target,
			Order:     rp.graph.Order(),
			Installs:  make(map[string]string),
			Durations: make(map[string]time.Duration),
		},
		rebuilt: make(map[string]bool),
	}

	r.log.Info("starting build", "target", target, "recipes", len(r.result.Order), "jobs", e.cfg.Jobs)
	start := time.Now()

	err = e.schedule(ctx, rp, r.buildRecipe)
	if ierr := internal.Interrupted(ctx); ierr != nil {
		r.log.Warn("build interrupted", "target", target, "error", ierr)
		return nil, ierr
	}
	if err != nil {
		return nil, err
	}

	r.result.Built = inOrder(r.result.Order, r.result.Built)
	r.result.Cached = inOrder(r.result.Order, r.result.Cached)
	r.log.Info("build finished", "target", target, "built", len(r.result.Built), "cached", len(r.result.Cached), "duration", time.Since(start).Round(time.Millisecond))
	return r.result, nil
}

// State of one build that is in progress.
type run struct {
	engine   *Engine
	id       string
	plan     *runPlan
	platform string
	log      *slog.Logger

	mu      sync.Mutex
	result  *Result
	rebuilt map[string]bool
}

// Builds one recipe whose dependencies are installed.
func (r *run) buildRecipe(ctx context.Context, name string) error {
	p := r.plan.recipes[name]
	start := time.Now()

	if r.upToDate(name) {
		r.log.Info("recipe up to date", "recipe", name, "version", p.plan.Version)
		r.record(name, false, time.Since(start))
		return nil
	}

	r.log.Info("building recipe", "recipe", name, "version", p.plan.Version)
	if err := r.execute(ctx, p); err != nil {
		if ierr := internal.Interrupted(ctx); ierr != nil {
			err = ierr
		}
		return &RecipeError{Recipe: name, Err: err}
	}

	r.record(name, true, time.Since(start))
	r.log.Info("recipe built", "recipe", name, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// Returns true if the stamp of name matches and no dependency was rebuilt
// during this run.
func (r *run) upToDate(name string) bool {
	p := r.plan.recipes[name]

	r.mu.Lock()
	for _, d := range r.plan.graph.Dependencies(name) {
		if r.rebuilt[d] {
			r.mu.Unlock()
			return false
		}
	}
	r.mu.Unlock()

	s, err := readStamp(p.stamp)
	if err != nil {
		r.log.Warn("ignoring unreadable stamp", "recipe", name, "error", err)
		return false
	}
	return s.matches(p.fingerprint, r.platform)
}

// Fetches, builds, and stamps one recipe.
func (r *run) execute(ctx context.Context, p *planned) (err error) {
	if err := removeStamp(p.stamp); err != nil {
		return err
	}

	workDir := p.plan.WorkDir
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("%w: %w", build.ErrFileSystemOperation, err)
	}
	if err := os.MkdirAll(p.plan.ExtractDir, paths.DefaultDirMode); err != nil {
		return fmt.Errorf("%w: %w", build.ErrFileSystemOperation, err)
	}
	defer func() {
		if r.engine.cfg.KeepWork.keep(err != nil) {
			if err != nil {
				r.log.Info("keeping work directory", "recipe", p.plan.Name, "dir", workDir)
			}
			return
		}
		if rerr := os.RemoveAll(workDir); rerr != nil {
			r.log.Warn("removing work directory", "dir", workDir, "error", rerr)
		}
	}()

	if src := p.plan.Source; src != nil {
		art, err := r.engine.fetcher.FetchAndExtract(ctx, *src, p.plan.ExtractDir)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		r.log.Debug("source ready", "recipe", p.plan.Name, "digest", art.Descriptor.Digest, "cached", art.Cached)
	}

	vars := seedEnv(r.engine.rt.Environ(), p, r.id, r.plan.depInstallDirs(p.plan.Name))
	report, err := build.Execute(ctx, r.engine.rt, p.plan.Steps, build.Env{
		Name:        p.plan.Name,
		WorkDir:     workDir,
		SourceDir:   p.plan.SourceDir,
		InstallDir:  p.plan.InstallDir,
		Jobs:        p.plan.Jobs,
		Vars:        vars,
		StepTimeout: r.engine.cfg.StepTimeout,
		Output:      r.engine.cfg.Output,
	})
	if err != nil {
		return err
	}

	stamp := &Stamp{
		Name:        p.plan.Name,
		Version:     p.plan.Version,
		Fingerprint: p.fingerprint,
		Platform:    r.platform,
		Licenses:    report.Licenses,
		RunID:       r.id,
		Completed:   time.Now().UTC(),
	}
	if p.plan.Source != nil {
		stamp.Source = p.plan.Source.Digest
	}
	return writeStamp(p.stamp, stamp)
}

// Records a finished recipe.
func (r *run) record(name string, built bool, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if built {
		r.result.Built = append(r.result.Built, name)
		r.rebuilt[name] = true
	} else {
		r.result.Cached = append(r.result.Cached, name)
	}
	r.result.Installs[name] = r.plan.recipes[name].plan.InstallDir
	r.result.Durations[name] = d
}

// Status of one recipe in a plan.
type PlanEntry struct {
	Name        string
	Version     string
	InstallDir  string
	Fingerprint string
	Source      string // Source URL, if any.
	Cached      bool   // True if a run would skip the recipe.
}

// Returns the resolved build order of target with the cache status of every
// recipe. Nothing is built or fetched.
func (e *Engine) Plan(target string, catalog *recipe.Catalog) ([]PlanEntry, error) {
	rp, err := e.plan(target, catalog, "plan")
	if err != nil {
		return nil, err
	}

	platform := e.rt.Platform()
	stale := make(map[string]bool)
	var entries []PlanEntry

	for _, name := range rp.graph.Order() {
		p := rp.recipes[name]
		s, _ := readStamp(p.stamp)
		cached := s.matches(p.fingerprint, platform)
		for _, d := range rp.graph.Dependencies(name) {
			if stale[d] {
				cached = false
			}
		}
		stale[name] = !cached

		entry := PlanEntry{
			Name:        name,
			Version:     p.plan.Version,
			InstallDir:  p.plan.InstallDir,
			Fingerprint: p.fingerprint.String(),
			Cached:      cached,
		}
		if p.plan.Source != nil {
			entry.Source = p.plan.Source.URL
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Downloads the source of every recipe in the closure of target into the
// cache without building anything.
//
// Returns the cached artifacts by recipe name.
func (e *Engine) Fetch(ctx context.Context, target string, catalog *recipe.Catalog) (map[string]*fetch.Artifact, error) {
	rp, err := e.plan(target, catalog, "fetch")
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	artifacts := make(map[string]*fetch.Artifact)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Jobs)
	for _, name := range rp.graph.Order() {
		src := rp.recipes[name].plan.Source
		if src == nil {
			continue
		}
		g.Go(func() error {
			art, err := e.fetcher.Fetch(gctx, *src)
			if err != nil {
				return &RecipeError{Recipe: name, Err: fmt.Errorf("fetch: %w", err)}
			}
			slog.Info("source fetched", "recipe", name, "digest", art.Descriptor.Digest, "cached", art.Cached)

			mu.Lock()
			artifacts[name] = art
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()
	if ierr := internal.Interrupted(ctx); ierr != nil {
		return nil, ierr
	}
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// Returns the members of names sorted by their position in order.
func inOrder(order, names []string) []string {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	out := make([]string, 0, len(names))
	for _, n := range order {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}
