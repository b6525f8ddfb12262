package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/engine"
	"github.com/cruciblehq/kiln/internal/loader"
	"github.com/cruciblehq/kiln/internal/recipe"
)

// Flags selecting recipe files.
type RecipeFlags struct {
	Recipes []string `short:"r" help:"Recipe files or directories." default:"recipes" placeholder:"PATH"`
	Set     []string `help:"Override the version of a recipe." placeholder:"NAME=VERSION"`
}

// Loads the catalog named by the flags.
func (f *RecipeFlags) load(ctx context.Context) (*recipe.Catalog, error) {
	versions, err := loader.ParseVersions(f.Set)
	if err != nil {
		return nil, err
	}
	return loader.New(loader.WithVersions(versions)).Load(ctx, f.Recipes...)
}

// Flags configuring the build engine.
type EngineFlags struct {
	InstallRoot  string        `help:"Root of install directories." default:"${install_root}" type:"path" placeholder:"DIR"`
	WorkRoot     string        `help:"Root of per-recipe work directories." default:"${work_root}" type:"path" placeholder:"DIR"`
	CacheDir     string        `help:"Source artifact cache." default:"${cache_dir}" type:"path" placeholder:"DIR"`
	Jobs         int           `short:"j" help:"Recipes built concurrently (0 means CPU count)."`
	MakeJobs     int           `help:"Parallel make jobs per recipe (0 means CPU count)."`
	KeepWork     string        `help:"When to keep work directories (${enum})." enum:"never,on-failure,always" default:"on-failure"`
	StepTimeout  time.Duration `help:"Limit on each build step (0 means none)."`
	FetchTimeout time.Duration `help:"Limit on each source download (0 means none)."`
	Retries      int           `help:"Download retries after a failed attempt (0 disables)." default:"3"`
}

// Returns the engine configuration described by the flags.
func (f *EngineFlags) config() engine.Config {
	var output io.Writer
	if RootCmd.Verbose || internal.IsVerbose() {
		output = os.Stderr
	}
	retries := f.Retries
	if retries == 0 {
		retries = -1
	}
	return engine.Config{
		InstallRoot:  f.InstallRoot,
		WorkRoot:     f.WorkRoot,
		CacheDir:     f.CacheDir,
		Jobs:         f.Jobs,
		MakeJobs:     f.MakeJobs,
		FetchTimeout: f.FetchTimeout,
		StepTimeout:  f.StepTimeout,
		Retries:      retries,
		KeepWork:     engine.Retention(f.KeepWork),
		Output:       output,
	}
}
