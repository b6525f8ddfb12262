package engine

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/cruciblehq/kiln/internal/paths"
)

// Controls when per-recipe work directories are kept.
type Retention string

const (
	RetainNever     Retention = "never"      // Always remove.
	RetainOnFailure Retention = "on-failure" // Keep when the build fails.
	RetainAlways    Retention = "always"     // Never remove.
)

// Parses a retention policy. The empty string selects [RetainOnFailure].
func ParseRetention(s string) (Retention, error) {
	switch r := Retention(s); r {
	case "":
		return RetainOnFailure, nil
	case RetainNever, RetainOnFailure, RetainAlways:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown retention %q", ErrInvalidConfig, s)
}

// Returns true if a work directory should be kept after a build.
func (r Retention) keep(failed bool) bool {
	switch r {
	case RetainAlways:
		return true
	case RetainNever:
		return false
	}
	return failed
}

// Configures an [Engine].
type Config struct {
	InstallRoot  string        // Root of install directories; defaults to paths.InstallRoot().
	WorkRoot     string        // Root of work directories; defaults to paths.WorkRoot().
	CacheDir     string        // Source cache; defaults to paths.Cache().
	Jobs         int           // Recipes built concurrently; defaults to runtime.NumCPU().
	MakeJobs     int           // Parallel make jobs per recipe; defaults to runtime.NumCPU().
	FetchTimeout time.Duration // Bound on each source fetch; zero means none.
	StepTimeout  time.Duration // Bound on each step; zero means none.
	Retries      int           // Fetch retries; zero selects the fetcher default, negative disables.
	KeepWork     Retention     // Work directory retention; defaults to RetainOnFailure.
	Env          []string      // Base environment of tools; nil means the current process's.
	Output       io.Writer     // Optional mirror of tool output.
}

// Returns cfg with defaults applied, or an error if it is invalid.
func (cfg Config) withDefaults() (Config, error) {
	if cfg.InstallRoot == "" {
		cfg.InstallRoot = paths.InstallRoot()
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = paths.WorkRoot()
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = paths.Cache()
	}
	if cfg.Jobs < 0 || cfg.MakeJobs < 0 {
		return cfg, fmt.Errorf("%w: negative job count", ErrInvalidConfig)
	}
	if cfg.FetchTimeout < 0 || cfg.StepTimeout < 0 {
		return cfg, fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = runtime.NumCPU()
	}
	if cfg.MakeJobs == 0 {
		cfg.MakeJobs = runtime.NumCPU()
	}
	keep, err := ParseRetention(string(cfg.KeepWork))
	if err != nil {
		return cfg, err
	}
	cfg.KeepWork = keep
	return cfg, nil
}
