package recipe

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/opencontainers/go-digest"
)

// Directory layout of one build.
type Layout struct {
	InstallRoot string // Root under which install paths are rendered.
	WorkDir     string // Per-build scratch directory.
	Jobs        int    // Parallel jobs for make; zero means runtime.NumCPU().
}

func (l Layout) jobs() int {
	if l.Jobs > 0 {
		return l.Jobs
	}
	return runtime.NumCPU()
}

// Fully rendered recipe, ready to execute.
//
// Every template has been resolved exactly once; the steps hold final
// strings and must not be rendered again.
type Plan struct {
	Name        string
	Version     string
	Fingerprint digest.Digest
	Source      *ResolvedSource // Nil when the recipe has no source.
	InstallDir  string          // Absolute install directory.
	WorkDir     string          // Scratch directory for the build.
	ExtractDir  string          // Where the source artifact is unpacked.
	SourceDir   string          // ExtractDir joined with the relative path.
	Jobs        int             // Resolved make job count.
	Steps       []Step          // Rendered steps.
}

// Resolves every template of the recipe for layout l.
//
// The source is unpacked into "<work>/src" and the steps run from the
// relative path beneath it.
func (r *Recipe) Render(l Layout) (*Plan, error) {
	installDir, err := r.InstallDir(l.InstallRoot)
	if err != nil {
		return nil, err
	}
	src, err := r.ResolvedSource()
	if err != nil {
		return nil, err
	}

	extractDir := filepath.Join(l.WorkDir, "src")
	sourceDir := filepath.Join(extractDir, filepath.FromSlash(r.relativePath))

	vars := stepVarsFor(r.def.Name, r.def.Version, l, installDir, sourceDir)
	steps := make([]Step, len(r.def.Steps))
	for i, s := range r.def.Steps {
		rs, err := s.render(vars)
		if err != nil {
			return nil, malformedErr(fmt.Sprintf("steps[%d] (%s)", i, s.Kind()), err)
		}
		steps[i] = rs
	}

	return &Plan{
		Name:        r.def.Name,
		Version:     r.def.Version,
		Fingerprint: r.fingerprint,
		Source:      src,
		InstallDir:  installDir,
		WorkDir:     l.WorkDir,
		ExtractDir:  extractDir,
		SourceDir:   sourceDir,
		Jobs:        l.jobs(),
		Steps:       steps,
	}, nil
}
