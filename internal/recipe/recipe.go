package recipe

import (
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Install path used when a recipe does not set one.
const DefaultInstallPath Template = "${install_root}/${name}/${version}"

// Mutable recipe fields consumed by [New].
type Definition struct {
	Name         string   // Component name; unique within a catalog.
	Version      string   // Version to build.
	Dependencies []string // Names of recipes that must be built first, in declaration order.
	Source       *Source  // Where the source comes from; nil for recipes without a source.
	RelativePath Template // Subdirectory of the extracted tree holding the sources.
	InstallPath  Template // Install directory; defaults to DefaultInstallPath.
	Steps        []Step   // Ordered build steps; at least one.
}

// Validated, immutable build recipe.
type Recipe struct {
	def          Definition
	relativePath string
	fingerprint  digest.Digest
}

// Validates def and builds a recipe from it.
//
// Returns ErrMalformedRecipe, wrapped with the offending field, if the name
// or version is missing, the step list is empty, any step is incomplete, the
// source digest or extraction method is invalid, or any template references
// a placeholder that is not available where it is used. The definition is
// deep-copied; later changes to def do not affect the recipe.
func New(def Definition) (*Recipe, error) {
	def = cloneDefinition(def)

	if err := checkName("name", def.Name); err != nil {
		return nil, err
	}
	if err := checkName("version", def.Version); err != nil {
		return nil, err
	}

	for i, dep := range def.Dependencies {
		if err := checkName(fmt.Sprintf("dependencies[%d]", i), dep); err != nil {
			return nil, err
		}
		if slices.Index(def.Dependencies, dep) != i {
			return nil, malformed("dependencies", "%q listed more than once", dep)
		}
	}

	if def.Source != nil {
		src, err := def.Source.normalize()
		if err != nil {
			return nil, err
		}
		def.Source = &src
	}

	if err := def.RelativePath.check(sourceVars); err != nil {
		return nil, malformedErr("relative_path", err)
	}
	rel, err := def.RelativePath.Render(Vars{VarName: def.Name, VarVersion: def.Version})
	if err != nil {
		return nil, malformedErr("relative_path", err)
	}
	rel = path.Clean(rel)
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return nil, malformed("relative_path", "%q must stay within the source tree", rel)
	}
	if rel == "." {
		rel = ""
	}

	if def.InstallPath == "" {
		def.InstallPath = DefaultInstallPath
	}
	if err := def.InstallPath.check(installVars); err != nil {
		return nil, malformedErr("install_path", err)
	}

	if len(def.Steps) == 0 {
		return nil, malformed("steps", "at least one step is required")
	}
	for i, s := range def.Steps {
		if s == nil {
			return nil, malformed(fmt.Sprintf("steps[%d]", i), "missing")
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, s.Kind(), err)
		}
	}

	fp, err := fingerprint(def)
	if err != nil {
		return nil, err
	}
	return &Recipe{def: def, relativePath: rel, fingerprint: fp}, nil
}

// Returns the component name.
func (r *Recipe) Name() string { return r.def.Name }

// Returns the version that will be built.
func (r *Recipe) Version() string { return r.def.Version }

// Returns the dependency names in declaration order.
func (r *Recipe) Dependencies() []string { return slices.Clone(r.def.Dependencies) }

// Returns the source descriptor, or false if the recipe has none.
func (r *Recipe) Source() (Source, bool) {
	if r.def.Source == nil {
		return Source{}, false
	}
	return *r.def.Source, true
}

// Returns the rendered relative path of the sources within the extracted tree.
func (r *Recipe) RelativePath() string { return r.relativePath }

// Returns the install path template.
func (r *Recipe) InstallPath() Template { return r.def.InstallPath }

// Returns a copy of the build steps.
func (r *Recipe) Steps() []Step {
	out := make([]Step, len(r.def.Steps))
	for i, s := range r.def.Steps {
		out[i] = s.clone()
	}
	return out
}

// Returns the digest identifying the recipe's content.
//
// Two recipes with the same fingerprint build the same thing from the same
// source; dependency fingerprints are not included.
func (r *Recipe) Fingerprint() digest.Digest { return r.fingerprint }

// Returns a copy of the definition the recipe was built from.
func (r *Recipe) Definition() Definition { return cloneDefinition(r.def) }

// Returns a copy of the recipe building version instead.
func (r *Recipe) WithVersion(version string) (*Recipe, error) {
	def := r.Definition()
	def.Version = version
	return New(def)
}

// Returns the install directory under installRoot.
func (r *Recipe) InstallDir(installRoot string) (string, error) {
	dir, err := r.def.InstallPath.Render(Vars{
		VarName:        r.def.Name,
		VarVersion:     r.def.Version,
		VarInstallRoot: installRoot,
	})
	if err != nil {
		return "", malformedErr("install_path", err)
	}
	if dir == "" {
		return "", malformed("install_path", "renders to an empty path")
	}
	return path.Clean(dir), nil
}

// Returns the rendered source descriptor, or nil if the recipe has none.
func (r *Recipe) ResolvedSource() (*ResolvedSource, error) {
	if r.def.Source == nil {
		return nil, nil
	}
	u, err := r.def.Source.URL.Render(Vars{VarName: r.def.Name, VarVersion: r.def.Version})
	if err != nil {
		return nil, malformedErr("source.url", err)
	}
	return &ResolvedSource{
		URL:     u,
		Digest:  r.def.Source.Digest,
		Extract: r.def.Source.Extract,
	}, nil
}

// Returns an error if s is not usable as a name or version.
func checkName(field, s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return malformed(field, "missing")
	case s == "." || s == "..":
		return malformed(field, "%q is reserved", s)
	case strings.ContainsAny(s, "/\\ \t\n\x00"):
		return malformed(field, "%q contains a path separator or whitespace", s)
	}
	return nil
}

func cloneDefinition(def Definition) Definition {
	def.Dependencies = slices.Clone(def.Dependencies)
	if def.Source != nil {
		src := *def.Source
		def.Source = &src
	}
	steps := make([]Step, len(def.Steps))
	for i, s := range def.Steps {
		if s != nil {
			steps[i] = s.clone()
		}
	}
	def.Steps = steps
	return def
}

// Canonical form hashed by fingerprint. Map keys are sorted by encoding/json.
type canonical struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Dependencies []string        `json:"dependencies"`
	Source       *Source         `json:"source,omitempty"`
	RelativePath Template        `json:"relative_path"`
	InstallPath  Template        `json:"install_path"`
	Steps        []canonicalStep `json:"steps"`
}

type canonicalStep struct {
	Kind StepKind `json:"kind"`
	Step Step     `json:"step"`
}

func fingerprint(def Definition) (digest.Digest, error) {
	c := canonical{
		Name:         def.Name,
		Version:      def.Version,
		Dependencies: def.Dependencies,
		Source:       def.Source,
		RelativePath: def.RelativePath,
		InstallPath:  def.InstallPath,
	}
	for _, s := range def.Steps {
		c.Steps = append(c.Steps, canonicalStep{Kind: s.Kind(), Step: s})
	}

	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return digest.FromBytes(b), nil
}
