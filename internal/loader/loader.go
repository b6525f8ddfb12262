package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/recipe"
)

// Parses the contents of one recipe file.
type parseFunc func(src []byte, filename string) ([]recipe.Definition, error)

// File extensions understood by the loader.
var parsers = map[string]parseFunc{
	".hcl":  ParseHCL,
	".yaml": ParseYAML,
	".yml":  ParseYAML,
}

// Reads recipe files into a catalog.
type Loader struct {
	versions map[string]string
}

// Configures a [Loader].
type Option func(*Loader)

// Overrides the default version of the named recipes.
func WithVersions(versions map[string]string) Option {
	return func(l *Loader) {
		maps.Copy(l.versions, versions)
	}
}

// Creates a loader.
func New(opts ...Option) *Loader {
	l := &Loader{versions: make(map[string]string)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Loads every recipe file under paths into a catalog.
//
// Returns ErrNoRecipes if no recipe files are found, recipe.ErrMalformedRecipe
// for unparseable or invalid recipes, recipe.ErrDuplicateRecipe if a name is
// defined twice, and ErrUnknownOverride if a version override names a recipe
// that was not loaded.
func (l *Loader) Load(ctx context.Context, paths ...string) (*recipe.Catalog, error) {
	files, err := findRecipeFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoRecipes, strings.Join(paths, ", "))
	}
	slog.Debug("discovered recipe files", "count", len(files))

	catalog, _ := recipe.NewCatalog()
	applied := make(map[string]bool)

	for _, file := range files {
		if err := internal.Interrupted(ctx); err != nil {
			return nil, err
		}

		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}

		defs, err := parsers[filepath.Ext(file)](src, file)
		if err != nil {
			return nil, err
		}

		for _, def := range defs {
			if v, ok := l.versions[def.Name]; ok {
				def.Version = v
				applied[def.Name] = true
			}

			r, err := recipe.New(def)
			if err != nil {
				return nil, fmt.Errorf("%s: recipe %q: %w", file, def.Name, err)
			}
			if err := catalog.Add(r); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			slog.Debug("loaded recipe", "recipe", r.Name(), "version", r.Version(), "file", file)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(l.versions)) {
		if !applied[name] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownOverride, name)
		}
	}
	return catalog, nil
}

// Parses "name=version" pairs into an override map.
func ParseVersions(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, version, ok := strings.Cut(p, "=")
		name, version = strings.TrimSpace(name), strings.TrimSpace(version)
		if !ok || name == "" || version == "" {
			return nil, fmt.Errorf("%w: %q, expected name=version", ErrInvalidOverride, p)
		}
		out[name] = version
	}
	return out, nil
}

// Walks all given paths and returns a sorted, de-duplicated list of recipe
// files. Paths that do not exist are skipped.
func findRecipeFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(p string) {
		if _, ok := parsers[filepath.Ext(p)]; ok && !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("accessing %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	slices.Sort(files)
	return files, nil
}

// Builds the source descriptor from the digest spellings a file may use.
func sourceDigest(field, sha256, sha512, dgst string) (string, error) {
	set := 0
	for _, v := range []string{sha256, sha512, dgst} {
		if v != "" {
			set++
		}
	}
	switch {
	case set > 1:
		return "", fmt.Errorf("%w: %s: only one of sha256, sha512, or digest may be set", recipe.ErrMalformedRecipe, field)
	case sha256 != "":
		return "sha256:" + strings.ToLower(sha256), nil
	case sha512 != "":
		return "sha512:" + strings.ToLower(sha512), nil
	}
	return dgst, nil
}

// Converts a string slice to templates.
func templates(ss []string) []recipe.Template {
	if ss == nil {
		return nil
	}
	out := make([]recipe.Template, len(ss))
	for i, s := range ss {
		out[i] = recipe.Template(s)
	}
	return out
}

// Converts a string map to templates.
func templateMap(m map[string]string) map[string]recipe.Template {
	if m == nil {
		return nil
	}
	out := make(map[string]recipe.Template, len(m))
	for k, v := range m {
		out[k] = recipe.Template(v)
	}
	return out
}
