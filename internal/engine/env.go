package engine

import (
	"path/filepath"
	"slices"
	"strings"
)

// Search path variables and the install subdirectory each one points at.
var searchPaths = []struct {
	key string
	sub string
}{
	{"PATH", "bin"},
	{"PKG_CONFIG_PATH", filepath.Join("lib", "pkgconfig")},
	{"LD_LIBRARY_PATH", "lib"},
	{"LIBRARY_PATH", "lib"},
	{"CPATH", "include"},
	{"CMAKE_PREFIX_PATH", ""},
}

// Returns the variables seeded for building a recipe.
//
// deps lists the install directories of the transitive dependencies in
// build order; the last one built comes first in every search path. Values
// already present in base are kept after the dependency entries.
func seedEnv(base []string, p *planned, runID string, deps []string) map[string]string {
	env := map[string]string{
		"PREFIX":           p.plan.InstallDir,
		"KILN_INSTALL_DIR": p.plan.InstallDir,
		"KILN_RECIPE":      p.plan.Name,
		"KILN_VERSION":     p.plan.Version,
		"KILN_RUN_ID":      runID,
	}

	nearest := slices.Clone(deps)
	slices.Reverse(nearest)

	for _, sp := range searchPaths {
		var entries []string
		for _, d := range nearest {
			entries = append(entries, filepath.Join(d, sp.sub))
		}
		if v := lookupEnv(base, sp.key); v != "" {
			entries = append(entries, v)
		}
		if len(entries) > 0 {
			env[sp.key] = strings.Join(entries, string(filepath.ListSeparator))
		}
	}

	flags := func(key, prefix, sub string) {
		var entries []string
		for _, d := range nearest {
			entries = append(entries, prefix+filepath.Join(d, sub))
		}
		if v := lookupEnv(base, key); v != "" {
			entries = append(entries, v)
		}
		if len(entries) > 0 {
			env[key] = strings.Join(entries, " ")
		}
	}
	flags("CPPFLAGS", "-I", "include")
	flags("LDFLAGS", "-L", "lib")

	return env
}

// Returns the value of key in env, or "".
func lookupEnv(env []string, key string) string {
	var value string
	for _, entry := range env {
		if v, ok := strings.CutPrefix(entry, key+"="); ok {
			value = v
		}
	}
	return value
}
