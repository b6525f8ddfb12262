// Package recipe defines the immutable build recipe model.
//
// A recipe names a component, its version, the recipes it depends on, where
// its source comes from, and the ordered steps that build and install it.
// Recipes are assembled from a [Definition] by [New], which validates every
// field and every placeholder reference up front so later stages never see a
// malformed recipe. A built [Recipe] cannot be modified; accessors return
// copies.
//
// String fields that vary per build are [Template] values using HCL template
// syntax: "${version}" interpolates a placeholder and "$${" produces a
// literal "${". Each template may only reference the placeholders available
// where it is used:
//
//	source url, relative path:  name, version
//	install path:               name, version, install_root
//	step fields:                name, version, install_root, install_dir,
//	                            source_dir, work_dir, jobs
//
// [Recipe.Render] resolves every template once into a [Plan] of concrete
// strings for a given directory layout.
//
// Example usage:
//
//	r, err := recipe.New(recipe.Definition{
//	    Name:    "zlib",
//	    Version: "1.3.1",
//	    Source: &recipe.Source{
//	        URL:    "https://zlib.net/zlib-${version}.tar.gz",
//	        Digest: "sha256:9a93b2b7...",
//	    },
//	    RelativePath: "zlib-${version}",
//	    Steps: []recipe.Step{
//	        recipe.AutotoolsStep{},
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	plan, err := r.Render(recipe.Layout{InstallRoot: "/opt", WorkDir: work, Jobs: 8})
package recipe
