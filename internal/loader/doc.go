// Package loader reads recipe files into a [recipe.Catalog].
//
// Recipes are written in HCL (*.hcl) or YAML (*.yaml, *.yml). Paths may name
// files or directories; directories are walked recursively. A file may
// define any number of recipes, and recipe names must be unique across all
// loaded files.
//
// In HCL, placeholders such as ${version} are written exactly as they are
// stored in recipe templates. The loader evaluates each placeholder to
// itself, so an unknown name (a typo like ${verison}) is reported at load
// time:
//
//	recipe "librdkafka" {
//	  default_version = "2.2.0"
//	  dependencies    = ["cyrus-sasl"]
//	  relative_path   = "librdkafka-${version}"
//
//	  source {
//	    url     = "https://github.com/confluentinc/librdkafka/archive/refs/tags/v${version}.tar.gz"
//	    sha256  = "af9a820cbecbc64115629471df7c7cecd40403b6c34bfdbb9223152677a47226"
//	    extract = "seven_zip"
//	  }
//
//	  build {
//	    step "autotools" {
//	      prefix = "${install_dir}/embedded"
//	    }
//	  }
//	}
//
// The YAML form mirrors the HCL one, with build steps as a list of
// single-key mappings:
//
//	recipes:
//	  - name: zlib
//	    default_version: 1.3.1
//	    build:
//	      - autotools: {}
//
// Version overrides replace the default version of named recipes before
// they are validated.
package loader
