package loader

import (
	"fmt"
	"strings"

	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/opencontainers/go-digest"
	"github.com/zclconf/go-cty/cty"
)

// Top-level blocks of an HCL recipe file.
type hclFile struct {
	Recipes []*hclRecipe `hcl:"recipe,block"`
}

type hclRecipe struct {
	Name           string     `hcl:"name,label"`
	DefaultVersion string     `hcl:"default_version,optional"`
	Dependencies   []string   `hcl:"dependencies,optional"`
	RelativePath   string     `hcl:"relative_path,optional"`
	InstallPath    string     `hcl:"install_path,optional"`
	Source         *hclSource `hcl:"source,block"`
	Build          *hclBuild  `hcl:"build,block"`
}

type hclSource struct {
	URL     string `hcl:"url"`
	SHA256  string `hcl:"sha256,optional"`
	SHA512  string `hcl:"sha512,optional"`
	Digest  string `hcl:"digest,optional"`
	Extract string `hcl:"extract,optional"`
}

type hclBuild struct {
	Steps []*hclStep `hcl:"step,block"`
}

// A step block. The body is decoded once the kind label is known.
type hclStep struct {
	Kind     string    `hcl:"kind,label"`
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}

type hclRun struct {
	Command string            `hcl:"command"`
	Args    []string          `hcl:"args,optional"`
	Dir     string            `hcl:"dir,optional"`
	Env     map[string]string `hcl:"env,optional"`
}

type hclDelete struct {
	Path string `hcl:"path"`
}

type hclLicense struct {
	Name string `hcl:"name"`
	File string `hcl:"file,optional"`
}

type hclAutotools struct {
	Prefix             string            `hcl:"prefix,optional"`
	ConfigureOpts      []string          `hcl:"configure_opts,optional"`
	DiscardDefaultOpts bool              `hcl:"discard_default_opts,optional"`
	MakeArgs           []string          `hcl:"make_args,optional"`
	Env                map[string]string `hcl:"env,optional"`
}

// Parses HCL recipe source into definitions.
//
// Syntax errors, unknown attributes, unknown step kinds, and references to
// undefined placeholders are reported as recipe.ErrMalformedRecipe.
func ParseHCL(src []byte, filename string) ([]recipe.Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", recipe.ErrMalformedRecipe, diags)
	}

	ctx := placeholderContext()

	var root hclFile
	if diags := gohcl.DecodeBody(file.Body, ctx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", recipe.ErrMalformedRecipe, diags)
	}

	defs := make([]recipe.Definition, 0, len(root.Recipes))
	for _, r := range root.Recipes {
		def, err := r.definition(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: recipe %q: %w", filename, r.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Brackets a placeholder name in decoded attribute values.
const (
	markOpen  = "\x00"
	markClose = "\x01"
)

// Returns an evaluation context mapping every placeholder to a marked copy
// of its name. [hclTemplate] turns decoded values back into recipe templates.
func placeholderContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, name := range recipe.PlaceholderNames() {
		vars[name] = cty.StringVal(markOpen + name + markClose)
	}
	return &hcl.EvalContext{Variables: vars}
}

// Converts a decoded attribute value into a recipe template.
//
// HCL has already evaluated the value once, turning "$${" into a literal
// "${". Template sequences left in the value are escaped again so they stay
// literal, and placeholder markers become "${name}" interpolations.
func hclTemplate(s string) recipe.Template {
	s = strings.ReplaceAll(s, "${", "$${")
	s = strings.ReplaceAll(s, "%{", "%%{")
	s = strings.ReplaceAll(s, markOpen, "${")
	s = strings.ReplaceAll(s, markClose, "}")
	return recipe.Template(s)
}

func hclTemplates(ss []string) []recipe.Template {
	if ss == nil {
		return nil
	}
	out := make([]recipe.Template, len(ss))
	for i, s := range ss {
		out[i] = hclTemplate(s)
	}
	return out
}

func hclTemplateMap(m map[string]string) map[string]recipe.Template {
	if m == nil {
		return nil
	}
	out := make(map[string]recipe.Template, len(m))
	for k, v := range m {
		out[k] = hclTemplate(v)
	}
	return out
}

func (r *hclRecipe) definition(ctx *hcl.EvalContext) (recipe.Definition, error) {
	def := recipe.Definition{
		Name:         r.Name,
		Version:      r.DefaultVersion,
		Dependencies: r.Dependencies,
		RelativePath: hclTemplate(r.RelativePath),
		InstallPath:  hclTemplate(r.InstallPath),
	}

	if s := r.Source; s != nil {
		d, err := sourceDigest("source", s.SHA256, s.SHA512, s.Digest)
		if err != nil {
			return def, err
		}
		def.Source = &recipe.Source{
			URL:     hclTemplate(s.URL),
			Digest:  digest.Digest(d),
			Extract: archive.Method(s.Extract),
		}
	}

	if r.Build != nil {
		for _, s := range r.Build.Steps {
			step, diags := s.decode(ctx)
			if diags.HasErrors() {
				return def, fmt.Errorf("%w: %w", recipe.ErrMalformedRecipe, diags)
			}
			def.Steps = append(def.Steps, step)
		}
	}
	return def, nil
}

// Decodes the step body according to its kind label.
func (s *hclStep) decode(ctx *hcl.EvalContext) (recipe.Step, hcl.Diagnostics) {
	switch recipe.StepKind(s.Kind) {
	case recipe.KindRun:
		var b hclRun
		diags := gohcl.DecodeBody(s.Body, ctx, &b)
		return recipe.RunStep{
			Command: hclTemplate(b.Command),
			Args:    hclTemplates(b.Args),
			Dir:     hclTemplate(b.Dir),
			Env:     hclTemplateMap(b.Env),
		}, diags

	case recipe.KindDelete:
		var b hclDelete
		diags := gohcl.DecodeBody(s.Body, ctx, &b)
		return recipe.DeleteStep{Path: hclTemplate(b.Path)}, diags

	case recipe.KindLicense:
		var b hclLicense
		diags := gohcl.DecodeBody(s.Body, ctx, &b)
		return recipe.LicenseStep{Name: hclTemplate(b.Name), File: hclTemplate(b.File)}, diags

	case recipe.KindAutotools:
		var b hclAutotools
		diags := gohcl.DecodeBody(s.Body, ctx, &b)
		return recipe.AutotoolsStep{
			Prefix:             hclTemplate(b.Prefix),
			ConfigureOpts:      hclTemplates(b.ConfigureOpts),
			DiscardDefaultOpts: b.DiscardDefaultOpts,
			MakeArgs:           hclTemplates(b.MakeArgs),
			Env:                hclTemplateMap(b.Env),
		}, diags
	}

	return nil, hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Unsupported step kind",
		Detail:   fmt.Sprintf("Step kind %q is not one of run, delete, license, autotools.", s.Kind),
		Subject:  &s.DefRange,
	}}
}
