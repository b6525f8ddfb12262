package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// A YAML document: either a list of recipes or a single recipe.
type yamlDocument struct {
	Recipes    []yamlRecipe `yaml:"recipes"`
	yamlRecipe `yaml:",inline"`
}

type yamlRecipe struct {
	Name           string      `yaml:"name"`
	DefaultVersion string      `yaml:"default_version"`
	Dependencies   []string    `yaml:"dependencies"`
	RelativePath   string      `yaml:"relative_path"`
	InstallPath    string      `yaml:"install_path"`
	Source         *yamlSource `yaml:"source"`
	Build          []yamlStep  `yaml:"build"`
}

type yamlSource struct {
	URL     string `yaml:"url"`
	SHA256  string `yaml:"sha256"`
	SHA512  string `yaml:"sha512"`
	Digest  string `yaml:"digest"`
	Extract string `yaml:"extract"`
}

// A build step written as a single-key mapping, "kind: {fields}".
type yamlStep struct {
	kind string
	node yaml.Node
}

type yamlRun struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`
}

type yamlLicense struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

type yamlAutotools struct {
	Prefix             string            `yaml:"prefix"`
	ConfigureOpts      []string          `yaml:"configure_opts"`
	DiscardDefaultOpts bool              `yaml:"discard_default_opts"`
	MakeArgs           []string          `yaml:"make_args"`
	Env                map[string]string `yaml:"env"`
}

func (s *yamlStep) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return fmt.Errorf("line %d: a step is a mapping with exactly one kind key", n.Line)
	}
	s.kind = n.Content[0].Value
	s.node = *n.Content[1]
	return nil
}

// Parses YAML recipe source into definitions. Multiple documents separated
// by "---" are allowed.
func ParseYAML(src []byte, filename string) ([]recipe.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)

	var defs []recipe.Definition
	for {
		var doc yamlDocument
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", recipe.ErrMalformedRecipe, filename, err)
		}

		recipes := doc.Recipes
		if doc.Name != "" {
			recipes = append(recipes, doc.yamlRecipe)
		}
		for _, r := range recipes {
			def, err := r.definition()
			if err != nil {
				return nil, fmt.Errorf("%s: recipe %q: %w", filename, r.Name, err)
			}
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (r *yamlRecipe) definition() (recipe.Definition, error) {
	def := recipe.Definition{
		Name:         r.Name,
		Version:      r.DefaultVersion,
		Dependencies: r.Dependencies,
		RelativePath: recipe.Template(r.RelativePath),
		InstallPath:  recipe.Template(r.InstallPath),
	}

	if s := r.Source; s != nil {
		d, err := sourceDigest("source", s.SHA256, s.SHA512, s.Digest)
		if err != nil {
			return def, err
		}
		def.Source = &recipe.Source{
			URL:     recipe.Template(s.URL),
			Digest:  digest.Digest(d),
			Extract: archive.Method(s.Extract),
		}
	}

	for i, s := range r.Build {
		step, err := s.decode()
		if err != nil {
			return def, fmt.Errorf("%w: build[%d]: %w", recipe.ErrMalformedRecipe, i, err)
		}
		def.Steps = append(def.Steps, step)
	}
	return def, nil
}

// Decodes the step body into out, rejecting keys out does not declare.
//
// Nodes decode without the options of the document decoder, so the body is
// re-encoded and decoded again with known fields enforced.
func (s *yamlStep) strict(out any) error {
	data, err := yaml.Marshal(&s.node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s step at line %d: %w", s.kind, s.node.Line, err)
	}
	return nil
}

// Decodes the step value according to its kind key.
func (s *yamlStep) decode() (recipe.Step, error) {
	switch recipe.StepKind(s.kind) {
	case recipe.KindRun:
		var b yamlRun
		if err := s.strict(&b); err != nil {
			return nil, err
		}
		return recipe.RunStep{
			Command: recipe.Template(b.Command),
			Args:    templates(b.Args),
			Dir:     recipe.Template(b.Dir),
			Env:     templateMap(b.Env),
		}, nil

	case recipe.KindDelete:
		if s.node.Kind == yaml.ScalarNode {
			return recipe.DeleteStep{Path: recipe.Template(s.node.Value)}, nil
		}
		var b struct {
			Path string `yaml:"path"`
		}
		if err := s.strict(&b); err != nil {
			return nil, err
		}
		return recipe.DeleteStep{Path: recipe.Template(b.Path)}, nil

	case recipe.KindLicense:
		var b yamlLicense
		if err := s.strict(&b); err != nil {
			return nil, err
		}
		return recipe.LicenseStep{Name: recipe.Template(b.Name), File: recipe.Template(b.File)}, nil

	case recipe.KindAutotools:
		var b yamlAutotools
		if err := s.strict(&b); err != nil {
			return nil, err
		}
		return recipe.AutotoolsStep{
			Prefix:             recipe.Template(b.Prefix),
			ConfigureOpts:      templates(b.ConfigureOpts),
			DiscardDefaultOpts: b.DiscardDefaultOpts,
			MakeArgs:           templates(b.MakeArgs),
			Env:                templateMap(b.Env),
		}, nil
	}
	return nil, fmt.Errorf("line %d: unsupported step kind %q", s.node.Line, s.kind)
}
