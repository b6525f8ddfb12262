package recipe

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
)

// Kind of a build step.
type StepKind string

const (
	KindRun       StepKind = "run"       // Run an external tool.
	KindDelete    StepKind = "delete"    // Delete a path.
	KindLicense   StepKind = "license"   // Declare the license of the component.
	KindAutotools StepKind = "autotools" // Configure, make, and make install.
)

// Default options passed to ./configure by [AutotoolsStep].
var DefaultConfigureOpts = []string{"--disable-static"}

// A single build step.
//
// Steps are one of [RunStep], [DeleteStep], [LicenseStep], or
// [AutotoolsStep]. Consumers switch on the concrete type.
type Step interface {

	// Returns the kind of the step.
	Kind() StepKind

	// Returns a short description used in logs and errors, such as "run make".
	String() string

	validate() error
	render(vars Vars) (Step, error)
	clone() Step
}

// Runs an external tool.
type RunStep struct {
	Command Template            // Program to run, looked up in PATH when not a path.
	Args    []Template          // Arguments.
	Dir     Template            // Working directory; defaults to the source dir.
	Env     map[string]Template // Extra environment variables.
}

func (s RunStep) Kind() StepKind { return KindRun }

func (s RunStep) String() string {
	return "run " + path.Base(string(s.Command))
}

func (s RunStep) validate() error {
	if strings.TrimSpace(string(s.Command)) == "" {
		return malformed("command", "missing")
	}
	if err := s.Command.check(stepVars); err != nil {
		return malformedErr("command", err)
	}
	if err := checkAll("args", s.Args, stepVars); err != nil {
		return err
	}
	if err := s.Dir.check(stepVars); err != nil {
		return malformedErr("dir", err)
	}
	return checkEnv(s.Env)
}

func (s RunStep) render(vars Vars) (Step, error) {
	var out RunStep
	var err error
	if out.Command, err = renderOne(s.Command, vars); err != nil {
		return nil, err
	}
	if out.Args, err = renderAll(s.Args, vars); err != nil {
		return nil, err
	}
	if out.Dir, err = renderOne(s.Dir, vars); err != nil {
		return nil, err
	}
	if out.Env, err = renderMap(s.Env, vars); err != nil {
		return nil, err
	}
	return out, nil
}

func (s RunStep) clone() Step {
	s.Args = slices.Clone(s.Args)
	s.Env = maps.Clone(s.Env)
	return s
}

// Deletes a path. Relative paths are resolved against the source dir.
type DeleteStep struct {
	Path Template
}

func (s DeleteStep) Kind() StepKind { return KindDelete }

func (s DeleteStep) String() string { return "delete " + string(s.Path) }

func (s DeleteStep) validate() error {
	if strings.TrimSpace(string(s.Path)) == "" {
		return malformed("path", "missing")
	}
	if err := s.Path.check(stepVars); err != nil {
		return malformedErr("path", err)
	}
	return nil
}

func (s DeleteStep) render(vars Vars) (Step, error) {
	p, err := renderOne(s.Path, vars)
	if err != nil {
		return nil, err
	}
	return DeleteStep{Path: p}, nil
}

func (s DeleteStep) clone() Step { return s }

// Declares the license of the component.
//
// File is optional and may be a path relative to the source dir or a URL.
// Local files are installed with the component; URLs are only recorded.
type LicenseStep struct {
	Name Template
	File Template
}

func (s LicenseStep) Kind() StepKind { return KindLicense }

func (s LicenseStep) String() string { return "license " + string(s.Name) }

func (s LicenseStep) validate() error {
	if strings.TrimSpace(string(s.Name)) == "" {
		return malformed("name", "missing")
	}
	if err := s.Name.check(stepVars); err != nil {
		return malformedErr("name", err)
	}
	if err := s.File.check(stepVars); err != nil {
		return malformedErr("file", err)
	}
	return nil
}

func (s LicenseStep) render(vars Vars) (Step, error) {
	var out LicenseStep
	var err error
	if out.Name, err = renderOne(s.Name, vars); err != nil {
		return nil, err
	}
	if out.File, err = renderOne(s.File, vars); err != nil {
		return nil, err
	}
	return out, nil
}

func (s LicenseStep) clone() Step { return s }

// Returns true if File names a remote document rather than a local file.
func (s LicenseStep) IsRemote() bool {
	f := string(s.File)
	return strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://")
}

// Builds an autotools project in the source dir.
//
// Runs "./configure" with the default options (unless discarded), the
// prefix, and ConfigureOpts; then "make -j<jobs>" with MakeArgs; then
// "make install".
type AutotoolsStep struct {
	Prefix             Template            // Install prefix; defaults to ${install_dir}.
	ConfigureOpts      []Template          // Extra ./configure options.
	DiscardDefaultOpts bool                // Omit DefaultConfigureOpts.
	MakeArgs           []Template          // Extra make arguments.
	Env                map[string]Template // Extra environment variables.
}

func (s AutotoolsStep) Kind() StepKind { return KindAutotools }

func (s AutotoolsStep) String() string { return "autotools" }

func (s AutotoolsStep) validate() error {
	if err := s.Prefix.check(stepVars); err != nil {
		return malformedErr("prefix", err)
	}
	if err := checkAll("configure_opts", s.ConfigureOpts, stepVars); err != nil {
		return err
	}
	if err := checkAll("make_args", s.MakeArgs, stepVars); err != nil {
		return err
	}
	return checkEnv(s.Env)
}

func (s AutotoolsStep) render(vars Vars) (Step, error) {
	out := AutotoolsStep{DiscardDefaultOpts: s.DiscardDefaultOpts}
	var err error
	prefix := s.Prefix
	if prefix == "" {
		prefix = "${" + VarInstallDir + "}"
	}
	if out.Prefix, err = renderOne(prefix, vars); err != nil {
		return nil, err
	}
	if out.ConfigureOpts, err = renderAll(s.ConfigureOpts, vars); err != nil {
		return nil, err
	}
	if out.MakeArgs, err = renderAll(s.MakeArgs, vars); err != nil {
		return nil, err
	}
	if out.Env, err = renderMap(s.Env, vars); err != nil {
		return nil, err
	}
	return out, nil
}

func (s AutotoolsStep) clone() Step {
	s.ConfigureOpts = slices.Clone(s.ConfigureOpts)
	s.MakeArgs = slices.Clone(s.MakeArgs)
	s.Env = maps.Clone(s.Env)
	return s
}

// Returns the full ./configure argument list of a rendered step.
func (s AutotoolsStep) ConfigureArgs() []string {
	var args []string
	if !s.DiscardDefaultOpts {
		args = append(args, DefaultConfigureOpts...)
	}
	args = append(args, "--prefix="+string(s.Prefix))
	for _, o := range s.ConfigureOpts {
		args = append(args, string(o))
	}
	return args
}

func renderOne(t Template, vars Vars) (Template, error) {
	if t == "" {
		return "", nil
	}
	s, err := t.Render(vars)
	if err != nil {
		return "", err
	}
	return Template(s), nil
}

// Validates environment variable names and values.
func checkEnv(env map[string]Template) error {
	for _, k := range slices.Sorted(maps.Keys(env)) {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			return malformed("env", "invalid variable name %q", k)
		}
		if err := env[k].check(stepVars); err != nil {
			return malformedErr(fmt.Sprintf("env[%s]", k), err)
		}
	}
	return nil
}
