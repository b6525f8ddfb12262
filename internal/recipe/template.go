package recipe

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Placeholder names available to templates.
const (
	VarName        = "name"
	VarVersion     = "version"
	VarInstallRoot = "install_root"
	VarInstallDir  = "install_dir"
	VarSourceDir   = "source_dir"
	VarWorkDir     = "work_dir"
	VarJobs        = "jobs"
)

var (
	sourceVars  = []string{VarName, VarVersion}
	installVars = []string{VarName, VarVersion, VarInstallRoot}
	stepVars    = []string{VarName, VarVersion, VarInstallRoot, VarInstallDir, VarSourceDir, VarWorkDir, VarJobs}
)

// Returns every placeholder name a template may reference somewhere.
func PlaceholderNames() []string {
	return slices.Clone(stepVars)
}

// Placeholder values used to render templates.
type Vars map[string]string

// String with "${placeholder}" interpolations in HCL template syntax.
type Template string

// Returns the placeholder names referenced by t, in order of appearance.
func (t Template) Placeholders() ([]string, error) {
	expr, err := t.parse()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, tr := range expr.Variables() {
		if len(tr) != 1 {
			r := tr.SourceRange()
			return nil, fmt.Errorf("unsupported reference at column %d: only bare placeholder names are allowed", r.Start.Column)
		}
		if name := tr.RootName(); !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Renders t with the given placeholder values.
func (t Template) Render(vars Vars) (string, error) {
	expr, err := t.parse()
	if err != nil {
		return "", err
	}

	ctx := &hcl.EvalContext{Variables: make(map[string]cty.Value, len(vars))}
	for k, v := range vars {
		ctx.Variables[k] = cty.StringVal(v)
	}

	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return "", diags
	}
	val, err = convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if val.IsNull() || !val.IsKnown() {
		return "", fmt.Errorf("template %q produced no value", string(t))
	}
	return val.AsString(), nil
}

// Checks that t parses, references only the allowed placeholders, and
// renders when every one of them is set.
func (t Template) check(allowed []string) error {
	names, err := t.Placeholders()
	if err != nil {
		return err
	}
	for _, name := range names {
		if !slices.Contains(allowed, name) {
			return fmt.Errorf("undefined placeholder %q in %q", name, string(t))
		}
	}

	sample := make(Vars, len(allowed))
	for _, name := range allowed {
		sample[name] = "x"
	}
	_, err = t.Render(sample)
	return err
}

func (t Template) parse() (hclsyntax.Expression, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(t), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	return expr, nil
}

// Returns the placeholder values shared by every step template.
func stepVarsFor(name, version string, l Layout, installDir, sourceDir string) Vars {
	return Vars{
		VarName:        name,
		VarVersion:     version,
		VarInstallRoot: l.InstallRoot,
		VarInstallDir:  installDir,
		VarSourceDir:   sourceDir,
		VarWorkDir:     l.WorkDir,
		VarJobs:        strconv.Itoa(l.jobs()),
	}
}

// Checks every template in ts, reporting the first failure under field.
func checkAll(field string, ts []Template, allowed []string) error {
	for i, t := range ts {
		if err := t.check(allowed); err != nil {
			return malformedErr(fmt.Sprintf("%s[%d]", field, i), err)
		}
	}
	return nil
}

// Renders every template in ts.
func renderAll(ts []Template, vars Vars) ([]Template, error) {
	if ts == nil {
		return nil, nil
	}
	out := make([]Template, len(ts))
	for i, t := range ts {
		s, err := t.Render(vars)
		if err != nil {
			return nil, err
		}
		out[i] = Template(s)
	}
	return out, nil
}

// Renders every value of m.
func renderMap(m map[string]Template, vars Vars) (map[string]Template, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]Template, len(m))
	for k, t := range m {
		s, err := t.Render(vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = Template(s)
	}
	return out, nil
}
