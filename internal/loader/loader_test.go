package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadTestdata(t *testing.T) {
	catalog, err := New().Load(context.Background(), "testdata/recipes")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff([]string{"cyrus-sasl", "librdkafka"}, catalog.Names()); diff != "" {
		t.Fatalf("Names() mismatch (-want +got):\n%s", diff)
	}

	r, _ := catalog.Get("librdkafka")
	if r.Version() != "2.2.0" || r.RelativePath() != "librdkafka-2.2.0" {
		t.Fatalf("librdkafka = %s, relative path %q", r.Version(), r.RelativePath())
	}
	src, ok := r.Source()
	if !ok {
		t.Fatal("librdkafka has no source")
	}
	if src.Extract != archive.MethodSevenZip {
		t.Fatalf("Extract = %q", src.Extract)
	}
	if src.Digest.Encoded() != "af9a820cbecbc64115629471df7c7cecd40403b6c34bfdbb9223152677a47226" {
		t.Fatalf("Digest = %s", src.Digest)
	}

	steps := r.Steps()
	kinds := make([]recipe.StepKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind()
	}
	want := []recipe.StepKind{recipe.KindLicense, recipe.KindAutotools, recipe.KindDelete}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("step kinds mismatch (-want +got):\n%s", diff)
	}
	at := steps[1].(recipe.AutotoolsStep)
	if at.Prefix != "${install_dir}/embedded" || !at.DiscardDefaultOpts {
		t.Fatalf("autotools step = %+v", at)
	}

	sasl, _ := catalog.Get("cyrus-sasl")
	if sasl.Version() != "2.1.28" {
		t.Fatalf("cyrus-sasl version = %q", sasl.Version())
	}
	del := sasl.Steps()[2].(recipe.DeleteStep)
	if del.Path != "${install_dir}/share/man" {
		t.Fatalf("delete path = %q", del.Path)
	}
}

func TestLoadVersionOverride(t *testing.T) {
	l := New(WithVersions(map[string]string{"librdkafka": "2.3.0"}))
	catalog, err := l.Load(context.Background(), "testdata/recipes")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	r, _ := catalog.Get("librdkafka")
	if r.Version() != "2.3.0" || r.RelativePath() != "librdkafka-2.3.0" {
		t.Fatalf("override not applied: %s %q", r.Version(), r.RelativePath())
	}

	l = New(WithVersions(map[string]string{"openssl": "3.0.0"}))
	_, err = l.Load(context.Background(), "testdata/recipes")
	if !errors.Is(err, ErrUnknownOverride) || !errdefs.IsNotFound(err) {
		t.Fatalf("Load() error = %v, want ErrUnknownOverride", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{
			name:    "unknown placeholder",
			file:    "a.hcl",
			content: "recipe \"a\" {\ndefault_version = \"1\"\nbuild {\nstep \"run\" { command = \"${verison}\" }\n}\n}\n",
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "unknown step kind",
			file:    "a.hcl",
			content: "recipe \"a\" {\ndefault_version = \"1\"\nbuild {\nstep \"patch\" { file = \"x\" }\n}\n}\n",
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "syntax error",
			file:    "a.hcl",
			content: `recipe "a" {`,
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "no steps",
			file:    "a.hcl",
			content: `recipe "a" { default_version = "1" }`,
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "two digests",
			file:    "a.yaml",
			content: "name: a\ndefault_version: '1'\nsource: {url: x, sha256: ab, digest: 'sha256:ab'}\nbuild: [{delete: x}]\n",
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "unknown yaml field",
			file:    "a.yaml",
			content: "name: a\ndefault_version: '1'\nbiuld: []\n",
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "unknown autotools field",
			file:    "a.yaml",
			content: "name: a\ndefault_version: '1'\nbuild:\n  - autotools: {configure_optz: [--disable-ssl]}\n",
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "unknown run field",
			file:    "a.yaml",
			content: "name: a\ndefault_version: '1'\nbuild:\n  - run: {command: make, argz: [all]}\n",
			want:    recipe.ErrMalformedRecipe,
		},
		{
			name:    "step with two kinds",
			file:    "a.yml",
			content: "name: a\ndefault_version: '1'\nbuild:\n  - {delete: x, run: {command: y}}\n",
			want:    recipe.ErrMalformedRecipe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.content)

			_, err := New().Load(context.Background(), dir)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadDuplicate(t *testing.T) {
	dir := t.TempDir()
	body := "default_version = \"1\"\nbuild {\n step \"run\" { command = \"true\" }\n}\n"
	writeFile(t, dir, "a.hcl", `recipe "zlib" {`+"\n"+body+"}\n")
	writeFile(t, dir, "b.hcl", `recipe "zlib" {`+"\n"+body+"}\n")

	_, err := New().Load(context.Background(), dir)
	if !errors.Is(err, recipe.ErrDuplicateRecipe) {
		t.Fatalf("Load() error = %v, want ErrDuplicateRecipe", err)
	}
}

func TestLoadNoFiles(t *testing.T) {
	_, err := New().Load(context.Background(), t.TempDir(), "/does/not/exist")
	if !errors.Is(err, ErrNoRecipes) {
		t.Fatalf("Load() error = %v, want ErrNoRecipes", err)
	}
}

func TestParseHCLEscapes(t *testing.T) {
	src := `
recipe "tool" {
  default_version = "0.1"
  build {
    step "run" {
      command = "sh"
      args    = ["-c", "echo ${name}-${version} > ${install_dir}/VERSION"]
      env     = { CFLAGS = "-O2 -j${jobs}" }
    }
  }
}
`
	defs, err := ParseHCL([]byte(src), "tool.hcl")
	if err != nil {
		t.Fatalf("ParseHCL() error = %v", err)
	}
	run := defs[0].Steps[0].(recipe.RunStep)
	if got := string(run.Args[1]); got != "echo ${name}-${version} > ${install_dir}/VERSION" {
		t.Fatalf("args[1] = %q", got)
	}
	if got := string(run.Env["CFLAGS"]); got != "-O2 -j${jobs}" {
		t.Fatalf("env = %q", got)
	}
}

func TestParseHCLLiteralDollar(t *testing.T) {
	src := `
recipe "tool" {
  default_version = "0.1"
  build {
    step "run" {
      command = "sh"
      args    = ["-c", "echo $${HOME} %%{x} ${name}"]
    }
  }
}
`
	defs, err := ParseHCL([]byte(src), "tool.hcl")
	if err != nil {
		t.Fatalf("ParseHCL() error = %v", err)
	}
	r, err := recipe.New(defs[0])
	if err != nil {
		t.Fatalf("recipe.New() error = %v", err)
	}
	plan, err := r.Render(recipe.Layout{InstallRoot: t.TempDir(), WorkDir: t.TempDir(), Jobs: 1})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	run := plan.Steps[0].(recipe.RunStep)
	if got := string(run.Args[1]); got != "echo ${HOME} %{x} tool" {
		t.Fatalf("rendered args[1] = %q", got)
	}
}

func TestParseVersions(t *testing.T) {
	got, err := ParseVersions([]string{"librdkafka=2.3.0", " zlib = 1.3 "})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"librdkafka": "2.3.0", "zlib": "1.3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParseVersions() mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"zlib", "=1", "zlib="} {
		if _, err := ParseVersions([]string{bad}); !errors.Is(err, ErrInvalidOverride) {
			t.Errorf("ParseVersions(%q) error = %v, want ErrInvalidOverride", bad, err)
		}
	}
}

func TestFindRecipeFilesSorted(t *testing.T) {
	files, err := findRecipeFiles([]string{"testdata/recipes", "testdata/recipes/librdkafka.hcl"})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.ToSlash(f))
	}
	want := []string{
		"testdata/recipes/deps/cyrus-sasl.yaml",
		"testdata/recipes/librdkafka.hcl",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("files mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(strings.Join(names, ","), "README") {
		t.Fatal("non-recipe file included")
	}
}
