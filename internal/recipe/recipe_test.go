package recipe

import (
	"errors"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/google/go-cmp/cmp"
	"github.com/opencontainers/go-digest"
)

const rdkafkaDigest = digest.Digest("sha256:af9a820cbecbc64115629471df7c7cecd40403b6c34bfdbb9223152677a47226")

func rdkafka() Definition {
	return Definition{
		Name:         "librdkafka",
		Version:      "2.2.0",
		Dependencies: []string{"cyrus-sasl"},
		Source: &Source{
			URL:     "https://github.com/confluentinc/librdkafka/archive/refs/tags/v${version}.tar.gz",
			Digest:  rdkafkaDigest,
			Extract: archive.MethodSevenZip,
		},
		RelativePath: "librdkafka-${version}",
		Steps: []Step{
			LicenseStep{Name: "BSD-style", File: "LICENSE"},
			AutotoolsStep{
				DiscardDefaultOpts: true,
				Prefix:             "${install_dir}/embedded",
				ConfigureOpts:      []Template{"--enable-shared", "--enable-sasl", "--disable-dependency-tracking"},
			},
			DeleteStep{Path: "${install_dir}/embedded/lib/librdkafka.a"},
		},
	}
}

func TestNew(t *testing.T) {
	r, err := New(rdkafka())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if r.Name() != "librdkafka" || r.Version() != "2.2.0" {
		t.Fatalf("identity = %s %s", r.Name(), r.Version())
	}
	if r.RelativePath() != "librdkafka-2.2.0" {
		t.Fatalf("RelativePath() = %q", r.RelativePath())
	}
	if r.InstallPath() != DefaultInstallPath {
		t.Fatalf("InstallPath() = %q, want default", r.InstallPath())
	}
	if err := r.Fingerprint().Validate(); err != nil {
		t.Fatalf("Fingerprint() invalid: %v", err)
	}
}

func TestNewMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
		field  string
	}{
		{"empty name", func(d *Definition) { d.Name = "" }, "name"},
		{"empty version", func(d *Definition) { d.Version = " " }, "version"},
		{"name with slash", func(d *Definition) { d.Name = "a/b" }, "name"},
		{"no steps", func(d *Definition) { d.Steps = nil }, "steps"},
		{"nil step", func(d *Definition) { d.Steps = []Step{nil} }, "steps[0]"},
		{"run without command", func(d *Definition) { d.Steps = []Step{RunStep{}} }, "command"},
		{"delete without path", func(d *Definition) { d.Steps = []Step{DeleteStep{}} }, "path"},
		{"license without name", func(d *Definition) { d.Steps = []Step{LicenseStep{}} }, "name"},
		{"url undefined placeholder", func(d *Definition) { d.Source.URL = "https://x/${install_dir}.tgz" }, "source.url"},
		{"url attribute access", func(d *Definition) { d.Source.URL = "https://x/${version.major}.tgz" }, "source.url"},
		{"url function call", func(d *Definition) { d.Source.URL = "https://x/${upper(version)}.tgz" }, "source.url"},
		{"missing digest", func(d *Definition) { d.Source.Digest = "" }, "source.digest"},
		{"bad digest", func(d *Definition) { d.Source.Digest = "sha256:abc" }, "source.digest"},
		{"unknown algorithm", func(d *Definition) { d.Source.Digest = "md5:d41d8cd98f00b204e9800998ecf8427e" }, "source.digest"},
		{"unknown extraction", func(d *Definition) { d.Source.Extract = "rar" }, "source.extract"},
		{"relative path escapes", func(d *Definition) { d.RelativePath = "../${name}" }, "relative_path"},
		{"relative path jobs", func(d *Definition) { d.RelativePath = "${jobs}" }, "relative_path"},
		{"install path source dir", func(d *Definition) { d.InstallPath = "${source_dir}" }, "install_path"},
		{"step undefined placeholder", func(d *Definition) { d.Steps = []Step{RunStep{Command: "make", Args: []Template{"${target}"}}} }, "args[0]"},
		{"bad env name", func(d *Definition) { d.Steps = []Step{RunStep{Command: "make", Env: map[string]Template{"A=B": "x"}}} }, "env"},
		{"duplicate dependency", func(d *Definition) { d.Dependencies = []string{"zlib", "zlib"} }, "dependencies"},
		{"unterminated template", func(d *Definition) { d.Steps = []Step{DeleteStep{Path: "${install_dir"}} }, "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := rdkafka()
			tt.mutate(&def)

			_, err := New(def)
			if !errors.Is(err, ErrMalformedRecipe) {
				t.Fatalf("New() error = %v, want ErrMalformedRecipe", err)
			}
			if !errdefs.IsInvalidArgument(err) {
				t.Fatalf("error %v is not classified as invalid argument", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q does not name field %q", err, tt.field)
			}
		})
	}
}

func TestRecipeIsImmutable(t *testing.T) {
	def := rdkafka()
	r, err := New(def)
	if err != nil {
		t.Fatal(err)
	}
	fp := r.Fingerprint()

	def.Dependencies[0] = "zlib"
	def.Source.URL = "https://elsewhere/${version}.tgz"
	def.Steps[1].(AutotoolsStep).ConfigureOpts[0] = "--mutated"

	deps := r.Dependencies()
	deps[0] = "openssl"
	steps := r.Steps()
	steps[1].(AutotoolsStep).ConfigureOpts[0] = "--mutated"

	if got := r.Dependencies(); got[0] != "cyrus-sasl" {
		t.Fatalf("Dependencies() = %v, mutated through a copy", got)
	}
	if src, _ := r.Source(); !strings.Contains(string(src.URL), "confluentinc") {
		t.Fatalf("Source().URL = %q, mutated through the definition", src.URL)
	}
	if got := r.Steps()[1].(AutotoolsStep).ConfigureOpts[0]; got != "--enable-shared" {
		t.Fatalf("configure option = %q, mutated through a copy", got)
	}
	if r.Fingerprint() != fp {
		t.Fatal("fingerprint changed")
	}
}

func TestFingerprint(t *testing.T) {
	a, _ := New(rdkafka())
	b, _ := New(rdkafka())
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("equal definitions have different fingerprints")
	}

	c, err := a.WithVersion("2.3.0")
	if err != nil {
		t.Fatal(err)
	}
	if c.Fingerprint() == a.Fingerprint() {
		t.Fatal("version change did not change the fingerprint")
	}
	if c.RelativePath() != "librdkafka-2.3.0" {
		t.Fatalf("RelativePath() = %q after version override", c.RelativePath())
	}

	def := rdkafka()
	def.Steps = append(def.Steps, RunStep{Command: "true"})
	d, _ := New(def)
	if d.Fingerprint() == a.Fingerprint() {
		t.Fatal("added step did not change the fingerprint")
	}
}

func TestRender(t *testing.T) {
	r, err := New(rdkafka())
	if err != nil {
		t.Fatal(err)
	}

	plan, err := r.Render(Layout{InstallRoot: "/opt/kiln", WorkDir: "/tmp/work", Jobs: 4})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if plan.InstallDir != "/opt/kiln/librdkafka/2.2.0" {
		t.Fatalf("InstallDir = %q", plan.InstallDir)
	}
	if plan.SourceDir != "/tmp/work/src/librdkafka-2.2.0" {
		t.Fatalf("SourceDir = %q", plan.SourceDir)
	}
	wantURL := "https://github.com/confluentinc/librdkafka/archive/refs/tags/v2.2.0.tar.gz"
	if plan.Source.URL != wantURL || plan.Source.Filename() != "v2.2.0.tar.gz" {
		t.Fatalf("Source = %+v", plan.Source)
	}

	at := plan.Steps[1].(AutotoolsStep)
	want := []string{
		"--prefix=/opt/kiln/librdkafka/2.2.0/embedded",
		"--enable-shared",
		"--enable-sasl",
		"--disable-dependency-tracking",
	}
	if diff := cmp.Diff(want, at.ConfigureArgs()); diff != "" {
		t.Fatalf("ConfigureArgs() mismatch (-want +got):\n%s", diff)
	}

	del := plan.Steps[2].(DeleteStep)
	if del.Path != "/opt/kiln/librdkafka/2.2.0/embedded/lib/librdkafka.a" {
		t.Fatalf("delete path = %q", del.Path)
	}
}

func TestRenderDefaults(t *testing.T) {
	r, err := New(Definition{
		Name:        "zlib",
		Version:     "1.3.1",
		InstallPath: "${install_root}/${name}",
		Steps: []Step{
			AutotoolsStep{},
			RunStep{Command: "make", Args: []Template{"-j${jobs}", "$${literal}"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	plan, err := r.Render(Layout{InstallRoot: "/opt", WorkDir: "/w", Jobs: 3})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Source != nil {
		t.Fatalf("Source = %+v, want nil", plan.Source)
	}
	if plan.SourceDir != "/w/src" {
		t.Fatalf("SourceDir = %q", plan.SourceDir)
	}

	want := []string{"--disable-static", "--prefix=/opt/zlib"}
	if diff := cmp.Diff(want, plan.Steps[0].(AutotoolsStep).ConfigureArgs()); diff != "" {
		t.Fatalf("ConfigureArgs() mismatch (-want +got):\n%s", diff)
	}
	run := plan.Steps[1].(RunStep)
	if diff := cmp.Diff([]Template{"-j3", "${literal}"}, run.Args); diff != "" {
		t.Fatalf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestTemplatePlaceholders(t *testing.T) {
	tests := []struct {
		in   Template
		want []string
	}{
		{"plain", nil},
		{"v${version}.tar.gz", []string{"version"}},
		{"${name}-${version}-${name}", []string{"name", "version"}},
		{"$${escaped}", nil},
	}

	for _, tt := range tests {
		got, err := tt.in.Placeholders()
		if err != nil {
			t.Errorf("Placeholders(%q) error = %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Placeholders(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestCatalog(t *testing.T) {
	a, _ := New(rdkafka())
	def := rdkafka()
	def.Name = "cyrus-sasl"
	def.Dependencies = nil
	b, _ := New(def)

	c, err := NewCatalog(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"cyrus-sasl", "librdkafka"}, c.Names()); diff != "" {
		t.Fatalf("Names() mismatch (-want +got):\n%s", diff)
	}
	if deps, ok := c.Dependencies("librdkafka"); !ok || deps[0] != "cyrus-sasl" {
		t.Fatalf("Dependencies() = %v, %v", deps, ok)
	}
	if _, ok := c.Dependencies("zlib"); ok {
		t.Fatal("Dependencies() found an unknown recipe")
	}

	err = c.Add(a)
	if !errors.Is(err, ErrDuplicateRecipe) || !errdefs.IsAlreadyExists(err) {
		t.Fatalf("Add() duplicate error = %v", err)
	}
}
