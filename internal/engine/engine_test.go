package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cruciblehq/kiln/internal"
	"github.com/cruciblehq/kiln/internal/archive"
	"github.com/cruciblehq/kiln/internal/build"
	"github.com/cruciblehq/kiln/internal/fetch"
	"github.com/cruciblehq/kiln/internal/recipe"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"
)

// Returns an engine rooted in temporary directories.
func newEngine(t *testing.T, jobs int) *Engine {
	t.Helper()
	root := t.TempDir()
	e, err := New(Config{
		InstallRoot: filepath.Join(root, "install"),
		WorkRoot:    filepath.Join(root, "work"),
		CacheDir:    filepath.Join(root, "cache"),
		Jobs:        jobs,
		MakeJobs:    1,
		Retries:     -1,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

// Returns a recipe that runs script with /bin/sh.
func shRecipe(t *testing.T, name string, deps []string, script string) *recipe.Recipe {
	t.Helper()
	r, err := recipe.New(recipe.Definition{
		Name:         name,
		Version:      "1.0",
		Dependencies: deps,
		Steps: []recipe.Step{recipe.RunStep{
			Command: "/bin/sh",
			Args:    []recipe.Template{"-c", recipe.Template(script)},
		}},
	})
	if err != nil {
		t.Fatalf("recipe.New(%s) error = %v", name, err)
	}
	return r
}

func catalog(t *testing.T, recipes ...*recipe.Recipe) *recipe.Catalog {
	t.Helper()
	c, err := recipe.NewCatalog(recipes...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// Returns the lines of the file at p, or nil if it does not exist.
func lines(t *testing.T, p string) []string {
	t.Helper()
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Fields(string(data))
}

// Returns a diamond catalog whose recipes append their name to journal.
func diamond(t *testing.T, journal string) *recipe.Catalog {
	t.Helper()
	step := func(name string) string {
		return "echo " + name + " >> " + journal + " && mkdir -p ${install_dir}/bin && touch ${install_dir}/bin/" + name
	}
	return catalog(t,
		shRecipe(t, "zlib", nil, step("zlib")),
		shRecipe(t, "openssl", []string{"zlib"}, step("openssl")),
		shRecipe(t, "curl", []string{"openssl", "zlib"}, step("curl")),
		shRecipe(t, "app", []string{"curl"}, step("app")),
	)
}

func TestRunBuildsInResolverOrder(t *testing.T) {
	e := newEngine(t, 1)
	journal := filepath.Join(t.TempDir(), "journal")

	result, err := e.Run(context.Background(), "app", diamond(t, journal))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"zlib", "openssl", "curl", "app"}
	if diff := cmp.Diff(want, result.Order); diff != "" {
		t.Fatalf("Order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, lines(t, journal)); diff != "" {
		t.Fatalf("execution order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, result.Built); diff != "" {
		t.Fatalf("Built mismatch (-want +got):\n%s", diff)
	}
	if len(result.Cached) != 0 {
		t.Fatalf("Cached = %v, want none", result.Cached)
	}

	for _, name := range want {
		dir := result.Installs[name]
		if dir != filepath.Join(e.cfg.InstallRoot, name, "1.0") {
			t.Fatalf("Installs[%s] = %q", name, dir)
		}
		s, err := readStamp(stampPath(dir, name))
		if err != nil || s == nil {
			t.Fatalf("stamp of %s: %v, %v", name, s, err)
		}
		if s.RunID != result.RunID || s.Platform != e.rt.Platform() {
			t.Fatalf("stamp of %s = %+v", name, s)
		}
	}

	entries, err := os.ReadDir(e.cfg.WorkRoot)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("work root holds %d entries after success, want 0", len(entries))
	}
}

func TestRunParallelRespectsDependencies(t *testing.T) {
	e := newEngine(t, 4)
	journal := filepath.Join(t.TempDir(), "journal")

	if _, err := e.Run(context.Background(), "app", diamond(t, journal)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := lines(t, journal)
	pos := make(map[string]int)
	for i, n := range got {
		pos[n] = i
	}
	if len(pos) != 4 {
		t.Fatalf("journal = %v, want each recipe once", got)
	}
	for _, edge := range [][2]string{{"zlib", "openssl"}, {"openssl", "curl"}, {"zlib", "curl"}, {"curl", "app"}} {
		if pos[edge[0]] > pos[edge[1]] {
			t.Fatalf("journal = %v, %s built after %s", got, edge[0], edge[1])
		}
	}
}

func TestRunSeedsDependencyEnvironment(t *testing.T) {
	e := newEngine(t, 1)
	out := filepath.Join(t.TempDir(), "env")

	cat := catalog(t,
		shRecipe(t, "zlib", nil, "mkdir -p ${install_dir}/bin && printf '#!/bin/sh\\necho from-zlib\\n' > ${install_dir}/bin/zlib-tool && chmod +x ${install_dir}/bin/zlib-tool"),
		shRecipe(t, "app", []string{"zlib"}, "zlib-tool > "+out+" && echo \"$PREFIX\" >> "+out+" && echo \"$CPPFLAGS\" >> "+out),
	)
	if _, err := e.Run(context.Background(), "app", cat); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := strings.Split(strings.TrimSpace(string(mustRead(t, out))), "\n")
	zlibDir := filepath.Join(e.cfg.InstallRoot, "zlib", "1.0")
	if got[0] != "from-zlib" {
		t.Fatalf("dependency tool output = %q, want from-zlib", got[0])
	}
	if got[1] != filepath.Join(e.cfg.InstallRoot, "app", "1.0") {
		t.Fatalf("PREFIX = %q", got[1])
	}
	if !strings.HasPrefix(got[2], "-I"+filepath.Join(zlibDir, "include")) {
		t.Fatalf("CPPFLAGS = %q", got[2])
	}
}

func mustRead(t *testing.T, p string) []byte {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRunCacheHit(t *testing.T) {
	e := newEngine(t, 2)
	journal := filepath.Join(t.TempDir(), "journal")
	cat := diamond(t, journal)

	if _, err := e.Run(context.Background(), "app", cat); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	result, err := e.Run(context.Background(), "app", cat)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(result.Built) != 0 {
		t.Fatalf("Built = %v, want none", result.Built)
	}
	if diff := cmp.Diff([]string{"zlib", "openssl", "curl", "app"}, result.Cached); diff != "" {
		t.Fatalf("Cached mismatch (-want +got):\n%s", diff)
	}
	if n := len(lines(t, journal)); n != 4 {
		t.Fatalf("journal has %d entries, want 4", n)
	}
	if len(result.Installs) != 4 {
		t.Fatalf("Installs = %v, want every recipe", result.Installs)
	}
}

func TestRunDependencyRebuildInvalidatesDependents(t *testing.T) {
	e := newEngine(t, 1)
	journal := filepath.Join(t.TempDir(), "journal")
	cat := diamond(t, journal)

	if _, err := e.Run(context.Background(), "app", cat); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	openssl := filepath.Join(e.cfg.InstallRoot, "openssl", "1.0")
	if err := os.Remove(stampPath(openssl, "openssl")); err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), "app", cat)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"openssl", "curl", "app"}, result.Built); diff != "" {
		t.Fatalf("Built mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"zlib"}, result.Cached); diff != "" {
		t.Fatalf("Cached mismatch (-want +got):\n%s", diff)
	}
}

func TestRunChangedRecipeInvalidatesDependents(t *testing.T) {
	e := newEngine(t, 1)
	journal := filepath.Join(t.TempDir(), "journal")

	if _, err := e.Run(context.Background(), "app", diamond(t, journal)); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// Same names and versions, but zlib's steps change.
	changed := diamond(t, journal)
	zlib := shRecipe(t, "zlib", nil, "echo zlib >> "+journal+" && echo patched")
	cat := catalog(t, zlib)
	for _, name := range []string{"openssl", "curl", "app"} {
		r, _ := changed.Get(name)
		if err := cat.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	result, err := e.Run(context.Background(), "app", cat)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"zlib", "openssl", "curl", "app"}, result.Built); diff != "" {
		t.Fatalf("Built mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFailFast(t *testing.T) {
	e := newEngine(t, 4)
	journal := filepath.Join(t.TempDir(), "journal")

	cat := catalog(t,
		shRecipe(t, "slow", nil, "sleep 30; echo slow >> "+journal),
		shRecipe(t, "broken", nil, "sleep 0.2; echo 'compile error' >&2; exit 2"),
		shRecipe(t, "after", []string{"broken"}, "echo after >> "+journal),
		shRecipe(t, "app", []string{"slow", "after"}, "echo app >> "+journal),
	)

	start := time.Now()
	_, err := e.Run(context.Background(), "app", cat)
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Run() took %v, in-flight build was not cancelled", elapsed)
	}

	var recipeErr *RecipeError
	if !errors.As(err, &recipeErr) {
		t.Fatalf("error = %v, want RecipeError", err)
	}
	if recipeErr.Recipe != "broken" {
		t.Fatalf("RecipeError.Recipe = %q, want broken", recipeErr.Recipe)
	}

	var toolErr *build.ExternalToolError
	if !errors.As(err, &toolErr) || toolErr.ExitCode != 2 {
		t.Fatalf("error = %v, want exit status 2", err)
	}
	if !errdefs.IsAborted(err) {
		t.Fatalf("error = %v, want aborted class", err)
	}

	if got := lines(t, journal); len(got) != 0 {
		t.Fatalf("journal = %v, want nothing after the failure", got)
	}
	broken := filepath.Join(e.cfg.InstallRoot, "broken", "1.0")
	if _, err := os.Stat(stampPath(broken, "broken")); !os.IsNotExist(err) {
		t.Fatal("failed recipe was stamped")
	}

	entries, err := os.ReadDir(e.cfg.WorkRoot)
	if err != nil {
		t.Fatal(err)
	}
	var kept []string
	for _, entry := range entries {
		kept = append(kept, entry.Name())
	}
	if len(kept) == 0 || !strings.HasPrefix(kept[0], "broken-1.0-") {
		t.Fatalf("work root = %v, want the failed work directory kept", kept)
	}
	if _, err := os.Stat(filepath.Join(e.cfg.WorkRoot, kept[0], build.LogFile)); err != nil {
		t.Fatalf("build log of failed recipe: %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	e := newEngine(t, 2)
	cat := catalog(t, shRecipe(t, "slow", nil, "sleep 30"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := e.Run(ctx, "slow", cat)
	if !errors.Is(err, internal.ErrCancelled) {
		t.Fatalf("error = %v, want ErrCancelled", err)
	}
	slow := filepath.Join(e.cfg.InstallRoot, "slow", "1.0")
	if _, err := os.Stat(stampPath(slow, "slow")); !os.IsNotExist(err) {
		t.Fatal("cancelled recipe was stamped")
	}
}

func TestRunStepTimeout(t *testing.T) {
	e := newEngine(t, 1)
	e.cfg.StepTimeout = 100 * time.Millisecond
	cat := catalog(t, shRecipe(t, "slow", nil, "sleep 30"))

	_, err := e.Run(context.Background(), "slow", cat)
	if !errors.Is(err, internal.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	var recipeErr *RecipeError
	if !errors.As(err, &recipeErr) || recipeErr.Recipe != "slow" {
		t.Fatalf("error = %v, want RecipeError for slow", err)
	}
}

func TestRunUnknownDependency(t *testing.T) {
	e := newEngine(t, 1)
	cat := catalog(t, shRecipe(t, "app", []string{"missing"}, "true"))

	_, err := e.Run(context.Background(), "app", cat)
	if !errdefs.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

// Writes a gzip tarball holding dir/name to a temporary file.
func sourceTarball(t *testing.T, dir, name, body string) (string, digest.Digest) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{Name: dir + "/" + name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	p := filepath.Join(t.TempDir(), dir+".tar.gz")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p, digest.FromBytes(buf.Bytes())
}

func sourceRecipe(t *testing.T, url string, dgst digest.Digest) *recipe.Recipe {
	t.Helper()
	r, err := recipe.New(recipe.Definition{
		Name:         "zlib",
		Version:      "1.3",
		Source:       &recipe.Source{URL: recipe.Template(url), Digest: dgst, Extract: archive.MethodTarGz},
		RelativePath: "${name}-${version}",
		Steps: []recipe.Step{
			recipe.RunStep{Command: "/bin/sh", Args: []recipe.Template{"-c", "mkdir -p ${install_dir} && cp README ${install_dir}/README"}},
			recipe.LicenseStep{Name: "Zlib", File: "README"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunFetchesSource(t *testing.T) {
	e := newEngine(t, 1)
	src, dgst := sourceTarball(t, "zlib-1.3", "README", "zlib sources")

	result, err := e.Run(context.Background(), "zlib", catalog(t, sourceRecipe(t, src, dgst)))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	dir := result.Installs["zlib"]
	if got := string(mustRead(t, filepath.Join(dir, "README"))); got != "zlib sources" {
		t.Fatalf("installed README = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "LICENSES", "zlib", "README")); err != nil {
		t.Fatalf("license not installed: %v", err)
	}

	s, err := readStamp(stampPath(dir, "zlib"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Source != dgst || len(s.Licenses) != 1 || s.Licenses[0].Name != "Zlib" {
		t.Fatalf("stamp = %+v", s)
	}
}

func TestRunIntegrityMismatch(t *testing.T) {
	e := newEngine(t, 1)
	src, _ := sourceTarball(t, "zlib-1.3", "README", "zlib sources")
	wrong := digest.FromString("something else")

	_, err := e.Run(context.Background(), "zlib", catalog(t, sourceRecipe(t, src, wrong)))
	if !errors.Is(err, fetch.ErrIntegrityMismatch) {
		t.Fatalf("error = %v, want ErrIntegrityMismatch", err)
	}
	if !strings.Contains(err.Error(), `recipe "zlib": fetch: `) {
		t.Fatalf("error = %q, want recipe and fetch context", err)
	}
	if _, err := os.Stat(filepath.Join(e.cfg.InstallRoot, "zlib", "1.3", "README")); !os.IsNotExist(err) {
		t.Fatal("steps ran after an integrity mismatch")
	}
}

func TestPlan(t *testing.T) {
	e := newEngine(t, 1)
	journal := filepath.Join(t.TempDir(), "journal")
	cat := diamond(t, journal)

	entries, err := e.Plan("curl", cat)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name)
		if entry.Cached {
			t.Fatalf("%s cached before any run", entry.Name)
		}
	}
	if diff := cmp.Diff([]string{"zlib", "openssl", "curl"}, names); diff != "" {
		t.Fatalf("plan order mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.Run(context.Background(), "curl", cat); err != nil {
		t.Fatal(err)
	}
	entries, err = e.Plan("app", cat)
	if err != nil {
		t.Fatal(err)
	}
	cached := make(map[string]bool)
	for _, entry := range entries {
		cached[entry.Name] = entry.Cached
	}
	want := map[string]bool{"zlib": true, "openssl": true, "curl": true, "app": false}
	if diff := cmp.Diff(want, cached); diff != "" {
		t.Fatalf("cache status mismatch (-want +got):\n%s", diff)
	}
	if lines(t, journal) == nil || len(lines(t, journal)) != 3 {
		t.Fatal("Plan() executed steps")
	}
}

func TestFetch(t *testing.T) {
	e := newEngine(t, 2)
	src, dgst := sourceTarball(t, "zlib-1.3", "README", "zlib sources")
	cat := catalog(t,
		sourceRecipe(t, src, dgst),
		shRecipe(t, "app", []string{"zlib"}, "true"),
	)

	artifacts, err := e.Fetch(context.Background(), "app", cat)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(artifacts) != 1 || artifacts["zlib"] == nil {
		t.Fatalf("artifacts = %v, want zlib only", artifacts)
	}
	if artifacts["zlib"].Descriptor.Digest != dgst {
		t.Fatalf("digest = %s, want %s", artifacts["zlib"].Descriptor.Digest, dgst)
	}
	if _, ok := e.fetcher.Lookup(dgst); !ok {
		t.Fatal("artifact not cached")
	}
	if _, err := os.Stat(filepath.Join(e.cfg.InstallRoot, "zlib")); !os.IsNotExist(err) {
		t.Fatal("Fetch() built the recipe")
	}
}

func TestRetention(t *testing.T) {
	tests := []struct {
		keep    Retention
		failed  bool
		wantKep bool
	}{
		{RetainNever, false, false},
		{RetainNever, true, false},
		{RetainOnFailure, false, false},
		{RetainOnFailure, true, true},
		{RetainAlways, false, true},
		{RetainAlways, true, true},
	}
	for _, tt := range tests {
		if got := tt.keep.keep(tt.failed); got != tt.wantKep {
			t.Errorf("%s.keep(%v) = %v, want %v", tt.keep, tt.failed, got, tt.wantKep)
		}
	}

	if r, err := ParseRetention(""); err != nil || r != RetainOnFailure {
		t.Fatalf("ParseRetention(\"\") = %q, %v", r, err)
	}
	if _, err := ParseRetention("sometimes"); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("ParseRetention(sometimes) error = %v, want invalid argument", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Jobs: -1},
		{StepTimeout: -time.Second},
		{KeepWork: "sometimes"},
	} {
		cfg.InstallRoot = t.TempDir()
		cfg.WorkRoot = t.TempDir()
		cfg.CacheDir = t.TempDir()
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New(%+v) error = %v, want ErrInvalidConfig", cfg, err)
		}
	}
}
