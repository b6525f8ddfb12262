package resolve

import (
	"errors"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
)

// Catalog backed by a map of dependency lists.
type mapCatalog map[string][]string

func (c mapCatalog) Dependencies(name string) ([]string, bool) {
	deps, ok := c[name]
	return deps, ok
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name    string
		catalog mapCatalog
		target  string
		want    []string
	}{
		{
			name:    "single",
			catalog: mapCatalog{"zlib": nil},
			target:  "zlib",
			want:    []string{"zlib"},
		},
		{
			name:    "one dependency",
			catalog: mapCatalog{"A": {"B"}, "B": nil},
			target:  "A",
			want:    []string{"B", "A"},
		},
		{
			name:    "librdkafka",
			catalog: mapCatalog{"librdkafka": {"cyrus-sasl"}, "cyrus-sasl": nil},
			target:  "librdkafka",
			want:    []string{"cyrus-sasl", "librdkafka"},
		},
		{
			name:    "declaration order breaks ties",
			catalog: mapCatalog{"app": {"zlib", "openssl", "curl"}, "zlib": nil, "openssl": nil, "curl": nil},
			target:  "app",
			want:    []string{"zlib", "openssl", "curl", "app"},
		},
		{
			name: "diamond",
			catalog: mapCatalog{
				"app":     {"curl", "openssl"},
				"curl":    {"openssl", "zlib"},
				"openssl": {"zlib"},
				"zlib":    nil,
			},
			target: "app",
			want:   []string{"zlib", "openssl", "curl", "app"},
		},
		{
			name:    "unrelated recipes excluded",
			catalog: mapCatalog{"A": {"B"}, "B": nil, "C": {"A"}},
			target:  "A",
			want:    []string{"B", "A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Order(tt.target, tt.catalog)
			if err != nil {
				t.Fatalf("Order() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Order() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrderCycle(t *testing.T) {
	tests := []struct {
		name    string
		catalog mapCatalog
		target  string
		want    []string
	}{
		{"two nodes", mapCatalog{"A": {"B"}, "B": {"A"}}, "A", []string{"A", "B", "A"}},
		{"self", mapCatalog{"A": {"A"}}, "A", []string{"A", "A"}},
		{"below target", mapCatalog{"app": {"A"}, "A": {"B"}, "B": {"C"}, "C": {"A"}}, "app", []string{"A", "B", "C", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Order(tt.target, tt.catalog)
			if !errors.Is(err, ErrCyclicDependency) || !errdefs.IsFailedPrecondition(err) {
				t.Fatalf("Order() error = %v, want ErrCyclicDependency", err)
			}
			var cycle *CycleError
			if !errors.As(err, &cycle) {
				t.Fatalf("error %T is not a *CycleError", err)
			}
			if diff := cmp.Diff(tt.want, cycle.Path); diff != "" {
				t.Fatalf("cycle path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrderUnknown(t *testing.T) {
	_, err := Order("A", mapCatalog{"A": {"B"}})
	var unknown *UnknownDependencyError
	if !errors.As(err, &unknown) {
		t.Fatalf("Order() error = %v, want *UnknownDependencyError", err)
	}
	if unknown.Name != "B" || unknown.Dependent != "A" {
		t.Fatalf("error = %+v, want B required by A", unknown)
	}
	if !errors.Is(err, ErrUnknownDependency) || !errdefs.IsNotFound(err) {
		t.Fatalf("error %v is not ErrUnknownDependency", err)
	}

	_, err = Order("missing", mapCatalog{})
	if !errors.As(err, &unknown) || unknown.Name != "missing" || unknown.Dependent != "" {
		t.Fatalf("Order(missing) error = %v", err)
	}
}

func TestGraph(t *testing.T) {
	g, err := Resolve("app", mapCatalog{
		"app":     {"curl", "openssl"},
		"curl":    {"openssl", "zlib"},
		"openssl": {"zlib"},
		"zlib":    nil,
	})
	if err != nil {
		t.Fatal(err)
	}

	if g.Target() != "app" {
		t.Fatalf("Target() = %q", g.Target())
	}
	if diff := cmp.Diff([]string{"openssl", "zlib"}, g.Dependencies("curl")); diff != "" {
		t.Fatalf("Dependencies(curl) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"openssl", "curl"}, g.Dependents("zlib")); diff != "" {
		t.Fatalf("Dependents(zlib) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"zlib", "openssl", "curl"}, g.Transitive("app")); diff != "" {
		t.Fatalf("Transitive(app) mismatch (-want +got):\n%s", diff)
	}
	if got := g.Transitive("zlib"); len(got) != 0 {
		t.Fatalf("Transitive(zlib) = %v, want none", got)
	}
}
