package resolve

import (
	"slices"
)

// Source of dependency edges. The recipe catalog implements it.
type Catalog interface {

	// Returns the dependencies of name in declaration order, or false if no
	// recipe is called name.
	Dependencies(name string) ([]string, bool)
}

// Returns the build order for target: every recipe in its dependency
// closure, each after all of its dependencies, with target last.
func Order(target string, catalog Catalog) ([]string, error) {
	g, err := Resolve(target, catalog)
	if err != nil {
		return nil, err
	}
	return g.Order(), nil
}

// Resolves the dependency closure of target into a [Graph].
func Resolve(target string, catalog Catalog) (*Graph, error) {
	r := &resolver{
		catalog: catalog,
		state:   make(map[string]visitState),
		graph: &Graph{
			target:     target,
			deps:       make(map[string][]string),
			dependents: make(map[string][]string),
		},
	}
	if err := r.visit(target, ""); err != nil {
		return nil, err
	}
	return r.graph, nil
}

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

type resolver struct {
	catalog Catalog
	state   map[string]visitState
	stack   []string // Recipes currently in progress, outermost first.
	graph   *Graph
}

// Visits name and, before it, all of its dependencies.
func (r *resolver) visit(name, dependent string) error {
	switch r.state[name] {
	case done:
		return nil
	case inProgress:
		i := slices.Index(r.stack, name)
		path := append(slices.Clone(r.stack[i:]), name)
		return &CycleError{Path: path}
	}

	deps, ok := r.catalog.Dependencies(name)
	if !ok {
		return &UnknownDependencyError{Name: name, Dependent: dependent}
	}

	r.state[name] = inProgress
	r.stack = append(r.stack, name)

	for _, dep := range deps {
		if err := r.visit(dep, name); err != nil {
			return err
		}
		if !slices.Contains(r.graph.deps[name], dep) {
			r.graph.deps[name] = append(r.graph.deps[name], dep)
			r.graph.dependents[dep] = append(r.graph.dependents[dep], name)
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	r.state[name] = done
	r.graph.order = append(r.graph.order, name)
	return nil
}
