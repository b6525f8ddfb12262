package resolve

import "slices"

// Resolved dependency closure of a target.
type Graph struct {
	target     string
	order      []string
	deps       map[string][]string
	dependents map[string][]string
}

// Returns the recipe the graph was resolved for.
func (g *Graph) Target() string { return g.target }

// Returns the build order, target last.
func (g *Graph) Order() []string { return slices.Clone(g.order) }

// Returns the direct dependencies of name in declaration order.
func (g *Graph) Dependencies(name string) []string { return slices.Clone(g.deps[name]) }

// Returns the recipes that directly depend on name.
func (g *Graph) Dependents(name string) []string { return slices.Clone(g.dependents[name]) }

// Returns every recipe name depends on, directly or not, in build order.
func (g *Graph) Transitive(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, d := range g.deps[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(name)

	var out []string
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}
