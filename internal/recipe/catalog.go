package recipe

import (
	"fmt"
	"maps"
	"slices"
)

// Set of recipes keyed by name.
type Catalog struct {
	recipes map[string]*Recipe
}

// Creates a catalog holding recipes. Returns ErrDuplicateRecipe if two
// recipes share a name.
func NewCatalog(recipes ...*Recipe) (*Catalog, error) {
	c := &Catalog{recipes: make(map[string]*Recipe, len(recipes))}
	for _, r := range recipes {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Adds r to the catalog.
func (c *Catalog) Add(r *Recipe) error {
	if c.recipes == nil {
		c.recipes = make(map[string]*Recipe)
	}
	if _, ok := c.recipes[r.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateRecipe, r.Name())
	}
	c.recipes[r.Name()] = r
	return nil
}

// Returns the recipe called name.
func (c *Catalog) Get(name string) (*Recipe, bool) {
	r, ok := c.recipes[name]
	return r, ok
}

// Returns the dependency names of the recipe called name.
func (c *Catalog) Dependencies(name string) ([]string, bool) {
	r, ok := c.recipes[name]
	if !ok {
		return nil, false
	}
	return r.Dependencies(), true
}

// Returns the sorted recipe names.
func (c *Catalog) Names() []string {
	return slices.Sorted(maps.Keys(c.recipes))
}

// Returns the number of recipes.
func (c *Catalog) Len() int {
	return len(c.recipes)
}
