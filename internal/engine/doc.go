// Package engine builds a target recipe and everything it depends on.
//
// A run resolves the dependency closure of the target, renders every recipe
// for the configured install and work roots, and builds the recipes with a
// bounded worker pool. A recipe is dispatched once all of its dependencies
// are installed; among ready recipes, resolver order wins, so a pool of one
// builds strictly in resolver order.
//
// Each recipe goes through the same sequence: check its install stamp, fetch
// and unpack its source into a fresh work directory, execute its steps with
// an environment pointing at the install directories of its dependencies,
// and write a new stamp. The stamp records a fingerprint chained over the
// recipe and all of its dependencies together with the platform; a matching
// stamp skips the build. A dependency that is rebuilt forces its dependents
// to rebuild as well.
//
// The first failure cancels the builds in flight and stops dispatch. It is
// returned as a [*RecipeError] naming the recipe. Failed builds are never
// stamped.
//
// Example usage:
//
//	eng, err := engine.New(engine.Config{Jobs: 4})
//	if err != nil {
//	    return err
//	}
//	result, err := eng.Run(ctx, "librdkafka", catalog)
package engine
