// Package resolve computes the build order of a recipe and its dependencies.
//
// Resolution is a depth-first walk from the target that emits each recipe
// after all of its dependencies (post-order). Dependencies are visited in
// declaration order, which makes the result deterministic: among recipes
// with no ordering constraint between them, the one declared first is built
// first. The target is always last.
//
// A dependency that names no recipe fails with [*UnknownDependencyError];
// a dependency loop fails with [*CycleError], whose path starts and ends
// with the same recipe.
//
// Example usage:
//
//	order, err := resolve.Order("librdkafka", catalog)
//	// order == []string{"cyrus-sasl", "librdkafka"}
package resolve
