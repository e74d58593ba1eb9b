// Package selecttree normalizes include directives into select trees and
// merges select trees.
//
// Include directives come in three shapes: a bare association name, a
// mapping of name to nested directive, or a list of either. Normalize turns
// any of them into a map of association name to *ir.SelectNode. Every
// normalized node is wildcard; narrowing happens when a serializer's own
// plan is merged in.
//
// Merge is commutative and associative, so combining directives in any
// order yields the same tree. Inputs are never mutated.
package selecttree
