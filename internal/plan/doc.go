// Package plan builds select trees from serializer descriptors.
//
// A tree is built fresh for every call and never shared. Building is pure
// and synchronous: it reads the memoized descriptors of a
// serializer.Registry and the entity catalog and performs no I/O.
//
// Cycles in the serializer association graph are detected per path, so
// a serializer may appear in two parallel branches but never twice on one
// branch. A depth limit guards pathological declarations and reports the
// same RECURSION error.
package plan
