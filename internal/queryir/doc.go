// Package queryir is the abstract fetch representation the loader builds
// from a select tree level.
//
// Query and Predicate are sealed interfaces so backend compilers can switch
// exhaustively. Only one query shape exists today: Select, a single-table
// fetch with an optional filter. Eager loading never joins; each plan level
// is its own Select filtered by the parent keys.
package queryir
