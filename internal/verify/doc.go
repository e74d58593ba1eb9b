// Package verify checks that a serializer renders without extra queries.
//
// Tester.TestSerializerQueries loads every record of an entity through the
// planned path, then renders each record while counting the statements the
// store executes. A correct plan leaves nothing for rendering to fetch. It
// also reports raw columns that were fetched but never read, so the
// serializer can skip them.
//
// Tester.AssertAllSerializersTested fails when a declared serializer was
// never passed through TestSerializerQueries.
package verify
