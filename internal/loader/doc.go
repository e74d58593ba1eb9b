// Package loader turns a select tree into fetched records.
//
// Bridge is the persistence-side collaborator of the plan builder. It
// answers three questions:
//   - IsCollectionLike: is a value an unrealized Scope that should be
//     planned, or records that pass through untouched?
//   - Materialize: run one query per select tree level and stitch the
//     results into Records.
//   - ResolveAssociationTarget: which entity does an association point at?
//
// Eager loading issues one query per level, batched with IN over the parent
// keys. Only the key columns needed to stitch levels are added to a plan's
// select list.
//
// Records are lazy where the plan is incomplete: reading an association
// that was not eager-loaded, or a derived attribute that was not selected,
// runs a query on demand. Those queries are what the verification harness
// counts to detect N+1 access.
package loader
