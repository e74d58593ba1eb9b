// Package ir provides the intermediate representation shared by every
// loadplan package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// The IR has three layers:
//   - Declarations: EntitySpec describes a backing table, SerializerSpec
//     describes what a serializer reads.
//   - Plans: SelectNode is the inferred tree of columns to select and
//     associations to eager-load.
//   - Values: IRValue is the constrained value set (no floats) used for
//     fetched rows and rendered output.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - All JSON tags use snake_case
//   - Canonical JSON (RFC 8785) is the only encoding used for snapshots
//     and content hashes
package ir
