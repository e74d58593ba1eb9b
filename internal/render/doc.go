// Package render is the host serialization layer.
//
// Renderer.Collection is the point where query planning hooks into
// rendering: an unloaded loader.Scope is planned with plan.Builder and
// materialized with loader.Bridge before any record is rendered. Records
// that are already materialized pass through untouched.
//
// Output is IR (ir.IRObject / ir.IRArray) so it can be encoded with
// ir.MarshalCanonical or compared directly in tests.
package render
