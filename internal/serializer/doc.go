// Package serializer declares serializers and describes them for the plan
// builder.
//
// A serializer is declared once, either from Go with a Declaration or from
// a compiled CUE block (ir.SerializerSpec). Declaring a subtype copies its
// parent's attributes, associations, methods and loader directives at that
// moment; later changes to either side do not leak into the other.
//
// Describe resolves a declaration against the entity catalog and memoizes
// the result per serializer name for the life of the Registry.
package serializer
