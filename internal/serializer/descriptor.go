package serializer

import "github.com/roach88/loadplan/internal/ir"

// Descriptor is the resolved, read-only view of one serializer.
type Descriptor struct {
	Name   string
	Entity ir.EntitySpec

	// Attributes in declaration order, deduplicated.
	Attributes []string
	// Derived lists query attributes to select: derived attributes among
	// Attributes, then loaders.select extras.
	Derived []string
	// SelectColumns are raw columns named by loaders.select.
	SelectColumns []string
	SkipSelect    []string
	Associations  []AssociationDescriptor
	// Includes are the normalized include directives, nil when none.
	Includes map[string]*ir.SelectNode

	methods map[string]MethodFunc
}

// AssociationDescriptor is one resolved association.
type AssociationDescriptor struct {
	Name       string
	Relation   ir.RelationSpec
	Target     ir.EntitySpec
	Serializer string
	Embed      ir.EmbedMode
}

// IDsOnly reports whether the association renders target keys only.
func (a AssociationDescriptor) IDsOnly() bool {
	return a.Embed == ir.EmbedIDs
}

// Method returns the custom attribute function for name.
func (d *Descriptor) Method(name string) (MethodFunc, bool) {
	fn, ok := d.methods[name]
	return fn, ok && fn != nil
}

// HasSkipList reports whether the serializer narrows its columns.
func (d *Descriptor) HasSkipList() bool {
	return len(d.SkipSelect) > 0
}
