package serializer

import (
	"context"
	"maps"
	"slices"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/loader"
)

// MethodFunc computes a custom attribute from a record.
type MethodFunc func(ctx context.Context, rec *loader.Record) (ir.IRValue, error)

// Declaration builds one serializer declaration.
type Declaration struct {
	spec    ir.SerializerSpec
	methods map[string]MethodFunc
}

// NewDeclaration starts a declaration for a serializer rendering entity.
// An empty entity is inherited from the parent.
func NewDeclaration(name, entity string) *Declaration {
	return &Declaration{
		spec:    ir.SerializerSpec{Name: name, Entity: entity},
		methods: map[string]MethodFunc{},
	}
}

// FromSpec wraps a compiled declaration.
func FromSpec(spec ir.SerializerSpec) *Declaration {
	return &Declaration{spec: cloneSpec(spec), methods: map[string]MethodFunc{}}
}

// Inherits names the parent serializer. The parent must already be
// declared in the registry.
func (d *Declaration) Inherits(parent string) *Declaration {
	d.spec.Inherits = parent
	return d
}

// Attributes adds attribute names.
func (d *Declaration) Attributes(names ...string) *Declaration {
	d.spec.Attributes = append(d.spec.Attributes, names...)
	return d
}

// Method adds a custom attribute computed by fn.
func (d *Declaration) Method(name string, fn MethodFunc) *Declaration {
	d.spec.Attributes = append(d.spec.Attributes, name)
	d.methods[name] = fn
	return d
}

// AssociationOption configures one association.
type AssociationOption func(*ir.AssociationSpec)

// WithSerializer overrides the serializer used for the association.
func WithSerializer(name string) AssociationOption {
	return func(a *ir.AssociationSpec) { a.Serializer = name }
}

// WithRelation maps a renamed association to its entity relation.
func WithRelation(relation string) AssociationOption {
	return func(a *ir.AssociationSpec) { a.Relation = relation }
}

// EmbedIDs renders the association as target keys only.
func EmbedIDs() AssociationOption {
	return func(a *ir.AssociationSpec) { a.Embed = ir.EmbedIDs }
}

// Association adds an association. Its cardinality comes from the entity
// relation.
func (d *Declaration) Association(name string, opts ...AssociationOption) *Declaration {
	a := ir.AssociationSpec{Name: name}
	for _, opt := range opts {
		opt(&a)
	}
	d.spec.Associations = append(d.spec.Associations, a)
	return d
}

// HasMany is Association for readability at has_many relations.
func (d *Declaration) HasMany(name string, opts ...AssociationOption) *Declaration {
	return d.Association(name, opts...)
}

// HasOne is Association for readability at has_one and belongs_to
// relations.
func (d *Declaration) HasOne(name string, opts ...AssociationOption) *Declaration {
	return d.Association(name, opts...)
}

// Select adds extra names to select: derived attributes or columns read
// by custom methods.
func (d *Declaration) Select(names ...string) *Declaration {
	d.spec.Loaders.Select = append(d.spec.Loaders.Select, names...)
	return d
}

// SkipSelect excludes raw columns. Any skip-list makes the level explicit.
func (d *Declaration) SkipSelect(names ...string) *Declaration {
	d.spec.Loaders.SkipSelect = append(d.spec.Loaders.SkipSelect, names...)
	return d
}

// Includes adds include directives: a name, a map of name to nested
// directive, or a list of either.
func (d *Declaration) Includes(directives ...any) *Declaration {
	d.spec.Loaders.Includes = append(d.spec.Loaders.Includes, directives...)
	return d
}

// Spec returns a copy of the declaration as IR.
func (d *Declaration) Spec() ir.SerializerSpec {
	return cloneSpec(d.spec)
}

func cloneSpec(s ir.SerializerSpec) ir.SerializerSpec {
	s.Attributes = slices.Clone(s.Attributes)
	s.Associations = slices.Clone(s.Associations)
	s.Loaders.Select = slices.Clone(s.Loaders.Select)
	s.Loaders.SkipSelect = slices.Clone(s.Loaders.SkipSelect)
	s.Loaders.Includes = deepCopyDirectives(s.Loaders.Includes)
	return s
}

// deepCopyDirectives copies nested include directive containers so a
// subtype extending its includes cannot reach into the parent's.
func deepCopyDirectives(in []any) []any {
	if in == nil {
		return nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = deepCopyDirective(v)
	}
	return out
}

func deepCopyDirective(v any) any {
	switch d := v.(type) {
	case []any:
		return deepCopyDirectives(d)
	case []string:
		return slices.Clone(d)
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, child := range d {
			out[k] = deepCopyDirective(child)
		}
		return out
	case map[string]string:
		return maps.Clone(d)
	case map[string][]string:
		out := make(map[string][]string, len(d))
		for k, child := range d {
			out[k] = slices.Clone(child)
		}
		return out
	default:
		return v
	}
}
