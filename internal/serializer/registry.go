package serializer

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/selecttree"
)

// ErrUnknownSerializer marks lookups of undeclared serializer names.
var ErrUnknownSerializer = errors.New("unknown serializer")

// NamespaceSeparator splits a serializer name into namespace and base name.
const NamespaceSeparator = "."

// DefaultSerializerName returns the conventional serializer for an entity.
func DefaultSerializerName(entity string) string {
	return entity + "Serializer"
}

type declared struct {
	spec     ir.SerializerSpec
	methods  map[string]MethodFunc
	includes map[string]*ir.SelectNode
}

// Registry holds serializer declarations and their memoized descriptors.
//
// Thread-safety: All methods are safe for concurrent use. Descriptors are
// computed once per name and never invalidated.
type Registry struct {
	catalog *schema.Catalog
	logger  *zap.Logger

	mu          sync.RWMutex
	decls       map[string]*declared
	descriptors map[string]*Descriptor
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry resolving entities through catalog.
func NewRegistry(catalog *schema.Catalog, opts ...Option) *Registry {
	r := &Registry{
		catalog:     catalog,
		logger:      zap.L(),
		decls:       map[string]*declared{},
		descriptors: map[string]*Descriptor{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the entity catalog.
func (r *Registry) Catalog() *schema.Catalog {
	return r.catalog
}

// Declare registers a serializer. A subtype copies its parent's state now.
// Include directives are normalized here, so a bad directive shape fails
// with UNSUPPORTED_SPEC_TYPE at declaration time.
func (r *Registry) Declare(d *Declaration) error {
	spec := d.Spec()
	methods := maps.Clone(d.methods)

	if spec.Name == "" {
		return errors.New("serializer name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.decls[spec.Name]; dup {
		return errors.Newf("serializer %q declared twice", spec.Name)
	}

	if spec.Inherits != "" {
		parent, ok := r.decls[spec.Inherits]
		if !ok {
			return errors.WithHint(
				errors.Mark(errors.Newf("serializer %q inherits undeclared %q", spec.Name, spec.Inherits), ErrUnknownSerializer),
				"declare the parent serializer first")
		}
		spec, methods = inherit(parent, spec, methods)
	}

	if spec.Entity == "" {
		return errors.Newf("serializer %q: entity is required", spec.Name)
	}
	if _, ok := r.catalog.Entity(spec.Entity); !ok {
		return errors.Newf("serializer %q: entity %q is not declared", spec.Name, spec.Entity)
	}

	var includes map[string]*ir.SelectNode
	if len(spec.Loaders.Includes) > 0 {
		var err error
		includes, err = selecttree.Normalize(spec.Loaders.Includes)
		if err != nil {
			return errors.Wrapf(err, "serializer %s includes", spec.Name)
		}
	}

	r.decls[spec.Name] = &declared{spec: spec, methods: methods, includes: includes}
	r.logger.Debug("serializer declared",
		zap.String("serializer", spec.Name),
		zap.String("entity", spec.Entity),
		zap.String("inherits", spec.Inherits))
	return nil
}

// inherit returns the child's effective spec: the parent's state deep
// copied, then extended by the child.
func inherit(parent *declared, child ir.SerializerSpec, childMethods map[string]MethodFunc) (ir.SerializerSpec, map[string]MethodFunc) {
	base := cloneSpec(parent.spec)

	out := ir.SerializerSpec{
		Name:       child.Name,
		Entity:     lo.Ternary(child.Entity != "", child.Entity, base.Entity),
		Inherits:   child.Inherits,
		Attributes: lo.Uniq(append(base.Attributes, child.Attributes...)),
		Loaders: ir.LoadersSpec{
			Select:     lo.Uniq(append(base.Loaders.Select, child.Loaders.Select...)),
			SkipSelect: lo.Uniq(append(base.Loaders.SkipSelect, child.Loaders.SkipSelect...)),
			Includes:   append(base.Loaders.Includes, child.Loaders.Includes...),
		},
	}

	out.Associations = base.Associations
	for _, a := range child.Associations {
		if i := slices.IndexFunc(out.Associations, func(p ir.AssociationSpec) bool { return p.Name == a.Name }); i >= 0 {
			out.Associations[i] = a
			continue
		}
		out.Associations = append(out.Associations, a)
	}

	methods := maps.Clone(parent.methods)
	if methods == nil {
		methods = map[string]MethodFunc{}
	}
	maps.Copy(methods, childMethods)
	return out, methods
}

// DeclareSpecs registers compiled declarations. Parents are declared
// before their subtypes regardless of input order.
func (r *Registry) DeclareSpecs(specs ...ir.SerializerSpec) error {
	pending := slices.Clone(specs)
	for len(pending) > 0 {
		var next []ir.SerializerSpec
		for _, spec := range pending {
			if spec.Inherits != "" && !r.Has(spec.Inherits) && lo.ContainsBy(pending, func(p ir.SerializerSpec) bool {
				return p.Name == spec.Inherits
			}) {
				next = append(next, spec)
				continue
			}
			if err := r.Declare(FromSpec(spec)); err != nil {
				return err
			}
		}
		if len(next) == len(pending) {
			return errors.Newf("serializer inheritance cycle among %v", lo.Map(next, func(s ir.SerializerSpec, _ int) string {
				return s.Name
			}))
		}
		pending = next
	}
	return nil
}

// Has reports whether name is declared.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decls[name]
	return ok
}

// Spec returns the effective declaration of name, inheritance applied.
func (r *Registry) Spec(name string) (ir.SerializerSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decls[name]
	if !ok {
		return ir.SerializerSpec{}, false
	}
	return cloneSpec(d.spec), true
}

// Specs returns every effective declaration, sorted by name.
func (r *Registry) Specs() []ir.SerializerSpec {
	names := r.Names("*")
	out := make([]ir.SerializerSpec, 0, len(names))
	for _, name := range names {
		spec, _ := r.Spec(name)
		out = append(out, spec)
	}
	return out
}

// Names returns declared serializer names in sorted order.
//
// An empty namespace selects names without a namespace; "*" selects every
// name; otherwise names starting with namespace + "." are returned.
func (r *Registry) Names(namespace string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for name := range r.decls {
		switch {
		case namespace == "*":
		case namespace == "":
			if strings.Contains(name, NamespaceSeparator) {
				continue
			}
		default:
			if !strings.HasPrefix(name, namespace+NamespaceSeparator) {
				continue
			}
		}
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// DefaultFor returns the conventional serializer for entity if declared.
func (r *Registry) DefaultFor(entity string) (string, bool) {
	name := DefaultSerializerName(entity)
	return name, r.Has(name)
}

// Describe resolves a serializer against the catalog. The result is
// memoized and must be treated as read-only.
func (r *Registry) Describe(name string) (*Descriptor, error) {
	r.mu.RLock()
	if desc, ok := r.descriptors[name]; ok {
		r.mu.RUnlock()
		return desc, nil
	}
	decl, ok := r.decls[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Mark(errors.Newf("serializer %q is not declared", name), ErrUnknownSerializer)
	}

	desc, err := r.describe(decl)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.descriptors[name]; ok {
		return existing, nil
	}
	r.descriptors[name] = desc
	return desc, nil
}

func (r *Registry) describe(decl *declared) (*Descriptor, error) {
	spec := decl.spec
	entity, _ := r.catalog.Entity(spec.Entity)

	desc := &Descriptor{
		Name:       spec.Name,
		Entity:     entity,
		Attributes: lo.Uniq(spec.Attributes),
		SkipSelect: lo.Uniq(spec.Loaders.SkipSelect),
		Includes:   decl.includes,
		methods:    decl.methods,
	}

	for _, attr := range desc.Attributes {
		switch {
		case decl.methods[attr] != nil, entity.HasColumn(attr):
		case isQuery(entity, attr):
			desc.Derived = append(desc.Derived, attr)
		default:
			return nil, errors.WithHint(
				errors.Newf("serializer %s: attribute %q is not a column, query attribute or method of %s",
					spec.Name, attr, entity.Name),
				"declare a query attribute on the entity or add a method")
		}
	}

	for _, name := range spec.Loaders.Select {
		switch {
		case isQuery(entity, name):
			desc.Derived = append(desc.Derived, name)
		case entity.HasColumn(name):
			desc.SelectColumns = append(desc.SelectColumns, name)
		default:
			return nil, errors.Newf("serializer %s: select %q is not a column or query attribute of %s",
				spec.Name, name, entity.Name)
		}
	}
	desc.Derived = lo.Uniq(desc.Derived)
	desc.SelectColumns = lo.Uniq(desc.SelectColumns)

	for _, col := range desc.SkipSelect {
		if !entity.HasColumn(col) {
			return nil, errors.Newf("serializer %s: skip_select %q is not a column of %s",
				spec.Name, col, entity.Name)
		}
	}

	for _, a := range spec.Associations {
		assoc, err := r.resolveAssociation(spec, entity, a)
		if err != nil {
			return nil, err
		}
		desc.Associations = append(desc.Associations, assoc)
	}
	return desc, nil
}

func (r *Registry) resolveAssociation(spec ir.SerializerSpec, entity ir.EntitySpec, a ir.AssociationSpec) (AssociationDescriptor, error) {
	rel, ok := entity.Relation(a.RelationName())
	if !ok {
		detail := fmt.Sprintf("no relation %s on %s", a.RelationName(), entity.Name)
		return AssociationDescriptor{}, ir.NewUnknownAssociationTarget(spec.Name, a.Name, detail)
	}
	target, ok := r.catalog.Entity(rel.Target)
	if !ok {
		return AssociationDescriptor{}, ir.NewUnknownAssociationTarget(spec.Name, a.Name,
			fmt.Sprintf("target entity %q is not declared", rel.Target))
	}

	embed := a.Embed
	if embed == "" {
		embed = ir.EmbedObjects
	}
	serializerName := a.Serializer
	if serializerName == "" {
		serializerName = DefaultSerializerName(target.Name)
	}

	if embed == ir.EmbedObjects || a.Serializer != "" {
		r.mu.RLock()
		override, declared := r.decls[serializerName]
		r.mu.RUnlock()
		if !declared {
			return AssociationDescriptor{}, ir.NewUnknownAssociationTarget(spec.Name, a.Name,
				fmt.Sprintf("serializer %q is not declared", serializerName))
		}
		if override.spec.Entity != target.Name {
			return AssociationDescriptor{}, ir.NewUnknownAssociationTarget(spec.Name, a.Name,
				fmt.Sprintf("serializer %q renders %s, not %s", serializerName, override.spec.Entity, target.Name))
		}
	}

	return AssociationDescriptor{
		Name:       a.Name,
		Relation:   rel,
		Target:     target,
		Serializer: serializerName,
		Embed:      embed,
	}, nil
}

func isQuery(e ir.EntitySpec, name string) bool {
	_, ok := e.Query(name)
	return ok
}
