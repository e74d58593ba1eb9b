package render

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/loader"
	"github.com/roach88/loadplan/internal/plan"
	"github.com/roach88/loadplan/internal/serializer"
)

// Options selects the serializer for a collection.
type Options struct {
	// Serializer renders the collection's entity. Defaults to the entity's
	// <Entity>Serializer.
	Serializer string
	// EachSerializer takes precedence over Serializer, matching the
	// array-serializer option of the same name.
	EachSerializer string
}

func (o Options) serializer() string {
	if o.EachSerializer != "" {
		return o.EachSerializer
	}
	return o.Serializer
}

// Renderer renders records through serializer descriptors.
type Renderer struct {
	registry *serializer.Registry
	builder  *plan.Builder
	bridge   *loader.Bridge
	ids      IDGenerator
	logger   *zap.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithIDGenerator sets the request id source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Renderer) { r.ids = g }
}

// NewRenderer wires a renderer to its planner and loader.
func NewRenderer(registry *serializer.Registry, builder *plan.Builder, bridge *loader.Bridge, opts ...Option) *Renderer {
	r := &Renderer{
		registry: registry,
		builder:  builder,
		bridge:   bridge,
		ids:      UUIDv7Generator{},
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Collection renders a scope or a slice of records as an array.
//
// A scope is planned and materialized first. When the entity has no
// serializer at all, the scope is loaded without a plan and each record is
// rendered as its raw values.
func (r *Renderer) Collection(ctx context.Context, value any, opts Options) (ir.IRArray, error) {
	requestID := r.ids.Generate()
	log := r.logger.With(zap.String("request_id", requestID))

	records, err := r.Materialize(ctx, value, opts)
	if err != nil {
		return nil, err
	}

	name := opts.serializer()
	if name == "" && len(records) > 0 {
		var ok bool
		name, ok = r.registry.DefaultFor(records[0].Entity().Name)
		if !ok {
			log.Debug("rendering without serializer", zap.String("entity", records[0].Entity().Name))
			return rawValues(records), nil
		}
	}

	out := make(ir.IRArray, 0, len(records))
	for _, rec := range records {
		obj, err := r.One(ctx, rec, name)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	log.Debug("collection rendered",
		zap.String("serializer", name),
		zap.Int("records", len(out)))
	return out, nil
}

// Materialize returns the records behind value. Scopes are planned and
// loaded; records pass through untouched.
func (r *Renderer) Materialize(ctx context.Context, value any, opts Options) ([]*loader.Record, error) {
	switch v := value.(type) {
	case []*loader.Record:
		return v, nil
	case *loader.Record:
		return []*loader.Record{v}, nil
	case loader.Scope:
		return r.materializeScope(ctx, &v, opts)
	case *loader.Scope:
		return r.materializeScope(ctx, v, opts)
	default:
		return nil, errors.Newf("cannot render %T as a collection", value)
	}
}

func (r *Renderer) materializeScope(ctx context.Context, scope *loader.Scope, opts Options) ([]*loader.Record, error) {
	if !r.bridge.IsCollectionLike(scope) {
		return nil, errors.Newf("cannot render %T as a collection", scope)
	}
	name, err := r.builder.Effective(scope.Entity, opts.serializer())
	if errors.Is(err, plan.ErrNoSerializer) {
		return r.bridge.Load(ctx, scope)
	}
	if err != nil {
		return nil, err
	}

	tree, err := r.builder.Build(name)
	if err != nil {
		return nil, err
	}
	return r.bridge.Materialize(ctx, scope, tree)
}

// One renders a single record with the named serializer.
func (r *Renderer) One(ctx context.Context, rec *loader.Record, name string) (ir.IRObject, error) {
	desc, err := r.registry.Describe(name)
	if err != nil {
		return nil, err
	}
	if rec.Entity().Name != desc.Entity.Name {
		return nil, errors.Newf("serializer %s renders %s, got a %s record",
			name, desc.Entity.Name, rec.Entity().Name)
	}

	out := make(ir.IRObject, len(desc.Attributes)+len(desc.Associations))
	for _, attr := range desc.Attributes {
		var v ir.IRValue
		if fn, ok := desc.Method(attr); ok {
			v, err = fn(ctx, rec)
		} else {
			v, err = rec.Get(ctx, attr)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s.%s", name, attr)
		}
		out[attr] = v
	}

	for _, a := range desc.Associations {
		if err := r.association(ctx, rec, a, out); err != nil {
			return nil, errors.Wrapf(err, "%s.%s", name, a.Name)
		}
	}
	return out, nil
}

func (r *Renderer) association(ctx context.Context, rec *loader.Record, a serializer.AssociationDescriptor, out ir.IRObject) error {
	// Eager-loaded associations are keyed by their serializer name; lazy
	// loads go through the entity relation.
	key := a.Name
	if !rec.Loaded(key) {
		key = a.Relation.Name
	}
	many := a.Relation.Kind == ir.HasMany

	if a.IDsOnly() {
		ids, err := rec.AssociationIDs(ctx, key)
		if err != nil {
			return err
		}
		if many {
			out[IDsKey(a.Name)] = ir.IRArray(ids)
			return nil
		}
		var id ir.IRValue = ir.IRNull{}
		if len(ids) > 0 {
			id = ids[0]
		}
		out[IDKey(a.Name)] = id
		return nil
	}

	children, err := rec.Association(ctx, key)
	if err != nil {
		return err
	}
	if !many {
		if len(children) == 0 {
			out[a.Name] = ir.IRNull{}
			return nil
		}
		obj, err := r.One(ctx, children[0], a.Serializer)
		if err != nil {
			return err
		}
		out[a.Name] = obj
		return nil
	}

	arr := make(ir.IRArray, 0, len(children))
	for _, child := range children {
		obj, err := r.One(ctx, child, a.Serializer)
		if err != nil {
			return err
		}
		arr = append(arr, obj)
	}
	out[a.Name] = arr
	return nil
}

// IDsKey is the output key of a has_many ids association:
// "comments" renders as "comment_ids".
func IDsKey(association string) string {
	return singular(association) + "_ids"
}

// IDKey is the output key of a singular ids association.
func IDKey(association string) string {
	return association + "_id"
}

func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies") && len(name) > 3:
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "ses"), strings.HasSuffix(name, "xes"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "ss"):
		return name
	case strings.HasSuffix(name, "s"):
		return strings.TrimSuffix(name, "s")
	default:
		return name
	}
}

func rawValues(records []*loader.Record) ir.IRArray {
	out := make(ir.IRArray, len(records))
	for i, rec := range records {
		out[i] = rec.Values()
	}
	return out
}
