package loader

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/roach88/loadplan/internal/ir"
)

// Record is one fetched row plus its eager-loaded associations.
//
// Get and the association accessors track which fields a serializer read.
// Reads made by the loader to stitch levels are not tracked.
//
// Thread-safety: All methods are safe for concurrent use.
type Record struct {
	bridge *Bridge
	entity ir.EntitySpec

	mu       sync.Mutex
	values   ir.IRObject
	selected map[string]bool // plan-selected raw columns
	assocs   map[string][]*Record
	assocIDs map[string][]ir.IRValue
	accessed map[string]bool
}

func newRecord(b *Bridge, entity ir.EntitySpec, values ir.IRObject, selected map[string]bool) *Record {
	return &Record{
		bridge:   b,
		entity:   entity,
		values:   values,
		selected: selected,
		assocs:   map[string][]*Record{},
		assocIDs: map[string][]ir.IRValue{},
		accessed: map[string]bool{},
	}
}

// Entity returns the record's entity declaration.
func (r *Record) Entity() ir.EntitySpec {
	return r.entity
}

// Key returns the primary key value. Not tracked as an access.
func (r *Record) Key() ir.IRValue {
	return r.raw(r.entity.Key())
}

func (r *Record) raw(name string) ir.IRValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.values[name]; ok {
		return v
	}
	return ir.IRNull{}
}

// Get returns an attribute value and marks it accessed.
//
// Columns must have been fetched. A derived attribute that was not
// selected is computed with a single-row query.
func (r *Record) Get(ctx context.Context, name string) (ir.IRValue, error) {
	r.mu.Lock()
	v, ok := r.values[name]
	if ok {
		r.accessed[name] = true
	}
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	if r.entity.HasColumn(name) {
		return nil, errors.WithHint(
			errors.Newf("%s.%s was not selected", r.entity.Name, name),
			"remove it from skip_select or stop reading it")
	}
	q, ok := r.entity.Query(name)
	if !ok {
		return nil, errors.Newf("%s has no attribute %q", r.entity.Name, name)
	}

	v, err := r.bridge.computeDerived(ctx, r.entity, r.Key(), q)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.values[name] = v
	r.accessed[name] = true
	r.mu.Unlock()
	return v, nil
}

// Association returns the records of a relation, loading them with one
// query when they were not eager-loaded.
func (r *Record) Association(ctx context.Context, name string) ([]*Record, error) {
	r.mu.Lock()
	recs, ok := r.assocs[name]
	r.mu.Unlock()
	if ok {
		return recs, nil
	}

	if err := r.requireForeignKey(name); err != nil {
		return nil, err
	}
	node := ir.NewWildcardNode()
	node.Relation = name
	if err := r.bridge.loadAssociation(ctx, r.entity, []*Record{r}, name, node); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assocs[name], nil
}

// AssociationIDs returns the target keys of a relation. It prefers
// preloaded ids, then preloaded records, then the foreign key of a
// belongs_to relation, and only then queries.
func (r *Record) AssociationIDs(ctx context.Context, name string) ([]ir.IRValue, error) {
	r.mu.Lock()
	ids, ok := r.assocIDs[name]
	recs, loaded := r.assocs[name]
	r.mu.Unlock()
	if ok {
		return ids, nil
	}
	if loaded {
		out := make([]ir.IRValue, len(recs))
		for i, rec := range recs {
			out[i] = rec.Key()
		}
		return out, nil
	}

	if err := r.requireForeignKey(name); err != nil {
		return nil, err
	}
	node := &ir.SelectNode{Relation: name, Mode: ir.ModeExplicit, Embed: ir.EmbedIDs}
	if err := r.bridge.loadAssociation(ctx, r.entity, []*Record{r}, name, node); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assocIDs[name], nil
}

// requireForeignKey fails when name is a belongs_to relation whose
// foreign key was not fetched. A missing key would otherwise load as an
// empty association.
func (r *Record) requireForeignKey(name string) error {
	rel, err := r.bridge.catalog.Relation(r.entity.Name, name)
	if err != nil {
		return err
	}
	if rel.Kind != ir.BelongsTo {
		return nil
	}
	r.mu.Lock()
	_, ok := r.values[rel.ForeignKey]
	r.mu.Unlock()
	if ok {
		return nil
	}
	return errors.WithHintf(
		errors.Newf("%s.%s was not selected, so %s cannot be loaded", r.entity.Name, rel.ForeignKey, name),
		"remove %s from skip_select or include %s", rel.ForeignKey, name)
}

// Loaded reports whether an association was eager-loaded, as records or
// as ids.
func (r *Record) Loaded(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, recs := r.assocs[name]
	_, ids := r.assocIDs[name]
	return recs || ids
}

// Accessed returns the attribute names read through Get, sorted.
func (r *Record) Accessed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.accessed))
	for name := range r.accessed {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// ResetAccessed clears access tracking.
func (r *Record) ResetAccessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessed = map[string]bool{}
}

// Fetched returns the raw columns the plan selected, in declaration order.
// Key columns added only for stitching are excluded.
func (r *Record) Fetched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, col := range r.entity.ColumnNames() {
		if r.selected[col] {
			out = append(out, col)
		}
	}
	return out
}

// Values returns a copy of the fetched values. Not tracked.
func (r *Record) Values() ir.IRObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(ir.IRObject, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

func (r *Record) setAssociation(name string, recs []*Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assocs[name] = recs
}

func (r *Record) setAssociationIDs(name string, ids []ir.IRValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assocIDs[name] = ids
}
