package loader

import (
	"context"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/queryir"
	"github.com/roach88/loadplan/internal/querysql"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/store"
)

// Bridge materializes select trees against a store.
type Bridge struct {
	store    *store.Store
	catalog  *schema.Catalog
	compiler *querysql.Compiler
	logger   *zap.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge returns a bridge over s using catalog for entity metadata.
func NewBridge(s *store.Store, catalog *schema.Catalog, opts ...Option) *Bridge {
	b := &Bridge{
		store:    s,
		catalog:  catalog,
		compiler: querysql.NewCompiler(s.Dialect()),
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Catalog returns the entity catalog.
func (b *Bridge) Catalog() *schema.Catalog {
	return b.catalog
}

// Store returns the underlying store.
func (b *Bridge) Store() *store.Store {
	return b.store
}

// IsCollectionLike reports whether v is an unrealized scope that should be
// planned before rendering. Materialized records are not.
func (b *Bridge) IsCollectionLike(v any) bool {
	switch v.(type) {
	case *Scope, Scope:
		return true
	default:
		return false
	}
}

// ResolveAssociationTarget returns the entity an association points at.
func (b *Bridge) ResolveAssociationTarget(entity, association string) (ir.EntitySpec, error) {
	return b.catalog.ResolveAssociationTarget(entity, association)
}

// Load fetches every column of the scope with no eager loading.
func (b *Bridge) Load(ctx context.Context, scope *Scope) ([]*Record, error) {
	return b.Materialize(ctx, scope, ir.NewWildcardNode())
}

// Materialize applies a select tree to a scope: one query for the root
// level, then one per included association.
func (b *Bridge) Materialize(ctx context.Context, scope *Scope, node *ir.SelectNode) ([]*Record, error) {
	if scope == nil {
		return nil, errors.New("materialize: nil scope")
	}
	if node == nil {
		node = ir.NewWildcardNode()
	}
	entity, ok := b.catalog.Entity(scope.Entity)
	if !ok {
		return nil, errors.Newf("materialize: unknown entity %q", scope.Entity)
	}

	var filter queryir.Predicate
	if len(scope.Filter) > 0 {
		cols := lo.Keys(scope.Filter)
		slices.Sort(cols)
		and := queryir.And{}
		for _, col := range cols {
			and.Predicates = append(and.Predicates, queryir.Equals{Field: col, Value: scope.Filter[col]})
		}
		filter = and
		if len(and.Predicates) == 1 {
			filter = and.Predicates[0]
		}
	}

	records, err := b.fetchLevel(ctx, entity, node, nil, filter)
	if err != nil {
		return nil, err
	}
	if err := b.loadIncludes(ctx, entity, records, node); err != nil {
		return nil, err
	}
	return records, nil
}

// fetchLevel runs one query for a plan level. extraKeys are columns the
// caller needs for stitching.
func (b *Bridge) fetchLevel(ctx context.Context, entity ir.EntitySpec, node *ir.SelectNode,
	extraKeys []string, filter queryir.Predicate) ([]*Record, error) {

	cols, selected, err := b.levelColumns(entity, node, extraKeys)
	if err != nil {
		return nil, err
	}
	query, args, err := b.compiler.Compile(queryir.Select{
		From:    entity.Table,
		Columns: cols,
		Filter:  filter,
		OrderBy: []string{entity.Key()},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s", entity.Name)
	}

	rows, err := b.store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, len(rows))
	for i, row := range rows {
		for name, v := range row {
			if col, ok := schema.Column(entity, name); ok {
				row[name] = schema.Coerce(col, v)
			}
		}
		records[i] = newRecord(b, entity, row, selected)
	}
	b.logger.Debug("level fetched",
		zap.String("entity", entity.Name),
		zap.Strings("select", node.Select()),
		zap.Int("rows", len(records)))
	return records, nil
}

// levelColumns builds the select list for one level and the set of raw
// columns the plan itself selected.
func (b *Bridge) levelColumns(entity ir.EntitySpec, node *ir.SelectNode, extraKeys []string) ([]queryir.Column, map[string]bool, error) {
	var cols []queryir.Column
	selected := map[string]bool{}

	if node.IsWildcard() {
		cols = append(cols, queryir.Column{Table: entity.Table, Name: ir.Wildcard})
		for _, name := range entity.ColumnNames() {
			selected[name] = true
		}
	} else {
		keys := lo.Uniq(append([]string{entity.Key()}, extraKeys...))
		for _, include := range node.IncludeNames() {
			rel, err := b.catalog.Relation(entity.Name, relationName(include, node.Includes[include]))
			if err != nil {
				return nil, nil, err
			}
			if rel.Kind == ir.BelongsTo {
				keys = append(keys, rel.ForeignKey)
			}
		}

		for _, name := range node.Columns {
			if !entity.HasColumn(name) {
				return nil, nil, errors.Newf("%s has no column %q", entity.Name, name)
			}
			cols = append(cols, queryir.Column{Table: entity.Table, Name: name})
			selected[name] = true
		}
		for _, key := range lo.Uniq(keys) {
			if !slices.Contains(node.Columns, key) {
				cols = append(cols, queryir.Column{Table: entity.Table, Name: key})
			}
		}
	}

	for _, name := range node.Derived {
		q, ok := entity.Query(name)
		if !ok {
			return nil, nil, errors.Newf("%s has no query attribute %q", entity.Name, name)
		}
		cols = append(cols, queryir.Column{Expr: q.Expr, Alias: q.Name})
	}
	return cols, selected, nil
}

// loadIncludes eager-loads every association of node beneath parents.
func (b *Bridge) loadIncludes(ctx context.Context, entity ir.EntitySpec, parents []*Record, node *ir.SelectNode) error {
	for _, name := range node.IncludeNames() {
		if err := b.loadAssociation(ctx, entity, parents, name, node.Includes[name]); err != nil {
			return err
		}
	}
	return nil
}

// loadAssociation loads one association for all parents with at most one
// query. Parents with no keys to match get an empty association.
func (b *Bridge) loadAssociation(ctx context.Context, entity ir.EntitySpec, parents []*Record, name string, child *ir.SelectNode) error {
	rel, err := b.catalog.Relation(entity.Name, relationName(name, child))
	if err != nil {
		return err
	}
	target, _ := b.catalog.Entity(rel.Target)

	if rel.Kind == ir.BelongsTo {
		return b.loadBelongsTo(ctx, parents, name, rel, target, child)
	}

	parentKeys := uniqueKeys(parents, entity.Key())
	if child.IsIDsOnly() {
		if len(parentKeys) == 0 {
			for _, p := range parents {
				p.setAssociationIDs(name, []ir.IRValue{})
			}
			return nil
		}
		idsNode := &ir.SelectNode{Mode: ir.ModeExplicit, Columns: []string{target.Key()}}
		rows, err := b.fetchLevel(ctx, target, idsNode, []string{rel.ForeignKey},
			queryir.In{Field: rel.ForeignKey, Values: parentKeys})
		if err != nil {
			return err
		}
		grouped := groupBy(rows, rel.ForeignKey)
		for _, p := range parents {
			ids := []ir.IRValue{}
			for _, rec := range grouped[keyString(p.raw(entity.Key()))] {
				ids = append(ids, rec.raw(target.Key()))
			}
			p.setAssociationIDs(name, ids)
		}
		return nil
	}

	var children []*Record
	if len(parentKeys) > 0 {
		children, err = b.fetchLevel(ctx, target, child, []string{rel.ForeignKey},
			queryir.In{Field: rel.ForeignKey, Values: parentKeys})
		if err != nil {
			return err
		}
	}
	grouped := groupBy(children, rel.ForeignKey)
	for _, p := range parents {
		recs := grouped[keyString(p.raw(entity.Key()))]
		if rel.Kind == ir.HasOne && len(recs) > 1 {
			recs = recs[:1]
		}
		if recs == nil {
			recs = []*Record{}
		}
		p.setAssociation(name, recs)
	}
	if len(children) == 0 {
		return nil
	}
	return b.loadIncludes(ctx, target, children, child)
}

func (b *Bridge) loadBelongsTo(ctx context.Context, parents []*Record, name string,
	rel ir.RelationSpec, target ir.EntitySpec, child *ir.SelectNode) error {

	if child.IsIDsOnly() {
		for _, p := range parents {
			fk := p.raw(rel.ForeignKey)
			if _, isNull := fk.(ir.IRNull); isNull {
				p.setAssociationIDs(name, []ir.IRValue{})
				continue
			}
			p.setAssociationIDs(name, []ir.IRValue{fk})
		}
		return nil
	}

	fks := uniqueKeys(parents, rel.ForeignKey)
	var targets []*Record
	if len(fks) > 0 {
		var err error
		targets, err = b.fetchLevel(ctx, target, child, nil,
			queryir.In{Field: target.Key(), Values: fks})
		if err != nil {
			return err
		}
	}
	byKey := groupBy(targets, target.Key())
	for _, p := range parents {
		recs := byKey[keyString(p.raw(rel.ForeignKey))]
		if recs == nil {
			recs = []*Record{}
		}
		p.setAssociation(name, recs)
	}
	if len(targets) == 0 {
		return nil
	}
	return b.loadIncludes(ctx, target, targets, child)
}

// computeDerived evaluates one query attribute for one row.
func (b *Bridge) computeDerived(ctx context.Context, entity ir.EntitySpec, key ir.IRValue, q ir.QueryAttr) (ir.IRValue, error) {
	query, args, err := b.compiler.Compile(queryir.Select{
		From:    entity.Table,
		Columns: []queryir.Column{{Expr: q.Expr, Alias: q.Name}},
		Filter:  queryir.Equals{Field: entity.Key(), Value: key},
		Limit:   1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s.%s", entity.Name, q.Name)
	}
	rows, err := b.store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return ir.IRNull{}, nil
	}
	return rows[0][q.Name], nil
}

func relationName(name string, node *ir.SelectNode) string {
	if node != nil && node.Relation != "" {
		return node.Relation
	}
	return name
}

// uniqueKeys collects distinct non-null values of column in record order.
func uniqueKeys(records []*Record, column string) []ir.IRValue {
	seen := map[string]bool{}
	var out []ir.IRValue
	for _, rec := range records {
		v := rec.raw(column)
		if _, isNull := v.(ir.IRNull); isNull {
			continue
		}
		k := keyString(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

func groupBy(records []*Record, column string) map[string][]*Record {
	out := map[string][]*Record{}
	for _, rec := range records {
		k := keyString(rec.raw(column))
		out[k] = append(out[k], rec)
	}
	return out
}

// keyString renders a key value for map lookups. Keys of different IR
// types never collide.
func keyString(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return ""
	}
	return string(data)
}
