package loader

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/queryir"
)

// Step is one statement a plan issues when materialized.
type Step struct {
	Path   string `json:"path"` // "" for the root level, then "posts", "posts.comments"
	Entity string `json:"entity"`
	SQL    string `json:"sql"`
}

// keyPlaceholder stands in for the parent keys of a level.
var keyPlaceholder = []ir.IRValue{ir.IRInt(0)}

// Explain lists the statements Materialize would run for node over every
// row of entity, without touching the store. Nested levels filter on a
// single placeholder key; ids-only belongs_to levels issue no statement.
func (b *Bridge) Explain(entity string, node *ir.SelectNode) ([]Step, error) {
	if node == nil {
		node = ir.NewWildcardNode()
	}
	e, ok := b.catalog.Entity(entity)
	if !ok {
		return nil, errors.Newf("explain: unknown entity %q", entity)
	}

	steps := []Step{}
	sql, err := b.levelSQL(e, node, nil, nil)
	if err != nil {
		return nil, err
	}
	steps = append(steps, Step{Entity: e.Name, SQL: sql})
	return b.explainIncludes(steps, e, node, "")
}

func (b *Bridge) explainIncludes(steps []Step, entity ir.EntitySpec, node *ir.SelectNode, prefix string) ([]Step, error) {
	for _, name := range node.IncludeNames() {
		child := node.Includes[name]
		rel, err := b.catalog.Relation(entity.Name, relationName(name, child))
		if err != nil {
			return nil, err
		}
		target, _ := b.catalog.Entity(rel.Target)
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		var sql string
		switch {
		case rel.Kind == ir.BelongsTo && child.IsIDsOnly():
			continue
		case rel.Kind == ir.BelongsTo:
			sql, err = b.levelSQL(target, child, nil, queryir.In{Field: target.Key(), Values: keyPlaceholder})
		case child.IsIDsOnly():
			idsNode := &ir.SelectNode{Mode: ir.ModeExplicit, Columns: []string{target.Key()}}
			sql, err = b.levelSQL(target, idsNode, []string{rel.ForeignKey},
				queryir.In{Field: rel.ForeignKey, Values: keyPlaceholder})
		default:
			sql, err = b.levelSQL(target, child, []string{rel.ForeignKey},
				queryir.In{Field: rel.ForeignKey, Values: keyPlaceholder})
		}
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Path: path, Entity: target.Name, SQL: sql})

		if child.IsIDsOnly() {
			continue
		}
		if steps, err = b.explainIncludes(steps, target, child, path); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func (b *Bridge) levelSQL(entity ir.EntitySpec, node *ir.SelectNode, extraKeys []string, filter queryir.Predicate) (string, error) {
	cols, _, err := b.levelColumns(entity, node, extraKeys)
	if err != nil {
		return "", err
	}
	sql, _, err := b.compiler.Compile(queryir.Select{
		From:    entity.Table,
		Columns: cols,
		Filter:  filter,
		OrderBy: []string{entity.Key()},
	})
	if err != nil {
		return "", errors.Wrapf(err, "compile %s", entity.Name)
	}
	return sql, nil
}
