package schema

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/loadplan/internal/ir"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is safe to use unquoted as a SQL
// table or column name.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// Catalog is an immutable-after-load set of entity declarations.
// It is safe for concurrent readers once populated.
type Catalog struct {
	entities map[string]ir.EntitySpec
	order    []string
}

// NewCatalog builds a catalog from entity declarations and checks that
// every relation resolves.
func NewCatalog(entities ...ir.EntitySpec) (*Catalog, error) {
	c := &Catalog{entities: make(map[string]ir.EntitySpec, len(entities))}
	for _, e := range entities {
		if err := c.add(e); err != nil {
			return nil, err
		}
	}
	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustCatalog is like NewCatalog but panics on error.
// Use only in tests and fixtures.
func MustCatalog(entities ...ir.EntitySpec) *Catalog {
	c, err := NewCatalog(entities...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) add(e ir.EntitySpec) error {
	if e.Name == "" {
		return errors.New("entity name is required")
	}
	if _, dup := c.entities[e.Name]; dup {
		return errors.Newf("entity %q declared twice", e.Name)
	}
	if e.Table == "" {
		return errors.Newf("entity %q: table is required", e.Name)
	}
	c.entities[e.Name] = e
	c.order = append(c.order, e.Name)
	return nil
}

// Check verifies identifiers, primary keys and relation targets.
func (c *Catalog) Check() error {
	for _, name := range c.order {
		e := c.entities[name]
		if !ValidIdentifier(e.Table) {
			return errors.Newf("entity %q: invalid table name %q", name, e.Table)
		}
		seen := map[string]bool{}
		for _, col := range e.Columns {
			if !ValidIdentifier(col.Name) {
				return errors.Newf("entity %q: invalid column name %q", name, col.Name)
			}
			if seen[col.Name] {
				return errors.Newf("entity %q: column %q declared twice", name, col.Name)
			}
			seen[col.Name] = true
		}
		if !e.HasColumn(e.Key()) {
			return errors.Newf("entity %q: primary key %q is not a column", name, e.Key())
		}
		for _, q := range e.Queries {
			if !ValidIdentifier(q.Name) {
				return errors.Newf("entity %q: invalid query attribute name %q", name, q.Name)
			}
			if seen[q.Name] {
				return errors.Newf("entity %q: query attribute %q shadows a column", name, q.Name)
			}
		}
		for _, r := range e.Relations {
			if !ir.ValidRelationKinds[r.Kind] {
				return errors.Newf("entity %q: relation %q has invalid kind %q", name, r.Name, r.Kind)
			}
			target, ok := c.entities[r.Target]
			if !ok {
				return ir.NewUnknownAssociationTarget(name, r.Name,
					fmt.Sprintf("target entity %q is not declared", r.Target))
			}
			fkOwner := target
			if r.Kind == ir.BelongsTo {
				fkOwner = e
			}
			if !fkOwner.HasColumn(r.ForeignKey) {
				return errors.Newf("entity %q: relation %q foreign key %q is not a column of %s",
					name, r.Name, r.ForeignKey, fkOwner.Name)
			}
		}
	}
	return nil
}

// Entity returns the declaration for name.
func (c *Catalog) Entity(name string) (ir.EntitySpec, bool) {
	e, ok := c.entities[name]
	return e, ok
}

// Names returns entity names in declaration order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.order)
}

// Entities returns all declarations in declaration order.
func (c *Catalog) Entities() []ir.EntitySpec {
	out := make([]ir.EntitySpec, len(c.order))
	for i, name := range c.order {
		out[i] = c.entities[name]
	}
	return out
}

// Columns returns the raw backing columns of an entity.
func (c *Catalog) Columns(entity string) ([]string, error) {
	e, ok := c.entities[entity]
	if !ok {
		return nil, errors.Newf("unknown entity %q", entity)
	}
	return e.ColumnNames(), nil
}

// Relation returns a relation declared on entity.
func (c *Catalog) Relation(entity, name string) (ir.RelationSpec, error) {
	e, ok := c.entities[entity]
	if !ok {
		return ir.RelationSpec{}, ir.NewUnknownAssociationTarget(entity, name,
			fmt.Sprintf("entity %q is not declared", entity))
	}
	r, ok := e.Relation(name)
	if !ok {
		return ir.RelationSpec{}, ir.NewUnknownAssociationTarget(entity, name,
			fmt.Sprintf("no relation %s on %s", name, entity))
	}
	return r, nil
}

// ResolveAssociationTarget returns the entity an association on entity
// points at.
func (c *Catalog) ResolveAssociationTarget(entity, association string) (ir.EntitySpec, error) {
	r, err := c.Relation(entity, association)
	if err != nil {
		return ir.EntitySpec{}, err
	}
	return c.entities[r.Target], nil
}
