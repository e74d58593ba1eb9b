package loader

import (
	"maps"

	"github.com/roach88/loadplan/internal/ir"
)

// Scope is an unrealized collection: every row of an entity, optionally
// narrowed by column equality filters.
type Scope struct {
	Entity string
	Filter map[string]ir.IRValue
}

// All returns a scope over every row of entity.
func All(entity string) *Scope {
	return &Scope{Entity: entity}
}

// Where returns a copy of the scope with an added equality filter.
func (s *Scope) Where(column string, v ir.IRValue) *Scope {
	filter := maps.Clone(s.Filter)
	if filter == nil {
		filter = map[string]ir.IRValue{}
	}
	filter[column] = v
	return &Scope{Entity: s.Entity, Filter: filter}
}
