package queryir

import "github.com/roach88/loadplan/internal/ir"

// Query represents an abstract fetch.
// Sealed: only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition.
// Sealed: only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Column is one entry of a select list.
//
// Exactly one of Name or Expr is set. Name may be "*" for every column of
// Table. Expr is a raw SQL expression for a derived attribute and requires
// Alias.
type Column struct {
	Table string
	Name  string
	Expr  string
	Alias string
}

// IsWildcard reports whether the column selects every column of its table.
func (c Column) IsWildcard() bool {
	return c.Name == ir.Wildcard
}

// Select is a single-table fetch.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY <order_by> ASC
type Select struct {
	From    string    // table name
	Columns []Column  // select list in order
	Filter  Predicate // nil = no filter
	OrderBy []string  // columns of From, ascending; compilers add the key when empty
	Limit   uint64    // 0 = no limit
}

func (Select) queryNode() {}

// Equals is field = value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In is field IN (values...). An empty list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// And is a conjunction. An empty list is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}
