// Package querysql compiles queryir queries to parameterized SQL.
package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/queryir"
	"github.com/roach88/loadplan/internal/schema"
)

// DefaultOrderKey is used when a Select carries no OrderBy.
const DefaultOrderKey = ir.DefaultPrimaryKey

// Compiler compiles queryir to parameterized SQL for one dialect.
//
// Every query has an ORDER BY for deterministic results. Values are
// always bound as parameters, never interpolated.
type Compiler struct {
	dialect schema.Dialect
	builder sq.StatementBuilderType
}

// NewCompiler returns a compiler with the placeholder style of dialect:
// ? for sqlite, $n for postgres.
func NewCompiler(dialect schema.Dialect) *Compiler {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == schema.Postgres {
		format = sq.Dollar
	}
	return &Compiler{
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() schema.Dialect {
	return c.dialect
}

// Compile converts a query to SQL and its parameters.
// Queries that fail queryir.Validate are rejected.
func (c *Compiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, errors.New("cannot compile nil query")
	}
	if result := queryir.Validate(q); !result.OK() {
		return "", nil, errors.Newf("invalid query: %v", result.Errors)
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, errors.Newf("unsupported query type: %T", q)
	}
}

func (c *Compiler) compileSelect(q queryir.Select) (string, []any, error) {
	b := c.builder.Select(compileColumns(q)...).From(q.From)

	if q.Filter != nil {
		where, err := c.compilePredicate(q.From, q.Filter)
		if err != nil {
			return "", nil, errors.Wrap(err, "compile filter")
		}
		b = b.Where(where)
	}

	order := q.OrderBy
	if len(order) == 0 {
		order = []string{DefaultOrderKey}
	}
	for _, col := range order {
		b = b.OrderBy(qualify(q.From, col) + " ASC")
	}
	if q.Limit > 0 {
		b = b.Limit(q.Limit)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, errors.Wrapf(err, "build select from %s", q.From)
	}
	return query, args, nil
}

// compileColumns renders the select list: "posts.*", "posts.title",
// "(expr) AS alias".
func compileColumns(q queryir.Select) []string {
	cols := make([]string, 0, len(q.Columns))
	for _, col := range q.Columns {
		if col.Expr != "" {
			cols = append(cols, fmt.Sprintf("(%s) AS %s", col.Expr, col.Alias))
			continue
		}
		table := col.Table
		if table == "" {
			table = q.From
		}
		name := qualify(table, col.Name)
		if col.Alias != "" && col.Alias != col.Name {
			name += " AS " + col.Alias
		}
		cols = append(cols, name)
	}
	return cols
}

func (c *Compiler) compilePredicate(table string, p queryir.Predicate) (sq.Sqlizer, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return compileEquals(table, pred)
	case *queryir.Equals:
		return compileEquals(table, *pred)
	case queryir.In:
		return compileIn(table, pred)
	case *queryir.In:
		return compileIn(table, *pred)
	case queryir.And:
		return c.compileAnd(table, pred)
	case *queryir.And:
		return c.compileAnd(table, *pred)
	default:
		return nil, errors.Newf("unsupported predicate type: %T", p)
	}
}

func compileEquals(table string, eq queryir.Equals) (sq.Sqlizer, error) {
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "value for %s", eq.Field)
	}
	return sq.Eq{qualify(table, eq.Field): param}, nil
}

// compileIn renders field IN (...). squirrel renders an empty list as
// (1=0).
func compileIn(table string, in queryir.In) (sq.Sqlizer, error) {
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		param, err := irValueToParam(v)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d for %s", i, in.Field)
		}
		params[i] = param
	}
	return sq.Eq{qualify(table, in.Field): params}, nil
}

func (c *Compiler) compileAnd(table string, and queryir.And) (sq.Sqlizer, error) {
	if len(and.Predicates) == 0 {
		return sq.Expr("1 = 1"), nil
	}
	out := make(sq.And, 0, len(and.Predicates))
	for _, pred := range and.Predicates {
		sub, err := c.compilePredicate(table, pred)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func qualify(table, column string) string {
	return table + "." + column
}

// irValueToParam converts an IRValue to a database/sql parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull, nil:
		return nil, errors.New("NULL cannot be compared with =; filter it out before building the query")
	default:
		return nil, errors.Newf("unsupported parameter type: %T", v)
	}
}
