package schema

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/loadplan/internal/ir"
)

// Dialect selects SQL flavor for DDL and placeholders.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres":
		return Postgres, nil
	default:
		return "", errors.Newf("unsupported driver %q", driver)
	}
}

// DDL renders CREATE TABLE IF NOT EXISTS for an entity.
func DDL(e ir.EntitySpec, dialect Dialect) (string, error) {
	var cols []string
	for _, col := range e.Columns {
		typ, err := columnType(col.Type, dialect)
		if err != nil {
			return "", errors.Wrapf(err, "entity %s column %s", e.Name, col.Name)
		}
		def := fmt.Sprintf("%s %s", col.Name, typ)
		if col.Name == e.Key() {
			def += " PRIMARY KEY"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", e.Table, strings.Join(cols, ",\n    ")), nil
}

// AllDDL renders DDL for every entity in declaration order.
func (c *Catalog) AllDDL(dialect Dialect) ([]string, error) {
	out := make([]string, 0, len(c.order))
	for _, e := range c.Entities() {
		stmt, err := DDL(e, dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

func columnType(typ string, dialect Dialect) (string, error) {
	switch typ {
	case "int", "":
		if dialect == Postgres {
			return "BIGINT", nil
		}
		return "INTEGER", nil
	case "string":
		return "TEXT", nil
	case "bool":
		return "BOOLEAN", nil
	default:
		return "", errors.Newf("unsupported column type %q", typ)
	}
}

// Coerce adjusts a scanned value to the declared column type. SQLite
// reports BOOLEAN columns as integers.
func Coerce(col ir.ColumnSpec, v ir.IRValue) ir.IRValue {
	if col.Type == "bool" {
		if n, ok := v.(ir.IRInt); ok {
			return ir.IRBool(n != 0)
		}
	}
	return v
}

// Column returns the column spec for name.
func Column(e ir.EntitySpec, name string) (ir.ColumnSpec, bool) {
	for _, col := range e.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ir.ColumnSpec{}, false
}
