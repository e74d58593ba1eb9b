package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/ir"
)

// Query runs a read statement and returns every row as an IRObject keyed
// by result column name. Returns an empty slice, not nil, when no rows
// match.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]ir.IRObject, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", query)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "scan %q", query)
	}

	stmt := Statement{SQL: query, Args: args, Rows: len(out), Duration: time.Since(start)}
	s.logger.Debug("query",
		zap.String("sql", stmt.SQL),
		zap.Any("args", stmt.Args),
		zap.Int("rows", stmt.Rows),
		zap.Duration("duration", stmt.Duration))
	s.publish(stmt)
	return out, nil
}

func scanRows(rows *sql.Rows) ([]ir.IRObject, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	out := []ir.IRObject{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		row := make(ir.IRObject, len(cols))
		for i, col := range cols {
			v, err := scanValue(raw[i])
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", col)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return out, nil
}

// scanValue converts a driver value to an IRValue.
func scanValue(v any) (ir.IRValue, error) {
	if t, ok := v.(time.Time); ok {
		return ir.IRString(t.UTC().Format(time.RFC3339)), nil
	}
	return ir.FromGo(v)
}
