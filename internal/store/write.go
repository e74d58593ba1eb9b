package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
)

// Insert writes one row. Values must be scalar IR values.
// Inserts are not published to observers.
func (s *Store) Insert(ctx context.Context, table string, row ir.IRObject) error {
	if !schema.ValidIdentifier(table) {
		return errors.Newf("invalid table name %q", table)
	}
	values := make(map[string]any, len(row))
	for _, col := range row.SortedKeys() {
		if !schema.ValidIdentifier(col) {
			return errors.Newf("invalid column name %q", col)
		}
		v, err := scalarParam(row[col])
		if err != nil {
			return errors.Wrapf(err, "insert %s.%s", table, col)
		}
		values[col] = v
	}

	query, args, err := s.builder.Insert(table).SetMap(values).ToSql()
	if err != nil {
		return errors.Wrapf(err, "build insert into %s", table)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "insert into %s", table)
	}
	s.logger.Debug("insert", zap.String("table", table), zap.Int("columns", len(values)))
	return nil
}

// InsertAll writes rows in order and stops at the first failure.
func (s *Store) InsertAll(ctx context.Context, table string, rows []ir.IRObject) error {
	for i, row := range rows {
		if err := s.Insert(ctx, table, row); err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
	}
	return nil
}

func scalarParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	default:
		return nil, errors.Newf("non-scalar value %T", v)
	}
}
