package store

import (
	"context"
	"database/sql"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/loadplan/internal/schema"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// MemoryDSN is a private in-memory sqlite database.
const MemoryDSN = ":memory:"

// Options configures Open.
type Options struct {
	Driver string // sqlite3 (default) or pgx
	DSN    string // file path or ":memory:" for sqlite3, connection URL for pgx
	Logger *zap.Logger
}

// Store wraps a database handle with statement logging.
type Store struct {
	db      *sql.DB
	dialect schema.Dialect
	builder sq.StatementBuilderType
	logger  *zap.Logger

	mu        sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// Open connects to the database described by opts and verifies the
// connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if opts.DSN == "" && opts.Driver == DriverSQLite {
		opts.DSN = MemoryDSN
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}

	dialect, err := schema.DialectForDriver(opts.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	var format sq.PlaceholderFormat = sq.Question
	if dialect == schema.SQLite {
		// SQLite only supports one writer at a time, and every connection
		// to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "failed to apply pragmas")
		}
	} else {
		format = sq.Dollar
	}

	opts.Logger.Debug("store opened",
		zap.String("driver", opts.Driver),
		zap.String("dialect", string(dialect)))

	return &Store{
		db:        db,
		dialect:   dialect,
		builder:   sq.StatementBuilder.PlaceholderFormat(format),
		logger:    opts.Logger,
		observers: map[int]Observer{},
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
// Statements run directly on it are not logged or observed.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the connection.
func (s *Store) Dialect() schema.Dialect {
	return s.dialect
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute %q", pragma)
		}
	}
	return nil
}

// ApplySchema creates a table for every entity in the catalog.
// It is idempotent.
func (s *Store) ApplySchema(ctx context.Context, catalog *schema.Catalog) error {
	stmts, err := catalog.AllDDL(s.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply schema: %s", stmt)
		}
	}
	return nil
}
