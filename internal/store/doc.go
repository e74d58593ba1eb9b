// Package store is the database access layer used by the loader.
//
// Two drivers are supported:
//   - sqlite3 (github.com/mattn/go-sqlite3), the default, usually in memory
//   - pgx (github.com/jackc/pgx/v5/stdlib) for PostgreSQL
//
// # Database Configuration (sqlite3)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one connection, so ":memory:" databases are shared by every query
//
// # Query log
//
// Every read statement is logged at debug level and published to the
// registered observers. A Recorder collects the statements issued inside a
// window; the verification harness counts queries with it.
package store
