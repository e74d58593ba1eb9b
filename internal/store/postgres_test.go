package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/testutil"
)

// TestPostgres_RoundTrip runs against a real PostgreSQL container.
// Set LOADPLAN_POSTGRES_TESTS=1 to enable.
func TestPostgres_RoundTrip(t *testing.T) {
	if os.Getenv("LOADPLAN_POSTGRES_TESTS") != "1" {
		t.Skip("set LOADPLAN_POSTGRES_TESTS=1 to run PostgreSQL tests")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("loadplan"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, Options{Driver: DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, schema.Postgres, s.Dialect())

	require.NoError(t, s.ApplySchema(ctx, schema.MustCatalog(testutil.BlogEntities()...)))
	rows := testutil.BlogRows()
	for _, table := range testutil.BlogTables {
		require.NoError(t, s.InsertAll(ctx, table, rows[table]))
	}

	got, err := s.Query(ctx, "SELECT posts.id, posts.title FROM posts WHERE posts.blog_id = $1 ORDER BY posts.id ASC", int64(1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ir.IRObject{"id": ir.IRInt(1), "title": ir.IRString("Post 1")}, got[0])
}
