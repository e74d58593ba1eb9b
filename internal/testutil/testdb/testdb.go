// Package testdb opens seeded in-memory stores for package tests.
package testdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/store"
	"github.com/roach88/loadplan/internal/testutil"
)

// OpenBlog returns an in-memory sqlite store holding the blog fixture rows
// and the matching catalog. The store is closed when the test ends.
func OpenBlog(t *testing.T) (*store.Store, *schema.Catalog) {
	t.Helper()
	ctx := context.Background()

	catalog := schema.MustCatalog(testutil.BlogEntities()...)
	s, err := store.Open(ctx, store.Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.ApplySchema(ctx, catalog))
	rows := testutil.BlogRows()
	for _, table := range testutil.BlogTables {
		require.NoError(t, s.InsertAll(ctx, table, rows[table]))
	}
	return s, catalog
}
