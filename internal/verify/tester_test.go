package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/loader"
	"github.com/roach88/loadplan/internal/plan"
	"github.com/roach88/loadplan/internal/render"
	"github.com/roach88/loadplan/internal/serializer"
	"github.com/roach88/loadplan/internal/store"
	"github.com/roach88/loadplan/internal/testutil"
	"github.com/roach88/loadplan/internal/testutil/testdb"
)

func newTester(t *testing.T, extra ...*serializer.Declaration) (*Tester, *store.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s, catalog := testdb.OpenBlog(t)

	registry := serializer.NewRegistry(catalog, serializer.WithLogger(logger))
	require.NoError(t, registry.DeclareSpecs(testutil.BlogSerializers()...))
	for _, d := range extra {
		require.NoError(t, registry.Declare(d))
	}
	renderer := render.NewRenderer(registry,
		plan.NewBuilder(registry, plan.WithLogger(logger)),
		loader.NewBridge(s, catalog, loader.WithLogger(logger)),
		render.WithLogger(logger))
	return NewTester(s, registry, renderer, WithLogger(logger)), s
}

// badBlog reads posts in a method, which no plan can preload.
func badBlog() *serializer.Declaration {
	return serializer.NewDeclaration("BadBlogSerializer", "Blog").
		Attributes("id", "title").
		Method("stuff", func(ctx context.Context, rec *loader.Record) (ir.IRValue, error) {
			if _, err := rec.Association(ctx, "posts"); err != nil {
				return nil, err
			}
			return ir.IRString("^^^ I was naughty ^^^"), nil
		})
}

func TestSerializerQueriesPreloaded(t *testing.T) {
	tester, _ := newTester(t)

	report, err := tester.TestSerializerQueries(context.Background(), "BlogSerializer", "Blog", Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 3, report.PlanQueries)
	assert.Equal(t, []string{"id", "title"}, report.Fetched)
	assert.Equal(t, []string{"id", "title"}, report.Accessed)
	assert.Equal(t, []string{"BlogSerializer"}, tester.Tested())
}

func TestSerializerQueriesIDsEmbed(t *testing.T) {
	tester, _ := newTester(t)

	report, err := tester.TestSerializerQueries(context.Background(), "PostWithCommentIdsSerializer", "Post",
		Options{IgnoreColumns: []string{"blog_id", "author_first_name", "author_last_name"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.PlanQueries)
}

func TestSerializerQueriesNotPreloaded(t *testing.T) {
	tester, _ := newTester(t, badBlog())

	_, err := tester.TestSerializerQueries(context.Background(), "BadBlogSerializer", "Blog", Options{})
	require.Error(t, err)

	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.Equal(t, FailureQueryCount, ve.Kind)
	require.Len(t, ve.Queries, 1)
	assert.Contains(t, ve.Queries[0], "FROM posts")
	assert.Contains(t, err.Error(), "Queries:")
	assert.Empty(t, tester.Tested())
}

func TestSerializerQueriesAllowance(t *testing.T) {
	tester, _ := newTester(t, badBlog())

	_, err := tester.TestSerializerQueries(context.Background(), "BadBlogSerializer", "Blog",
		Options{AllowQueriesPerRecord: 1})
	assert.NoError(t, err)

	_, err = tester.TestSerializerQueries(context.Background(), "BlogSerializer", "Blog",
		Options{AllowQueriesPerRecord: 1})
	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.Equal(t, FailureQueryCount, ve.Kind)
	assert.Empty(t, ve.Queries)
}

func TestSerializerQueriesUnusedColumns(t *testing.T) {
	tester, _ := newTester(t)
	ctx := context.Background()

	_, err := tester.TestSerializerQueries(ctx, "PostSerializer", "Post", Options{})
	require.Error(t, err)

	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.Equal(t, FailureUnusedColumns, ve.Kind)
	assert.Equal(t, []string{"blog_id"}, ve.Columns)
	assert.Equal(t, "unnecessary select for Post columns: blog_id", ve.Message)

	hints := errors.GetAllHints(err)
	require.Len(t, hints, 3)
	assert.Contains(t, hints[0], `skip_select: ["blog_id"]`)
	assert.Contains(t, hints[1], `Options{IgnoreColumns: []string{"blog_id"}}`)
	assert.Contains(t, hints[2], `Options{SkipColumnsCheck: true}`)
	assert.Equal(t, ve.Hints, hints)

	// Printing the error alone must be enough to fix the serializer.
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "unnecessary select for Post columns: blog_id\n\n"))
	assert.Contains(t, msg, "add to PostSerializer loaders:\n  skip_select: [\"blog_id\"]")
	assert.Contains(t, msg, `TestSerializerQueries(ctx, "PostSerializer", "Post", Options{IgnoreColumns: []string{"blog_id"}})`)
	assert.Contains(t, msg, `TestSerializerQueries(ctx, "PostSerializer", "Post", Options{SkipColumnsCheck: true})`)

	_, err = tester.TestSerializerQueries(ctx, "PostSerializer", "Post", Options{IgnoreColumns: []string{"blog_id"}})
	assert.NoError(t, err)
	_, err = tester.TestSerializerQueries(ctx, "PostSerializer", "Post", Options{SkipColumnsCheck: true})
	assert.NoError(t, err)
}

func TestSerializerQueriesIgnoredColumnsInHint(t *testing.T) {
	tester, _ := newTester(t)

	_, err := tester.TestSerializerQueries(context.Background(), "CommentSerializer", "Comment",
		Options{IgnoreColumns: []string{"created_at"}})
	require.Error(t, err)
	hints := errors.GetAllHints(err)
	require.Len(t, hints, 3)
	assert.Contains(t, hints[1], `[]string{"created_at", "post_id"}`)
}

func TestSerializerQueriesNoRecords(t *testing.T) {
	tester, s := newTester(t)
	ctx := context.Background()
	_, err := s.DB().ExecContext(ctx, "DELETE FROM comments")
	require.NoError(t, err)

	_, err = tester.TestSerializerQueries(ctx, "CommentSerializer", "Comment", Options{})
	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.Equal(t, FailureNoRecords, ve.Kind)
	assert.Contains(t, errors.FlattenHints(err), "create at least 1 Comment")
	assert.Equal(t, "not enough records to test CommentSerializer\n\ncreate at least 1 Comment", err.Error())
}

func TestSerializerQueriesEntityMismatch(t *testing.T) {
	tester, _ := newTester(t)

	_, err := tester.TestSerializerQueries(context.Background(), "BlogSerializer", "Post", Options{})
	require.Error(t, err)
	assert.False(t, IsVerificationError(err))
	assert.ErrorContains(t, err, "renders Blog, not Post")

	_, err = tester.TestSerializerQueries(context.Background(), "NopeSerializer", "Post", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, serializer.ErrUnknownSerializer))
}

func TestAssertAllSerializersTested(t *testing.T) {
	tester, _ := newTester(t,
		serializer.NewDeclaration("Admin.BlogSerializer", "Blog").Attributes("id", "title"))
	ctx := context.Background()

	_, err := tester.TestSerializerQueries(ctx, "BlogSerializer", "Blog", Options{})
	require.NoError(t, err)

	err = tester.AssertAllSerializersTested("")
	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.Equal(t, FailureUntested, ve.Kind)
	assert.Equal(t, []string{"CommentSerializer", "PostSerializer", "PostWithCommentIdsSerializer"}, ve.Columns)
	assert.EqualError(t, err,
		"serializers not tested: CommentSerializer, PostSerializer, PostWithCommentIdsSerializer")

	assert.Error(t, tester.AssertAllSerializersTested("Admin"))
	_, err = tester.TestSerializerQueries(ctx, "Admin.BlogSerializer", "Blog", Options{})
	require.NoError(t, err)
	assert.NoError(t, tester.AssertAllSerializersTested("Admin"))
	assert.NoError(t, tester.AssertAllSerializersTested("Api"))
}
