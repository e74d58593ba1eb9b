package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/loader"
	"github.com/roach88/loadplan/internal/plan"
	"github.com/roach88/loadplan/internal/serializer"
	"github.com/roach88/loadplan/internal/store"
	"github.com/roach88/loadplan/internal/testutil"
	"github.com/roach88/loadplan/internal/testutil/testdb"
)

type fixture struct {
	store    *store.Store
	bridge   *loader.Bridge
	registry *serializer.Registry
	renderer *Renderer
}

func newFixture(t *testing.T, declare bool, opts ...Option) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s, catalog := testdb.OpenBlog(t)

	registry := serializer.NewRegistry(catalog, serializer.WithLogger(logger))
	if declare {
		require.NoError(t, registry.DeclareSpecs(testutil.BlogSerializers()...))
	}
	bridge := loader.NewBridge(s, catalog, loader.WithLogger(logger))
	builder := plan.NewBuilder(registry, plan.WithLogger(logger))
	r := NewRenderer(registry, builder, bridge, append([]Option{WithLogger(logger)}, opts...)...)
	return &fixture{store: s, bridge: bridge, registry: registry, renderer: r}
}

func canonical(t *testing.T, v ir.IRValue) string {
	t.Helper()
	data, err := ir.MarshalCanonical(v)
	require.NoError(t, err)
	return string(data)
}

func TestCollectionBlogGraph(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, loader.All("Blog"), Options{})
	rec.Stop()
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Count())
	expected := `[{"id":1,"posts":[` +
		`{"author_name":"John Doe","comments":[{"comment":"Comment 1","id":1}],"id":1,"title":"Post 1"},` +
		`{"author_name":"Maria Doe","comments":[{"comment":"Comment 2","id":2}],"id":2,"title":"Post 2"}],` +
		`"title":"Blog 1"},{"id":2,"posts":[],"title":"Blog 2"}]`
	assert.Equal(t, expected, canonical(t, out))
}

func TestCollectionQueryCountIndependentOfSize(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	for i := 3; i <= 12; i++ {
		require.NoError(t, f.store.Insert(ctx, "blogs", ir.IRObject{
			"id": ir.IRInt(i), "title": ir.IRString("More"),
		}))
		require.NoError(t, f.store.Insert(ctx, "posts", ir.IRObject{
			"id": ir.IRInt(i), "blog_id": ir.IRInt(i), "title": ir.IRString("P"),
			"author_first_name": ir.IRString("A"), "author_last_name": ir.IRString("B"),
		}))
	}

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, loader.All("Blog"), Options{Serializer: "BlogSerializer"})
	rec.Stop()
	require.NoError(t, err)
	assert.Len(t, out, 12)
	assert.Equal(t, 3, rec.Count())
}

func TestCollectionIDsEmbed(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, loader.All("Post"), Options{EachSerializer: "PostWithCommentIdsSerializer"})
	rec.Stop()
	require.NoError(t, err)

	assert.Equal(t, `[{"comment_ids":[1],"id":1,"title":"Post 1"},{"comment_ids":[2],"id":2,"title":"Post 2"}]`,
		canonical(t, out))
	require.Equal(t, 2, rec.Count())
	for _, sql := range rec.SQL() {
		assert.NotContains(t, sql, "comments.comment,")
		assert.NotContains(t, sql, "comments.*")
	}
}

func TestCollectionBelongsToIDsNeedsNoQuery(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.registry.Declare(serializer.NewDeclaration("CommentWithPostIdSerializer", "Comment").
		Attributes("id").
		HasOne("post", serializer.EmbedIDs())))
	ctx := context.Background()

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, loader.All("Comment"), Options{Serializer: "CommentWithPostIdSerializer"})
	rec.Stop()
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, `[{"id":1,"post_id":1},{"id":2,"post_id":2}]`, canonical(t, out))
}

func TestCollectionFilteredScope(t *testing.T) {
	f := newFixture(t, true)

	out, err := f.renderer.Collection(context.Background(),
		loader.All("Post").Where("blog_id", ir.IRInt(1)).Where("title", ir.IRString("Post 2")),
		Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ir.IRString("Maria Doe"), out[0].(ir.IRObject)["author_name"])
}

func TestCollectionWithoutSerializerFallsBack(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, loader.All("Comment"), Options{})
	rec.Stop()
	require.NoError(t, err)

	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, `[{"comment":"Comment 1","id":1,"post_id":1},{"comment":"Comment 2","id":2,"post_id":2}]`,
		canonical(t, out))
}

func TestCollectionPassesRecordsThrough(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	comments, err := f.bridge.Load(ctx, loader.All("Comment"))
	require.NoError(t, err)

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, comments, Options{})
	rec.Stop()
	require.NoError(t, err)
	assert.Zero(t, rec.Count())
	assert.Len(t, out, 2)
}

func TestCollectionUnplannedRecordsLoadLazily(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	blogs, err := f.bridge.Load(ctx, loader.All("Blog"))
	require.NoError(t, err)

	rec := f.store.Record()
	out, err := f.renderer.Collection(ctx, blogs, Options{})
	rec.Stop()
	require.NoError(t, err)

	planned := newFixture(t, true)
	want, err := planned.renderer.Collection(ctx, loader.All("Blog"), Options{})
	require.NoError(t, err)

	assert.Equal(t, canonical(t, want), canonical(t, out))
	assert.Greater(t, rec.Count(), 3)
}

func TestCollectionRejectsOtherValues(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.renderer.Collection(context.Background(), "Blog", Options{})
	assert.ErrorContains(t, err, "cannot render string")
}

func TestOneEntityMismatch(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	comments, err := f.bridge.Load(ctx, loader.All("Comment"))
	require.NoError(t, err)
	_, err = f.renderer.One(ctx, comments[0], "BlogSerializer")
	assert.ErrorContains(t, err, "renders Blog, got a Comment record")
}

func TestOneMethodAttribute(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.registry.Declare(serializer.NewDeclaration("ShoutingCommentSerializer", "Comment").
		Attributes("id").
		Method("loud", func(ctx context.Context, rec *loader.Record) (ir.IRValue, error) {
			v, err := rec.Get(ctx, "comment")
			if err != nil {
				return nil, err
			}
			return ir.IRString(string(v.(ir.IRString)) + "!"), nil
		})))
	ctx := context.Background()

	out, err := f.renderer.Collection(ctx, loader.All("Comment"), Options{Serializer: "ShoutingCommentSerializer"})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1,"loud":"Comment 1!"},{"id":2,"loud":"Comment 2!"}]`, canonical(t, out))
}

func TestCollectionRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, true,
		WithLogger(zap.New(core)),
		WithIDGenerator(testutil.NewSequenceIDGenerator("render")))
	ctx := context.Background()

	_, err := f.renderer.Collection(ctx, loader.All("Comment"), Options{})
	require.NoError(t, err)
	_, err = f.renderer.Collection(ctx, loader.All("Comment"), Options{})
	require.NoError(t, err)

	entries := logs.FilterMessage("collection rendered").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "render-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "render-2", entries[1].ContextMap()["request_id"])
}

func TestUUIDv7Generator(t *testing.T) {
	a := UUIDv7Generator{}.Generate()
	b := UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestIDKeys(t *testing.T) {
	tests := map[string]string{
		"comments":   "comment_ids",
		"categories": "category_ids",
		"boxes":      "box_ids",
		"staff":      "staff_ids",
		"addresses":  "address_ids",
	}
	for in, want := range tests {
		assert.Equal(t, want, IDsKey(in), in)
	}
	assert.Equal(t, "post_id", IDKey("post"))
}
