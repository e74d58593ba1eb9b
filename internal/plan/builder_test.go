package plan

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/selecttree"
	"github.com/roach88/loadplan/internal/serializer"
	"github.com/roach88/loadplan/internal/testutil"
)

func blogRegistry(t *testing.T, extra ...*serializer.Declaration) *serializer.Registry {
	t.Helper()
	r := serializer.NewRegistry(schema.MustCatalog(testutil.BlogEntities()...),
		serializer.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, r.DeclareSpecs(testutil.BlogSerializers()...))
	for _, d := range extra {
		require.NoError(t, r.Declare(d))
	}
	return r
}

func newBuilder(t *testing.T, r *serializer.Registry, opts ...Option) *Builder {
	t.Helper()
	return NewBuilder(r, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
}

func TestBuildBlogPlan(t *testing.T) {
	b := newBuilder(t, blogRegistry(t))

	tree, err := b.Build("BlogSerializer")
	require.NoError(t, err)

	assert.True(t, tree.IsWildcard())
	assert.Equal(t, "Blog", tree.Entity)

	posts, ok := tree.Lookup("posts")
	require.True(t, ok)
	assert.False(t, posts.IsWildcard())
	assert.Equal(t, "posts", posts.Relation)
	assert.Equal(t, []string{"id", "title", "blog_id", "author_name"}, posts.Select())
	assert.NotContains(t, posts.Select(), "author_first_name")
	assert.NotContains(t, posts.Select(), "author_last_name")

	comments, ok := tree.Lookup("posts.comments")
	require.True(t, ok)
	assert.True(t, comments.IsWildcard())
	assert.Equal(t, "Comment", comments.Entity)
}

func TestBuildGolden(t *testing.T) {
	b := newBuilder(t, blogRegistry(t))
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, name := range []string{"BlogSerializer", "PostWithCommentIdsSerializer"} {
		tree, err := b.Build(name)
		require.NoError(t, err)
		data, err := selecttree.Canonical(tree)
		require.NoError(t, err)
		g.Assert(t, name, data)
	}
}

func TestBuildIsFreshPerCall(t *testing.T) {
	b := newBuilder(t, blogRegistry(t))

	first, err := b.Build("BlogSerializer")
	require.NoError(t, err)
	first.Includes["posts"].Columns[0] = "mutated"
	delete(first.Includes["posts"].Includes, "comments")

	second, err := b.Build("BlogSerializer")
	require.NoError(t, err)
	assert.Equal(t, "id", second.Includes["posts"].Columns[0])
	assert.Contains(t, second.Includes["posts"].Includes, "comments")
	assert.Equal(t, ir.MustPlanHash(second), ir.MustPlanHash(mustBuild(t, b, "BlogSerializer")))
}

func mustBuild(t *testing.T, b *Builder, name string) *ir.SelectNode {
	t.Helper()
	tree, err := b.Build(name)
	require.NoError(t, err)
	return tree
}

func TestBuildIDsAssociationIsKeyOnly(t *testing.T) {
	b := newBuilder(t, blogRegistry(t))

	tree := mustBuild(t, b, "PostWithCommentIdsSerializer")
	comments := tree.Includes["comments"]
	require.NotNil(t, comments)
	assert.True(t, comments.IsIDsOnly())
	assert.Equal(t, []string{"id"}, comments.Select())
	assert.Empty(t, comments.Includes)
}

func TestBuildIDsAssociationSkipsCycleCheck(t *testing.T) {
	// Post -> blog (ids) never recurses into a blog serializer.
	r := blogRegistry(t,
		serializer.NewDeclaration("PostWithBlogIdSerializer", "Post").
			Attributes("id").
			HasOne("blog", serializer.EmbedIDs()),
	)
	tree := mustBuild(t, newBuilder(t, r), "PostWithBlogIdSerializer")

	blog := tree.Includes["blog"]
	assert.True(t, blog.IsIDsOnly())
	assert.Equal(t, "blog", blog.Relation)
}

func TestBuildDetectsCycles(t *testing.T) {
	r := blogRegistry(t,
		serializer.NewDeclaration("CyclicBlogSerializer", "Blog").
			Attributes("id").
			HasMany("posts", serializer.WithSerializer("CyclicPostSerializer")),
		serializer.NewDeclaration("CyclicPostSerializer", "Post").
			Attributes("id").
			HasOne("blog", serializer.WithSerializer("CyclicBlogSerializer")),
	)

	_, err := newBuilder(t, r).Build("CyclicBlogSerializer")
	require.Error(t, err)
	assert.True(t, ir.IsRecursionError(err))

	ce, ok := ir.AsConfigError(err)
	require.True(t, ok)
	assert.Equal(t, "Blog", ce.Subject)
	assert.Equal(t, []string{"CyclicBlogSerializer", "CyclicPostSerializer", "CyclicBlogSerializer"}, ce.Path)
	assert.Contains(t, err.Error(), "recursive association involving Blog")
}

func TestBuildAllowsParallelBranches(t *testing.T) {
	// CommentSerializer appears under two sibling branches; neither is a cycle.
	r := blogRegistry(t,
		serializer.NewDeclaration("CommentWithPostSerializer", "Comment").
			Attributes("id").
			HasOne("post", serializer.WithSerializer("PostSerializer")),
		serializer.NewDeclaration("TwoWaySerializer", "Post").
			Attributes("id").
			HasMany("comments").
			HasMany("discussion", serializer.WithRelation("comments"), serializer.WithSerializer("CommentSerializer")),
	)
	b := newBuilder(t, r)

	tree := mustBuild(t, b, "TwoWaySerializer")
	assert.Equal(t, []string{"comments", "discussion"}, tree.IncludeNames())
	assert.Equal(t, "comments", tree.Includes["discussion"].Relation)

	tree = mustBuild(t, b, "CommentWithPostSerializer")
	post, ok := tree.Lookup("post.comments")
	require.True(t, ok)
	assert.Equal(t, "Comment", post.Entity)
}

func TestBuildMaxDepth(t *testing.T) {
	b := newBuilder(t, blogRegistry(t), WithMaxDepth(2))
	assert.Equal(t, 2, b.MaxDepth())

	_, err := b.Build("BlogSerializer")
	require.Error(t, err)
	assert.True(t, ir.IsRecursionError(err))
	assert.Contains(t, err.Error(), "association depth exceeds 2 at Comment")

	_, err = newBuilder(t, blogRegistry(t), WithMaxDepth(3)).Build("BlogSerializer")
	assert.NoError(t, err)

	assert.Equal(t, DefaultMaxDepth, newBuilder(t, blogRegistry(t), WithMaxDepth(0)).MaxDepth())
}

func TestBuildMergesIncludeDirectives(t *testing.T) {
	r := blogRegistry(t,
		serializer.NewDeclaration("EagerPostSerializer", "Post").
			Attributes("id").
			HasMany("comments", serializer.EmbedIDs()).
			Includes(map[string]any{"blog": "posts"}, "comments"),
	)
	tree := mustBuild(t, newBuilder(t, r), "EagerPostSerializer")

	comments := tree.Includes["comments"]
	assert.True(t, comments.IsWildcard(), "include directive widens the ids child")
	assert.False(t, comments.IsIDsOnly())
	assert.Equal(t, "Comment", comments.Entity)

	posts, ok := tree.Lookup("blog.posts")
	require.True(t, ok)
	assert.Equal(t, "Post", posts.Entity)
	assert.Equal(t, "posts", posts.Relation)
}

func TestBuildDirectiveKeepsSkipList(t *testing.T) {
	r := blogRegistry(t,
		serializer.NewDeclaration("IncludingBlogSerializer", "Blog").
			Attributes("id").
			HasMany("posts").
			Includes("posts"),
	)
	tree := mustBuild(t, newBuilder(t, r), "IncludingBlogSerializer")

	posts := tree.Includes["posts"]
	assert.False(t, posts.IsWildcard())
	assert.Equal(t, []string{"author_first_name", "author_last_name"}, posts.Skip)
	assert.Contains(t, posts.Includes, "comments")
}

func TestBuildSelectColumns(t *testing.T) {
	r := blogRegistry(t,
		serializer.NewDeclaration("PostSurnameSerializer", "Post").
			Attributes("id", "title").
			SkipSelect("blog_id", "author_first_name", "author_last_name").
			Select("author_last_name", "title", "author_name"),
		serializer.NewDeclaration("PostTitleSerializer", "Post").
			Attributes("id").
			Select("title"),
	)
	b := newBuilder(t, r)

	// explicit mode: loaders.select adds columns back after the skip-list
	tree := mustBuild(t, b, "PostSurnameSerializer")
	assert.False(t, tree.IsWildcard())
	assert.Equal(t, []string{"id", "title", "author_last_name"}, tree.Columns)
	assert.Equal(t, []string{"id", "title", "author_last_name", "author_name"}, tree.Select())

	// wildcard mode already covers every column
	tree = mustBuild(t, b, "PostTitleSerializer")
	assert.True(t, tree.IsWildcard())
	assert.Equal(t, []string{"*"}, tree.Select())
}

func TestBuildUnknownDirective(t *testing.T) {
	r := blogRegistry(t,
		serializer.NewDeclaration("BadIncludeSerializer", "Blog").Includes("authors"),
	)
	_, err := newBuilder(t, r).Build("BadIncludeSerializer")
	require.Error(t, err)
	assert.True(t, ir.IsUnknownAssociationTarget(err))
}

func TestBuildWith(t *testing.T) {
	b := newBuilder(t, blogRegistry(t))

	tree, err := b.BuildWith("Post", "")
	require.NoError(t, err)
	assert.Contains(t, tree.Includes, "comments")
	assert.False(t, tree.Includes["comments"].IsIDsOnly())

	tree, err = b.BuildWith("Post", "PostWithCommentIdsSerializer")
	require.NoError(t, err)
	assert.True(t, tree.Includes["comments"].IsIDsOnly())

	r := serializer.NewRegistry(schema.MustCatalog(testutil.BlogEntities()...))
	_, err = newBuilder(t, r).BuildWith("Post", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSerializer))

	_, err = b.Build("MissingSerializer")
	require.Error(t, err)
	assert.True(t, errors.Is(err, serializer.ErrUnknownSerializer))
}
