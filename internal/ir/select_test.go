package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogTree() *SelectNode {
	return &SelectNode{
		Entity: "Blog",
		Mode:   ModeWildcard,
		Includes: map[string]*SelectNode{
			"posts": {
				Entity:   "Post",
				Relation: "posts",
				Mode:     ModeExplicit,
				Columns:  []string{"id", "blog_id", "title"},
				Skip:     []string{"author_first_name", "author_last_name"},
				Derived:  []string{"author_name"},
				Includes: map[string]*SelectNode{
					"comments": {Entity: "Comment", Relation: "comments", Mode: ModeWildcard},
				},
			},
		},
	}
}

func TestSelectNodeSelect(t *testing.T) {
	tree := blogTree()

	assert.Equal(t, []string{"*"}, tree.Select())
	assert.Equal(t, []string{"id", "blog_id", "title", "author_name"}, tree.Includes["posts"].Select())
}

func TestSelectNodeZeroModeIsWildcard(t *testing.T) {
	n := &SelectNode{Derived: []string{"author_name"}}
	assert.True(t, n.IsWildcard())
	assert.Equal(t, []string{"*", "author_name"}, n.Select())
}

func TestSelectNodeLookup(t *testing.T) {
	tree := blogTree()

	n, ok := tree.Lookup("posts.comments")
	require.True(t, ok)
	assert.Equal(t, "Comment", n.Entity)

	root, ok := tree.Lookup("")
	require.True(t, ok)
	assert.Same(t, tree, root)

	_, ok = tree.Lookup("posts.author")
	assert.False(t, ok)
}

func TestSelectNodeIncludeNamesSorted(t *testing.T) {
	n := &SelectNode{Includes: map[string]*SelectNode{
		"tags":     NewWildcardNode(),
		"author":   NewWildcardNode(),
		"comments": NewWildcardNode(),
	}}
	assert.Equal(t, []string{"author", "comments", "tags"}, n.IncludeNames())
}

func TestSelectNodeSnapshot(t *testing.T) {
	data, err := MarshalCanonical(blogTree().Snapshot())
	require.NoError(t, err)

	expected := `{"entity":"Blog","includes":{"posts":{"entity":"Post","includes":{"comments":` +
		`{"entity":"Comment","relation":"comments","select":["*"]}},"relation":"posts",` +
		`"select":["id","blog_id","title","author_name"],"skip":["author_first_name","author_last_name"]}},` +
		`"select":["*"]}`
	assert.Equal(t, expected, string(data))
}

func TestPlanHashStable(t *testing.T) {
	h1 := MustPlanHash(blogTree())
	h2 := MustPlanHash(blogTree())
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	changed := blogTree()
	changed.Includes["posts"].Columns = []string{"id", "blog_id"}
	assert.NotEqual(t, h1, MustPlanHash(changed))
}

func TestRenderHashDiffersFromPlanDomain(t *testing.T) {
	tree := blogTree()
	planHash := MustPlanHash(tree)
	renderHash, err := RenderHash(tree.Snapshot())
	require.NoError(t, err)
	assert.NotEqual(t, planHash, renderHash)
}
