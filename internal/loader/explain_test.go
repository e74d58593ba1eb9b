package loader

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadplan/internal/ir"
)

var inList = regexp.MustCompile(`IN \(\?(,\?)*\)`)

// collapseIn rewrites every IN placeholder list to a single placeholder.
func collapseIn(sql string) string {
	return inList.ReplaceAllString(sql, "IN (?)")
}

func TestExplainMatchesMaterialize(t *testing.T) {
	b, s := newBridge(t)

	steps, err := b.Explain("Blog", blogPlan())
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"", "posts", "posts.comments"},
		[]string{steps[0].Path, steps[1].Path, steps[2].Path})
	assert.Equal(t, []string{"Blog", "Post", "Comment"},
		[]string{steps[0].Entity, steps[1].Entity, steps[2].Entity})

	rec := s.Record()
	_, err = b.Materialize(context.Background(), All("Blog"), blogPlan())
	rec.Stop()
	require.NoError(t, err)

	// Same statements; only the number of IN placeholders differs.
	sql := rec.SQL()
	require.Len(t, sql, 3)
	for i := range sql {
		assert.Equal(t, collapseIn(sql[i]), steps[i].SQL, "step %d", i)
	}
	assert.Contains(t, sql[1], "posts.blog_id IN (?,?)")
	assert.Contains(t, steps[1].SQL, "posts.blog_id IN (?)")
	assert.Contains(t, steps[2].SQL, "comments.post_id IN (?)")
}

func TestExplainIDsOnly(t *testing.T) {
	b, _ := newBridge(t)

	node := &ir.SelectNode{
		Entity: "Post",
		Mode:   ir.ModeWildcard,
		Includes: map[string]*ir.SelectNode{
			"blog": {Entity: "Blog", Relation: "blog", Mode: ir.ModeExplicit, Columns: []string{"id"}, Embed: ir.EmbedIDs},
			"comments": {Entity: "Comment", Relation: "comments", Mode: ir.ModeExplicit,
				Columns: []string{"id"}, Embed: ir.EmbedIDs},
		},
	}

	steps, err := b.Explain("Post", node)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "comments", steps[1].Path)
	assert.Contains(t, steps[1].SQL, "SELECT comments.id, comments.post_id FROM comments")
}

func TestExplainUnknownEntity(t *testing.T) {
	b, _ := newBridge(t)
	_, err := b.Explain("Ghost", nil)
	assert.ErrorContains(t, err, `unknown entity "Ghost"`)
}
