package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/testutil"
)

func TestCatalogLookups(t *testing.T) {
	c := MustCatalog(testutil.BlogEntities()...)

	assert.Equal(t, []string{"Blog", "Post", "Comment"}, c.Names())

	post, ok := c.Entity("Post")
	require.True(t, ok)
	assert.Equal(t, "posts", post.Table)

	cols, err := c.Columns("Post")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "blog_id", "author_first_name", "author_last_name"}, cols)

	r, err := c.Relation("Blog", "posts")
	require.NoError(t, err)
	assert.Equal(t, ir.HasMany, r.Kind)
	assert.Equal(t, "blog_id", r.ForeignKey)

	target, err := c.ResolveAssociationTarget("Post", "comments")
	require.NoError(t, err)
	assert.Equal(t, "Comment", target.Name)
}

func TestCatalogUnknownAssociation(t *testing.T) {
	c := MustCatalog(testutil.BlogEntities()...)

	_, err := c.ResolveAssociationTarget("Blog", "articles")
	require.Error(t, err)
	assert.True(t, ir.IsUnknownAssociationTarget(err))

	_, err = c.Relation("Author", "posts")
	require.Error(t, err)
	assert.True(t, ir.IsUnknownAssociationTarget(err))

	_, err = c.Columns("Author")
	require.Error(t, err)
}

func TestNewCatalogChecks(t *testing.T) {
	tests := []struct {
		name     string
		entities []ir.EntitySpec
		want     string
	}{
		{
			name: "duplicate entity",
			entities: []ir.EntitySpec{
				{Name: "A", Table: "a", Columns: []ir.ColumnSpec{{Name: "id"}}},
				{Name: "A", Table: "a2", Columns: []ir.ColumnSpec{{Name: "id"}}},
			},
			want: `entity "A" declared twice`,
		},
		{
			name:     "missing key column",
			entities: []ir.EntitySpec{{Name: "A", Table: "a", Columns: []ir.ColumnSpec{{Name: "name"}}}},
			want:     `primary key "id" is not a column`,
		},
		{
			name:     "bad table",
			entities: []ir.EntitySpec{{Name: "A", Table: "a-b", Columns: []ir.ColumnSpec{{Name: "id"}}}},
			want:     `invalid table name "a-b"`,
		},
		{
			name: "unknown target",
			entities: []ir.EntitySpec{{
				Name: "A", Table: "a", Columns: []ir.ColumnSpec{{Name: "id"}},
				Relations: []ir.RelationSpec{{Name: "bs", Kind: ir.HasMany, Target: "B", ForeignKey: "a_id"}},
			}},
			want: `target entity "B" is not declared`,
		},
		{
			name: "missing foreign key",
			entities: []ir.EntitySpec{
				{
					Name: "A", Table: "a", Columns: []ir.ColumnSpec{{Name: "id"}},
					Relations: []ir.RelationSpec{{Name: "bs", Kind: ir.HasMany, Target: "B", ForeignKey: "a_id"}},
				},
				{Name: "B", Table: "b", Columns: []ir.ColumnSpec{{Name: "id"}}},
			},
			want: `foreign key "a_id" is not a column of B`,
		},
		{
			name: "query shadows column",
			entities: []ir.EntitySpec{{
				Name: "A", Table: "a", Columns: []ir.ColumnSpec{{Name: "id"}},
				Queries: []ir.QueryAttr{{Name: "id", Expr: "1"}},
			}},
			want: `query attribute "id" shadows a column`,
		},
		{
			name: "bad kind",
			entities: []ir.EntitySpec{{
				Name: "A", Table: "a", Columns: []ir.ColumnSpec{{Name: "id"}},
				Relations: []ir.RelationSpec{{Name: "x", Kind: "many_many", Target: "A", ForeignKey: "id"}},
			}},
			want: `invalid kind "many_many"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.entities...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("author_first_name"))
	assert.True(t, ValidIdentifier("_x1"))
	assert.False(t, ValidIdentifier("1x"))
	assert.False(t, ValidIdentifier("a.b"))
	assert.False(t, ValidIdentifier(""))
}
