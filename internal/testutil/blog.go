package testutil

import "github.com/roach88/loadplan/internal/ir"

// AuthorNameExpr concatenates the author name columns of posts.
const AuthorNameExpr = "posts.author_first_name || ' ' || posts.author_last_name"

// BlogEntities returns the Blog -> Post -> Comment entity graph.
func BlogEntities() []ir.EntitySpec {
	return []ir.EntitySpec{
		{
			Name:  "Blog",
			Table: "blogs",
			Columns: []ir.ColumnSpec{
				{Name: "id", Type: "int"},
				{Name: "title", Type: "string"},
			},
			Relations: []ir.RelationSpec{
				{Name: "posts", Kind: ir.HasMany, Target: "Post", ForeignKey: "blog_id"},
			},
		},
		{
			Name:  "Post",
			Table: "posts",
			Columns: []ir.ColumnSpec{
				{Name: "id", Type: "int"},
				{Name: "title", Type: "string"},
				{Name: "blog_id", Type: "int"},
				{Name: "author_first_name", Type: "string"},
				{Name: "author_last_name", Type: "string"},
			},
			Queries: []ir.QueryAttr{
				{Name: "author_name", Expr: AuthorNameExpr},
			},
			Relations: []ir.RelationSpec{
				{Name: "blog", Kind: ir.BelongsTo, Target: "Blog", ForeignKey: "blog_id"},
				{Name: "comments", Kind: ir.HasMany, Target: "Comment", ForeignKey: "post_id"},
			},
		},
		{
			Name:  "Comment",
			Table: "comments",
			Columns: []ir.ColumnSpec{
				{Name: "id", Type: "int"},
				{Name: "post_id", Type: "int"},
				{Name: "comment", Type: "string"},
			},
			Relations: []ir.RelationSpec{
				{Name: "post", Kind: ir.BelongsTo, Target: "Post", ForeignKey: "post_id"},
			},
		},
	}
}

// BlogSerializers returns serializers for the blog graph. PostSerializer
// skips the raw author columns and reads the derived author_name instead.
func BlogSerializers() []ir.SerializerSpec {
	return []ir.SerializerSpec{
		{
			Name:         "BlogSerializer",
			Entity:       "Blog",
			Attributes:   []string{"id", "title"},
			Associations: []ir.AssociationSpec{{Name: "posts"}},
		},
		{
			Name:         "PostSerializer",
			Entity:       "Post",
			Attributes:   []string{"id", "title", "author_name"},
			Associations: []ir.AssociationSpec{{Name: "comments"}},
			Loaders: ir.LoadersSpec{
				SkipSelect: []string{"author_first_name", "author_last_name"},
			},
		},
		{
			Name:       "CommentSerializer",
			Entity:     "Comment",
			Attributes: []string{"id", "comment"},
		},
		{
			Name:       "PostWithCommentIdsSerializer",
			Entity:     "Post",
			Attributes: []string{"id", "title"},
			Associations: []ir.AssociationSpec{
				{Name: "comments", Embed: ir.EmbedIDs},
			},
		},
	}
}

// BlogRows returns fixture rows keyed by table, in insert order.
// Blog 1 has two posts with one comment each; Blog 2 has no posts.
func BlogRows() map[string][]ir.IRObject {
	return map[string][]ir.IRObject{
		"blogs": {
			{"id": ir.IRInt(1), "title": ir.IRString("Blog 1")},
			{"id": ir.IRInt(2), "title": ir.IRString("Blog 2")},
		},
		"posts": {
			{"id": ir.IRInt(1), "blog_id": ir.IRInt(1), "title": ir.IRString("Post 1"),
				"author_first_name": ir.IRString("John"), "author_last_name": ir.IRString("Doe")},
			{"id": ir.IRInt(2), "blog_id": ir.IRInt(1), "title": ir.IRString("Post 2"),
				"author_first_name": ir.IRString("Maria"), "author_last_name": ir.IRString("Doe")},
		},
		"comments": {
			{"id": ir.IRInt(1), "post_id": ir.IRInt(1), "comment": ir.IRString("Comment 1")},
			{"id": ir.IRInt(2), "post_id": ir.IRInt(2), "comment": ir.IRString("Comment 2")},
		},
	}
}

// BlogTables lists fixture tables in insert order.
var BlogTables = []string{"blogs", "posts", "comments"}
