package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/testutil"
)

func blogCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	c, err := schema.NewCatalog(testutil.BlogEntities()...)
	require.NoError(t, err)
	return c
}

func TestAnalyzeCyclesDAG(t *testing.T) {
	warnings := AnalyzeCycles(testutil.BlogSerializers(), blogCatalog(t))
	assert.Empty(t, warnings)
	assert.NotNil(t, warnings)
}

func TestAnalyzeCyclesEmpty(t *testing.T) {
	assert.Equal(t, []CycleWarning{}, AnalyzeCycles(nil, blogCatalog(t)))
}

func TestAnalyzeCyclesTwoNodeCycle(t *testing.T) {
	specs := []ir.SerializerSpec{
		{Name: "PostSerializer", Entity: "Post", Associations: []ir.AssociationSpec{{Name: "blog"}}},
		{Name: "BlogSerializer", Entity: "Blog", Associations: []ir.AssociationSpec{{Name: "posts"}}},
	}

	warnings := AnalyzeCycles(specs, blogCatalog(t))
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"BlogSerializer", "PostSerializer", "BlogSerializer"}, warnings[0].Path)
	assert.Equal(t, "Association cycle detected: BlogSerializer → PostSerializer → BlogSerializer", warnings[0].Message)
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestAnalyzeCyclesSelfLoop(t *testing.T) {
	// A Post serializer embedding a Post through a renamed association.
	entities := testutil.BlogEntities()
	entities[1].Relations = append(entities[1].Relations,
		ir.RelationSpec{Name: "replies", Kind: ir.HasMany, Target: "Post", ForeignKey: "blog_id"})
	catalog, err := schema.NewCatalog(entities...)
	require.NoError(t, err)

	specs := []ir.SerializerSpec{
		{Name: "ThreadSerializer", Entity: "Post", Associations: []ir.AssociationSpec{
			{Name: "replies", Serializer: "ThreadSerializer"},
		}},
	}

	warnings := AnalyzeCycles(specs, catalog)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"ThreadSerializer", "ThreadSerializer"}, warnings[0].Path)
	assert.Equal(t, "Self-embedding serializer detected: ThreadSerializer → ThreadSerializer", warnings[0].Message)
}

func TestAnalyzeCyclesIgnoresIDsEmbeds(t *testing.T) {
	specs := []ir.SerializerSpec{
		{Name: "PostSerializer", Entity: "Post", Associations: []ir.AssociationSpec{{Name: "blog", Embed: ir.EmbedIDs}}},
		{Name: "BlogSerializer", Entity: "Blog", Associations: []ir.AssociationSpec{{Name: "posts"}}},
	}
	assert.Empty(t, AnalyzeCycles(specs, blogCatalog(t)))
}

func TestAnalyzeCyclesThroughInheritance(t *testing.T) {
	specs := []ir.SerializerSpec{
		{Name: "BasePostSerializer", Entity: "Post", Associations: []ir.AssociationSpec{
			{Name: "blog", Serializer: "BlogSerializer"},
		}},
		{Name: "PostSerializer", Inherits: "BasePostSerializer"},
		{Name: "BlogSerializer", Entity: "Blog", Associations: []ir.AssociationSpec{{Name: "posts"}}},
	}

	warnings := AnalyzeCycles(specs, blogCatalog(t))
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"BlogSerializer", "PostSerializer", "BlogSerializer"}, warnings[0].Path)
}

func TestAnalyzeCyclesSkipsUnresolved(t *testing.T) {
	specs := []ir.SerializerSpec{
		{Name: "GhostSerializer", Entity: "Ghost", Associations: []ir.AssociationSpec{{Name: "posts"}}},
		{Name: "PostSerializer", Entity: "Post", Associations: []ir.AssociationSpec{{Name: "missing"}}},
	}
	assert.Empty(t, AnalyzeCycles(specs, blogCatalog(t)))
}

func TestTarjanSCCDeterministic(t *testing.T) {
	graph := dependencyGraph{
		"A": {"B"},
		"B": {"C"},
		"C": {"A"},
		"D": {},
	}
	for i := 0; i < 10; i++ {
		warnings := []CycleWarning{}
		for _, scc := range tarjanSCC(graph) {
			if len(scc) > 1 {
				warnings = append(warnings, cycleSCCToWarning(scc, graph))
			}
		}
		require.Len(t, warnings, 1)
		assert.Equal(t, []string{"A", "B", "C", "A"}, warnings[0].Path)
	}
}
