package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loadplan/internal/compiler"
	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/plan"
)

func TestPlanText(t *testing.T) {
	out, err := execute(t, NewPlanCommand, &RootOptions{Format: "text"}, blogSpecs, "BlogSerializer")
	require.NoError(t, err)

	assert.Regexp(t, `^BlogSerializer → Blog \(plan [0-9a-f]{12}\)\n`, out)
	assert.Contains(t, out, "\nselect: *\n"+
		"posts → Post\n"+
		"  select: id, title, blog_id, author_name\n"+
		"  skip: author_first_name, author_last_name\n"+
		"  comments → Comment\n"+
		"    select: *\n")
}

func TestPlanTextIDsEmbed(t *testing.T) {
	out, err := execute(t, NewPlanCommand, &RootOptions{Format: "text"}, blogSpecs, "PostWithCommentIdsSerializer")
	require.NoError(t, err)
	assert.Contains(t, out, "select: *\ncomments → Comment [ids]\n")
	assert.NotContains(t, out, "  select:")
}

func TestPlanJSON(t *testing.T) {
	out, err := execute(t, NewPlanCommand, &RootOptions{Format: "json"}, blogSpecs, "BlogSerializer")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Serializer string         `json:"serializer"`
			Entity     string         `json:"entity"`
			IRVersion  string         `json:"ir_version"`
			Hash       string         `json:"hash"`
			Plan       map[string]any `json:"plan"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "BlogSerializer", resp.Data.Serializer)
	assert.Equal(t, "Blog", resp.Data.Entity)
	assert.Equal(t, ir.IRVersion, resp.Data.IRVersion)
	assert.Equal(t, []any{"*"}, resp.Data.Plan["select"])

	posts := resp.Data.Plan["includes"].(map[string]any)["posts"].(map[string]any)
	assert.Equal(t, []any{"id", "title", "blog_id", "author_name"}, posts["select"])

	bundle, errs := compiler.LoadDir(blogSpecs, compiler.LoadModeCollectAll)
	require.Empty(t, errs)
	registry, err := bundle.Registry()
	require.NoError(t, err)
	node, err := plan.NewBuilder(registry).Build("BlogSerializer")
	require.NoError(t, err)
	assert.Equal(t, ir.MustPlanHash(node), resp.Data.Hash)
}

func TestPlanRecursion(t *testing.T) {
	out, err := execute(t, NewPlanCommand, &RootOptions{Format: "json"}, cycleSpecs, "BlogSerializer")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, ir.IsRecursionError(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(ir.ErrCodeRecursion), resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "BlogSerializer -> PostSerializer -> BlogSerializer")
}

func TestPlanUnknownSerializer(t *testing.T) {
	out, err := execute(t, NewPlanCommand, &RootOptions{Format: "text"}, blogSpecs, "MissingSerializer")
	require.Error(t, err)
	assert.Contains(t, out, "Error [E_PLAN]")
	assert.Contains(t, out, `serializer "MissingSerializer" is not declared`)
}

func TestPlanMaxDepthFromConfig(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	opts.Config = opts.settings()
	opts.Config.Plan.MaxDepth = 1

	out, err := execute(t, NewPlanCommand, opts, blogSpecs, "BlogSerializer")
	require.Error(t, err)
	assert.Contains(t, out, "Error [RECURSION]")
	assert.Contains(t, out, "association depth exceeds 1 at Post")
	assert.Contains(t, out, "Hint: check the serializer associations for an unbounded chain")
}
