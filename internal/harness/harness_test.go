package harness

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/loadplan/internal/ir"
)

func loadBlogScenario(t *testing.T) *Scenario {
	t.Helper()
	scenario, err := LoadScenario("testdata/scenarios/blog_includes.yaml")
	require.NoError(t, err)
	return scenario
}

func TestRun_BlogScenarioPasses(t *testing.T) {
	result, err := Run(context.Background(), loadBlogScenario(t), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Contains(t, result.Plans, "BlogSerializer")

	// query_count, statement_contains and render share one collection run.
	require.Len(t, result.Statements, 3)
	for _, stmt := range result.Statements {
		assert.Equal(t, "BlogSerializer", stmt.Serializer)
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadBlogScenario(t)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := MarshalSnapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_FailingAssertionsAreReported(t *testing.T) {
	scenario := loadBlogScenario(t)
	scenario.Assertions = []Assertion{
		{Type: AssertQueryCount, Serializer: "BlogSerializer", Count: 1},
		{Type: AssertPlan, Serializer: "BlogSerializer", Select: map[string][]string{"posts": {"*"}}},
		{Type: AssertPlan, Serializer: "BlogSerializer", Select: map[string][]string{"authors": {"*"}}},
		{Type: AssertStatementContains, Serializer: "BlogSerializer", Contains: []string{"posts.*"}},
		{Type: AssertVerify, Serializer: "CommentSerializer"},
		{Type: AssertVerify, Serializer: "BlogSerializer", ExpectError: "query_count"},
		{Type: AssertRender, Serializer: "CommentSerializer", Expect: []any{}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)

	assert.Contains(t, result.Errors[0], "assertions[0] query_count BlogSerializer")
	assert.Contains(t, result.Errors[0], "Expected: 1 statements")
	assert.Contains(t, result.Errors[0], "Actual: 3 statements")
	assert.Contains(t, result.Errors[0], "[1] SELECT blogs.* FROM blogs")

	assert.Contains(t, result.Errors[1], `select at "posts" = [*]`)
	assert.Contains(t, result.Errors[1], "[id title blog_id author_name]")
	assert.Contains(t, result.Errors[2], `include path "authors"`)
	assert.Contains(t, result.Errors[3], `a statement containing "posts.*"`)
	assert.Contains(t, result.Errors[4], "unnecessary select for Comment columns: post_id")
	assert.Contains(t, result.Errors[4], `skip_select: ["post_id"]`)
	assert.Contains(t, result.Errors[5], "verification failure query_count")
	assert.Contains(t, result.Errors[6], "Assertion failed: render CommentSerializer")
}

func TestRun_UnknownSerializer(t *testing.T) {
	scenario := loadBlogScenario(t)
	scenario.Assertions = []Assertion{{Type: AssertQueryCount, Serializer: "GhostSerializer"}}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "GhostSerializer")
}

func TestRun_EntityOverride(t *testing.T) {
	scenario := loadBlogScenario(t)
	scenario.Assertions = []Assertion{
		{Type: AssertQueryCount, Serializer: "PostWithCommentIdsSerializer", Entity: "Post", Count: 2},
		{Type: AssertRender, Serializer: "PostWithCommentIdsSerializer", Expect: []any{
			map[string]any{"id": 1, "title": "Post 1", "author_first_name": "John", "author_last_name": "Doe", "comment_ids": []any{1}},
			map[string]any{"id": 2, "title": "Post 2", "author_first_name": "Maria", "author_last_name": "Doe", "comment_ids": []any{2}},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Statements, 2)
}

func TestRun_RecursionScenario(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/recursion.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Plans)

	scenario.Assertions[0].ExpectError = "UNKNOWN_ASSOCIATION_TARGET"
	result, err = Run(context.Background(), scenario)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "plan error UNKNOWN_ASSOCIATION_TARGET")
	assert.Contains(t, result.Errors[0], "RECURSION")
}

func TestRun_MaxDepth(t *testing.T) {
	scenario := loadBlogScenario(t)
	scenario.Assertions = []Assertion{{Type: AssertPlan, Serializer: "BlogSerializer", ExpectError: "RECURSION"}}

	result, err := Run(context.Background(), scenario, WithMaxDepth(2))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AllowQueriesPerRecordDefault(t *testing.T) {
	scenario := loadBlogScenario(t)
	scenario.Assertions = []Assertion{
		{Type: AssertVerify, Serializer: "BlogSerializer", ExpectError: "query_count"},
		{Type: AssertVerify, Serializer: "BlogSerializer", AllowQueriesPerRecord: lo.ToPtr(0)},
	}

	result, err := Run(context.Background(), scenario, WithAllowQueriesPerRecord(1))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	scenario.Assertions = scenario.Assertions[:1]
	result, err = Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("unknown fixture table", func(t *testing.T) {
		scenario := loadBlogScenario(t)
		scenario.Fixtures = map[string][]map[string]any{"authors": {{"id": 1}}}
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `fixture table "authors" is not declared`)
	})

	t.Run("unknown fixture column", func(t *testing.T) {
		scenario := loadBlogScenario(t)
		scenario.Fixtures = map[string][]map[string]any{"blogs": {{"id": 1, "name": "x"}}}
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `Blog has no column "name"`)
	})

	t.Run("float fixture", func(t *testing.T) {
		scenario := loadBlogScenario(t)
		scenario.Fixtures = map[string][]map[string]any{"blogs": {{"id": 1.5}}}
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "floats are forbidden")
	})

	t.Run("bad specs", func(t *testing.T) {
		scenario := loadBlogScenario(t)
		scenario.Specs = t.TempDir()
		_, err := Run(context.Background(), scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load specs")
	})
}

func TestConvertToIRValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want ir.IRValue
	}{
		{"null", nil, ir.IRNull{}},
		{"string", "x", ir.IRString("x")},
		{"int", 3, ir.IRInt(3)},
		{"whole float", 4.0, ir.IRInt(4)},
		{"bool", true, ir.IRBool(true)},
		{"list", []any{1, "a"}, ir.IRArray{ir.IRInt(1), ir.IRString("a")}},
		{"map", map[string]any{"k": false}, ir.IRObject{"k": ir.IRBool(false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertToIRValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := convertToIRValue(struct{}{})
	assert.ErrorContains(t, err, "unsupported type struct {}")
}

func TestAssertionErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:       AssertQueryCount,
		Serializer: "BlogSerializer",
		Expected:   "3 statements",
		Actual:     "4 statements",
		Statements: []string{"SELECT 1"},
	}
	assert.Equal(t, "Assertion failed: query_count BlogSerializer\n"+
		"  Expected: 3 statements\n"+
		"  Actual: 4 statements\n"+
		"\nStatements:\n"+
		"  [1] SELECT 1\n", err.Error())
}
