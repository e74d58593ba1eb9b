package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/verify"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string   // Assertion type for categorization
	Serializer string   // Serializer under test
	Expected   string   // Human-readable expected outcome
	Actual     string   // Human-readable actual outcome
	Statements []string // Statements issued, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Serializer)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Statements) > 0 {
		fmt.Fprintf(&buf, "\nStatements:\n")
		for i, sql := range e.Statements {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, sql)
		}
	}

	return buf.String()
}

// evaluate runs one assertion.
func (h *Harness) evaluate(ctx context.Context, result *Result, a Assertion) error {
	switch a.Type {
	case AssertPlan:
		return h.assertPlan(result, a)
	case AssertQueryCount:
		return h.assertQueryCount(ctx, result, a)
	case AssertVerify:
		return h.assertVerify(ctx, a)
	case AssertRender:
		return h.assertRender(ctx, result, a)
	case AssertStatementContains:
		return h.assertStatementContains(ctx, result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertPlan builds the serializer's select tree and compares the select
// list at each include path.
func (h *Harness) assertPlan(result *Result, a Assertion) error {
	node, err := h.builder.Build(a.Serializer)

	if a.ExpectError != "" {
		ce, ok := ir.AsConfigError(err)
		if !ok || string(ce.Code) != a.ExpectError {
			return &AssertionError{
				Type:       AssertPlan,
				Serializer: a.Serializer,
				Expected:   fmt.Sprintf("plan error %s", a.ExpectError),
				Actual:     fmt.Sprintf("%v", err),
			}
		}
		return nil
	}
	if err != nil {
		return err
	}
	result.Plans[a.Serializer] = node.Snapshot()

	paths := lo.Keys(a.Select)
	slices.Sort(paths)
	for _, path := range paths {
		want := a.Select[path]
		level, ok := node.Lookup(path)
		if !ok {
			return &AssertionError{
				Type:       AssertPlan,
				Serializer: a.Serializer,
				Expected:   fmt.Sprintf("include path %q", path),
				Actual:     fmt.Sprintf("not planned; includes: %v", node.IncludeNames()),
			}
		}
		if got := level.Select(); !slices.Equal(got, want) {
			return &AssertionError{
				Type:       AssertPlan,
				Serializer: a.Serializer,
				Expected:   fmt.Sprintf("select at %q = %v", path, want),
				Actual:     fmt.Sprintf("%v", got),
			}
		}
	}
	return nil
}

// assertQueryCount checks the number of statements rendering the whole
// collection issued.
func (h *Harness) assertQueryCount(ctx context.Context, result *Result, a Assertion) error {
	run := h.collection(ctx, result, a)
	if run.err != nil {
		return run.err
	}
	if len(run.statements) != a.Count {
		return &AssertionError{
			Type:       AssertQueryCount,
			Serializer: a.Serializer,
			Expected:   fmt.Sprintf("%d statements", a.Count),
			Actual:     fmt.Sprintf("%d statements", len(run.statements)),
			Statements: run.statements,
		}
	}
	return nil
}

// assertVerify runs the serializer query test. With ExpectError set the
// test must fail with that failure kind.
func (h *Harness) assertVerify(ctx context.Context, a Assertion) error {
	entity, err := h.entityFor(a)
	if err != nil {
		return err
	}
	allowed := h.allowQueriesPerRecord
	if a.AllowQueriesPerRecord != nil {
		allowed = *a.AllowQueriesPerRecord
	}
	_, err = h.tester.TestSerializerQueries(ctx, a.Serializer, entity, verify.Options{
		IgnoreColumns:         a.IgnoreColumns,
		SkipColumnsCheck:      a.SkipColumnsCheck,
		AllowQueriesPerRecord: allowed,
	})

	if a.ExpectError == "" {
		return err
	}
	ve, ok := verify.AsVerificationError(err)
	if !ok || string(ve.Kind) != a.ExpectError {
		return &AssertionError{
			Type:       AssertVerify,
			Serializer: a.Serializer,
			Expected:   fmt.Sprintf("verification failure %s", a.ExpectError),
			Actual:     fmt.Sprintf("%v", err),
		}
	}
	return nil
}

// assertRender compares the rendered collection with the expected value
// in canonical form.
func (h *Harness) assertRender(ctx context.Context, result *Result, a Assertion) error {
	run := h.collection(ctx, result, a)
	if run.err != nil {
		return run.err
	}
	expected, err := convertToIRValue(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}

	want, err := ir.MarshalCanonical(expected)
	if err != nil {
		return err
	}
	got, err := ir.MarshalCanonical(run.output)
	if err != nil {
		return err
	}
	if string(want) != string(got) {
		return &AssertionError{
			Type:       AssertRender,
			Serializer: a.Serializer,
			Expected:   string(want),
			Actual:     string(got),
		}
	}
	return nil
}

// assertStatementContains checks that every fragment appears in at least
// one collection statement.
func (h *Harness) assertStatementContains(ctx context.Context, result *Result, a Assertion) error {
	run := h.collection(ctx, result, a)
	if run.err != nil {
		return run.err
	}
	for _, fragment := range a.Contains {
		if !slices.ContainsFunc(run.statements, func(sql string) bool { return strings.Contains(sql, fragment) }) {
			return &AssertionError{
				Type:       AssertStatementContains,
				Serializer: a.Serializer,
				Expected:   fmt.Sprintf("a statement containing %q", fragment),
				Actual:     "not found",
				Statements: run.statements,
			}
		}
	}
	return nil
}
