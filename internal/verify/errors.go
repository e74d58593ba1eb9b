package verify

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
)

// FailureKind classifies a verification failure.
type FailureKind string

const (
	FailureNoRecords         FailureKind = "no_records"
	FailureQueryCount        FailureKind = "query_count"
	FailureCollectionQueries FailureKind = "collection_query_count"
	FailureUnusedColumns     FailureKind = "unused_columns"
	FailureUntested          FailureKind = "untested"
)

// VerificationError lists concrete mismatches found by the Tester.
type VerificationError struct {
	Kind       FailureKind
	Serializer string
	Entity     string
	Message    string
	// Queries holds the unexpected statements for query count failures.
	Queries []string
	// Columns holds unused columns, or untested serializer names.
	Columns []string
	// Hints are remediation steps, printed after the message.
	Hints []string
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, h := range e.Hints {
		b.WriteString("\n\n")
		b.WriteString(h)
	}
	if len(e.Queries) > 0 {
		b.WriteString("\n\nQueries:\n")
		b.WriteString(strings.Join(e.Queries, "\n"))
	}
	return b.String()
}

// AsVerificationError extracts a VerificationError from err's chain.
func AsVerificationError(err error) (*VerificationError, bool) {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsVerificationError reports whether err is a VerificationError.
func IsVerificationError(err error) bool {
	_, ok := AsVerificationError(err)
	return ok
}

// withHints attaches e.Hints as error hints so the CLI can surface them
// separately from the message.
func withHints(e *VerificationError) error {
	var err error = e
	for _, h := range e.Hints {
		err = errors.WithHint(err, h)
	}
	return err
}

// unusedColumnsError carries the three remediations: skip the columns in
// the serializer, ignore them in this check, or skip the check.
func unusedColumnsError(serializer, entity string, unused, ignored []string) error {
	return withHints(&VerificationError{
		Kind:       FailureUnusedColumns,
		Serializer: serializer,
		Entity:     entity,
		Message: fmt.Sprintf("unnecessary select for %s columns: %s",
			entity, strings.Join(unused, ", ")),
		Columns: unused,
		Hints: []string{
			fmt.Sprintf("add to %s loaders:\n  skip_select: %s", serializer, quoteList(unused)),
			fmt.Sprintf("or ignore these columns:\n  TestSerializerQueries(ctx, %q, %q, Options{IgnoreColumns: %s})",
				serializer, entity, goList(slices.Concat(ignored, unused))),
			fmt.Sprintf("or skip the columns check:\n  TestSerializerQueries(ctx, %q, %q, Options{SkipColumnsCheck: true})",
				serializer, entity),
		},
	})
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func goList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}
