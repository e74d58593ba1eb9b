package harness

import "github.com/roach88/loadplan/internal/ir"

// RecordedStatement is one statement issued while rendering a collection.
type RecordedStatement struct {
	Serializer string `json:"serializer"`
	SQL        string `json:"sql"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Plans holds the canonical select tree of every serializer that an
	// assertion planned, keyed by serializer name.
	Plans map[string]ir.IRObject `json:"plans"`

	// Statements are the collection statements in execution order.
	// Used for golden comparison.
	Statements []RecordedStatement `json:"statements"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Errors:     []string{},
		Plans:      make(map[string]ir.IRObject),
		Statements: []RecordedStatement{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStatements appends the statements one collection render issued.
func (r *Result) AddStatements(serializer string, sql []string) {
	for _, s := range sql {
		r.Statements = append(r.Statements, RecordedStatement{Serializer: serializer, SQL: s})
	}
}
