package queryir

import (
	"fmt"
	"regexp"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationResult reports problems found in a query.
//
// Errors make a query unsafe to compile (bad identifiers, missing aliases).
// Warnings flag legal but wasteful shapes, such as wildcard selects and
// IN lists with no values.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// OK reports whether the query has no errors.
func (r ValidationResult) OK() bool {
	return len(r.Errors) == 0
}

// Validate checks a query. It is a pure function.
func Validate(query Query) ValidationResult {
	v := &validator{}
	v.validateQuery(query)
	return ValidationResult{Errors: v.errors, Warnings: v.warnings}
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.errorf("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.errorf("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.ident("table", sel.From)
	if len(sel.Columns) == 0 {
		v.errorf("select from %s has no columns", sel.From)
	}
	for _, col := range sel.Columns {
		if col.Table != "" {
			v.ident("table", col.Table)
		}
		switch {
		case col.Expr != "":
			if col.Alias == "" {
				v.errorf("expression %q needs an alias", col.Expr)
			}
			v.ident("alias", col.Alias)
		case col.IsWildcard():
			v.warnf("wildcard select on %s", sel.From)
		default:
			v.ident("column", col.Name)
		}
	}
	for _, col := range sel.OrderBy {
		v.ident("order column", col)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.ident("column", pred.Field)
	case *Equals:
		v.ident("column", pred.Field)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.errorf("unknown predicate type: %T", p)
	}
}

func (v *validator) validateIn(in In) {
	v.ident("column", in.Field)
	if len(in.Values) == 0 {
		v.warnf("empty IN list on %s matches nothing", in.Field)
	}
}

func (v *validator) ident(kind, name string) {
	if !identPattern.MatchString(name) {
		v.errorf("invalid %s identifier %q", kind, name)
	}
}
