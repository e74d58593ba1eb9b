package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/loadplan/internal/ir"
)

// CompileEntity parses a CUE value into an EntitySpec.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Post: { table: "posts", columns: { id: int } }`)
//	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Post")))
//
// Columns, query attributes and relations keep their declaration order.
func CompileEntity(v cue.Value) (*ir.EntitySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.EntitySpec{Name: labelName(v)}

	table, err := optionalString(v, "table")
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, &CompileError{
			Field:   "table",
			Message: "table is required",
			Pos:     v.Pos(),
		}
	}
	spec.Table = table

	spec.PrimaryKey, err = optionalString(v, "primary_key")
	if err != nil {
		return nil, err
	}

	spec.Columns, err = parseColumns(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Columns) == 0 {
		return nil, &CompileError{
			Field:   "columns",
			Message: "at least one column is required",
			Pos:     v.Pos(),
		}
	}

	spec.Queries, err = parseQueries(v)
	if err != nil {
		return nil, err
	}

	spec.Relations, err = parseRelations(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

func parseColumns(v cue.Value) ([]ir.ColumnSpec, error) {
	var columns []ir.ColumnSpec

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return columns, nil
	}

	iter, err := colsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		colType, err := extractTypeName(iter.Value())
		if err != nil {
			return nil, err
		}
		columns = append(columns, ir.ColumnSpec{Name: iter.Label(), Type: colType})
	}
	return columns, nil
}

// parseQueries reads query attributes: name to SQL expression.
func parseQueries(v cue.Value) ([]ir.QueryAttr, error) {
	var queries []ir.QueryAttr

	queriesVal := v.LookupPath(cue.ParsePath("queries"))
	if !queriesVal.Exists() {
		return queries, nil
	}

	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		expr, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("queries.%s", iter.Label()),
				Message: "query attribute must be a SQL expression string",
				Pos:     iter.Value().Pos(),
			}
		}
		queries = append(queries, ir.QueryAttr{Name: iter.Label(), Expr: expr})
	}
	return queries, nil
}

func parseRelations(v cue.Value) ([]ir.RelationSpec, error) {
	var relations []ir.RelationSpec

	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if !relsVal.Exists() {
		return relations, nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		relVal := iter.Value()

		kind, err := optionalString(relVal, "kind")
		if err != nil {
			return nil, err
		}
		if !ir.ValidRelationKinds[ir.RelationKind(kind)] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("relations.%s.kind", name),
				Message: fmt.Sprintf("invalid relation kind %q, must be \"has_many\", \"has_one\", or \"belongs_to\"", kind),
				Pos:     relVal.Pos(),
			}
		}

		target, err := optionalString(relVal, "target")
		if err != nil {
			return nil, err
		}
		if target == "" {
			return nil, &CompileError{
				Field:   fmt.Sprintf("relations.%s.target", name),
				Message: "relation target is required",
				Pos:     relVal.Pos(),
			}
		}

		fk, err := optionalString(relVal, "foreign_key")
		if err != nil {
			return nil, err
		}

		relations = append(relations, ir.RelationSpec{
			Name:       name,
			Kind:       ir.RelationKind(kind),
			Target:     target,
			ForeignKey: fk,
		})
	}
	return relations, nil
}

// extractTypeName converts CUE type to a column type string.
// Floats are forbidden: IR values are integers, strings and booleans.
func extractTypeName(v cue.Value) (string, error) {
	// A column may also be declared as a type name string: id: "int".
	if s, err := v.String(); err == nil {
		return s, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// labelName returns the last path selector of v, unquoted.
func labelName(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	last := labels[len(labels)-1]
	if last.LabelType() == cue.StringLabel {
		return last.Unquoted()
	}
	return last.String()
}

// optionalString returns the string at field, or "" when absent.
func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a string", field),
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// optionalStrings returns the string list at field, or nil when absent.
func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("%s must be a list of strings", field),
			Pos:     fv.Pos(),
		}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("%s must be a list of strings", field),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}
	return out, nil
}
