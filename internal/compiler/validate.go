package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/selecttree"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// EntitySpec errors (E101-E109)
	ErrEntityTableEmpty   = "E101" // table is required
	ErrEntityNoColumns    = "E102" // at least one column required
	ErrInvalidIdentifier  = "E103" // name is not a safe SQL identifier
	ErrInvalidFieldType   = "E104" // invalid column type
	ErrDuplicateName      = "E105" // duplicate column/query/relation/attribute
	ErrFloatTypeForbidden = "E106" // float types not allowed
	ErrInvalidRelation    = "E107" // invalid relation kind or missing target
	ErrMissingPrimaryKey  = "E108" // primary key is not a column

	// SerializerSpec errors (E110-E119)
	ErrSerializerEntity  = "E110" // entity missing and nothing inherited
	ErrInvalidEmbed      = "E111" // embed is not "objects" or "ids"
	ErrInvalidIncludes   = "E112" // include directive has an unsupported shape
	ErrSkipSelectOverlap = "E113" // a name is both selected and skipped
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports EntitySpec and SerializerSpec types.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.EntitySpec:
		return validateEntitySpec(spec)
	case ir.EntitySpec:
		return validateEntitySpec(&spec)
	case *ir.SerializerSpec:
		return validateSerializerSpec(spec)
	case ir.SerializerSpec:
		return validateSerializerSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateEntitySpec(spec *ir.EntitySpec) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(spec.Table) == "" {
		errs = append(errs, ValidationError{
			Field:   "table",
			Message: "table is required and must be non-empty",
			Code:    ErrEntityTableEmpty,
		})
	} else if !schema.ValidIdentifier(spec.Table) {
		errs = append(errs, identifierError("table", spec.Table))
	}

	if len(spec.Columns) == 0 {
		errs = append(errs, ValidationError{
			Field:   "columns",
			Message: "at least one column is required",
			Code:    ErrEntityNoColumns,
		})
	}

	names := make(map[string]bool)
	for i, col := range spec.Columns {
		field := fmt.Sprintf("columns[%d]", i)
		if !schema.ValidIdentifier(col.Name) {
			errs = append(errs, identifierError(field+".name", col.Name))
		}
		if names[col.Name] {
			errs = append(errs, duplicateError(field+".name", "column", col.Name))
		}
		names[col.Name] = true
		errs = append(errs, validateFieldType(col.Type, field+".type", col.Name)...)
	}

	if len(spec.Columns) > 0 && !spec.HasColumn(spec.Key()) {
		errs = append(errs, ValidationError{
			Field:   "primary_key",
			Message: fmt.Sprintf("primary key %q is not a column", spec.Key()),
			Code:    ErrMissingPrimaryKey,
		})
	}

	for i, q := range spec.Queries {
		field := fmt.Sprintf("queries[%d]", i)
		if !schema.ValidIdentifier(q.Name) {
			errs = append(errs, identifierError(field+".name", q.Name))
		}
		if names[q.Name] {
			errs = append(errs, duplicateError(field+".name", "column or query attribute", q.Name))
		}
		names[q.Name] = true
	}

	relNames := make(map[string]bool)
	for i, rel := range spec.Relations {
		field := fmt.Sprintf("relations[%d]", i)
		if relNames[rel.Name] {
			errs = append(errs, duplicateError(field+".name", "relation", rel.Name))
		}
		relNames[rel.Name] = true

		if !ir.ValidRelationKinds[rel.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("invalid relation kind %q", rel.Kind),
				Code:    ErrInvalidRelation,
			})
		}
		if rel.Target == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: fmt.Sprintf("relation %q requires a target entity", rel.Name),
				Code:    ErrInvalidRelation,
			})
		}
		if rel.ForeignKey == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".foreign_key",
				Message: fmt.Sprintf("relation %q requires a foreign key", rel.Name),
				Code:    ErrInvalidRelation,
			})
		} else if !schema.ValidIdentifier(rel.ForeignKey) {
			errs = append(errs, identifierError(field+".foreign_key", rel.ForeignKey))
		}
	}

	return errs
}

func validateSerializerSpec(spec *ir.SerializerSpec) []ValidationError {
	var errs []ValidationError

	if spec.Entity == "" && spec.Inherits == "" {
		errs = append(errs, ValidationError{
			Field:   "entity",
			Message: "entity is required unless the serializer inherits one",
			Code:    ErrSerializerEntity,
		})
	}

	seen := make(map[string]bool)
	for i, attr := range spec.Attributes {
		if seen[attr] {
			errs = append(errs, duplicateError(fmt.Sprintf("attributes[%d]", i), "attribute", attr))
		}
		seen[attr] = true
	}

	assocs := make(map[string]bool)
	for i, a := range spec.Associations {
		field := fmt.Sprintf("associations[%d]", i)
		if assocs[a.Name] {
			errs = append(errs, duplicateError(field+".name", "association", a.Name))
		}
		assocs[a.Name] = true

		switch a.Embed {
		case "", ir.EmbedObjects, ir.EmbedIDs:
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".embed",
				Message: fmt.Sprintf("invalid embed %q, must be \"objects\" or \"ids\"", a.Embed),
				Code:    ErrInvalidEmbed,
			})
		}
	}

	skipped := make(map[string]bool)
	for _, name := range spec.Loaders.SkipSelect {
		skipped[name] = true
	}
	for i, name := range spec.Loaders.Select {
		if skipped[name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("loaders.select[%d]", i),
				Message: fmt.Sprintf("%q is both selected and skipped", name),
				Code:    ErrSkipSelectOverlap,
			})
		}
	}

	if len(spec.Loaders.Includes) > 0 {
		if _, err := selecttree.Normalize(spec.Loaders.Includes); err != nil {
			errs = append(errs, ValidationError{
				Field:   "loaders.includes",
				Message: err.Error(),
				Code:    ErrInvalidIncludes,
			})
		}
	}

	return errs
}

func identifierError(field, name string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not a valid SQL identifier", name),
		Code:    ErrInvalidIdentifier,
	}
}

func duplicateError(field, kind, name string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("duplicate %s name: %q", kind, name),
		Code:    ErrDuplicateName,
	}
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for column %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}
	if !isValidType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for column %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}
	return nil
}

// isValidType checks if a type string is a valid column type.
func isValidType(t string) bool {
	return t == "string" || t == "int" || t == "bool"
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "table":
		return ErrEntityTableEmpty
	case field == "columns":
		return ErrEntityNoColumns
	case field == "type":
		return ErrInvalidFieldType
	case strings.HasPrefix(field, "relations."):
		return ErrInvalidRelation
	case field == "entity":
		return ErrSerializerEntity
	case strings.HasPrefix(field, "associations.") && strings.HasSuffix(field, ".embed"):
		return ErrInvalidEmbed
	case field == "loaders.includes":
		return ErrInvalidIncludes
	default:
		return ErrCodeGeneric
	}
}
