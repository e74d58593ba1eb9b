package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/loadplan/internal/ir"
)

// CompileSerializer parses a CUE value into a SerializerSpec.
//
// The CUE value should be the serializer struct itself. Namespaced names
// are quoted labels:
//
//	serializer: "Admin.PostSerializer": {
//		inherits: "PostSerializer"
//		attributes: ["author_first_name"]
//	}
//
// An association is a struct keyed by name; its body may set relation,
// serializer and embed ("objects" or "ids").
func CompileSerializer(v cue.Value) (*ir.SerializerSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.SerializerSpec{Name: labelName(v)}

	var err error
	if spec.Entity, err = optionalString(v, "entity"); err != nil {
		return nil, err
	}
	if spec.Inherits, err = optionalString(v, "inherits"); err != nil {
		return nil, err
	}
	if spec.Entity == "" && spec.Inherits == "" {
		return nil, &CompileError{
			Field:   "entity",
			Message: "entity is required unless the serializer inherits one",
			Pos:     v.Pos(),
		}
	}

	if spec.Attributes, err = optionalStrings(v, "attributes"); err != nil {
		return nil, err
	}

	if spec.Associations, err = parseAssociations(v); err != nil {
		return nil, err
	}

	loadersVal := v.LookupPath(cue.ParsePath("loaders"))
	if loadersVal.Exists() {
		if spec.Loaders, err = parseLoaders(loadersVal); err != nil {
			return nil, err
		}
	}

	return spec, nil
}

func parseAssociations(v cue.Value) ([]ir.AssociationSpec, error) {
	var assocs []ir.AssociationSpec

	assocsVal := v.LookupPath(cue.ParsePath("associations"))
	if !assocsVal.Exists() {
		return assocs, nil
	}

	iter, err := assocsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		body := iter.Value()

		a := ir.AssociationSpec{Name: name}
		if a.Relation, err = optionalString(body, "relation"); err != nil {
			return nil, err
		}
		if a.Serializer, err = optionalString(body, "serializer"); err != nil {
			return nil, err
		}
		embed, err := optionalString(body, "embed")
		if err != nil {
			return nil, err
		}
		switch ir.EmbedMode(embed) {
		case "", ir.EmbedObjects, ir.EmbedIDs:
			a.Embed = ir.EmbedMode(embed)
		default:
			return nil, &CompileError{
				Field:   fmt.Sprintf("associations.%s.embed", name),
				Message: fmt.Sprintf("invalid embed %q, must be \"objects\" or \"ids\"", embed),
				Pos:     body.Pos(),
			}
		}
		assocs = append(assocs, a)
	}
	return assocs, nil
}

func parseLoaders(v cue.Value) (ir.LoadersSpec, error) {
	var loaders ir.LoadersSpec
	var err error

	if loaders.Select, err = optionalStrings(v, "select"); err != nil {
		return loaders, err
	}
	if loaders.SkipSelect, err = optionalStrings(v, "skip_select"); err != nil {
		return loaders, err
	}

	includesVal := v.LookupPath(cue.ParsePath("includes"))
	if includesVal.Exists() {
		directive, err := decodeDirective(includesVal)
		if err != nil {
			return loaders, err
		}
		loaders.Includes = []any{directive}
	}
	return loaders, nil
}

// decodeDirective converts an include directive to the Go shapes the
// normalizer accepts. Other scalars are passed through so the normalizer
// reports them as UNSUPPORTED_SPEC_TYPE at declaration.
func decodeDirective(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := []any{}
		for iter.Next() {
			elem, err := decodeDirective(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out := map[string]any{}
		for iter.Next() {
			child, err := decodeDirective(iter.Value())
			if err != nil {
				return nil, err
			}
			out[iter.Label()] = child
		}
		return out, nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return b, nil

	default:
		return nil, &CompileError{
			Field:   "loaders.includes",
			Message: fmt.Sprintf("unsupported include value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}
