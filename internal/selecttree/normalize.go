package selecttree

import (
	"github.com/roach88/loadplan/internal/ir"
)

// Normalize converts an include directive into a map of association name to
// select node. Unsupported shapes fail with an UNSUPPORTED_SPEC_TYPE
// ConfigError.
func Normalize(spec any) (map[string]*ir.SelectNode, error) {
	switch v := spec.(type) {
	case string:
		if v == "" {
			return nil, ir.NewUnsupportedSpecType(v)
		}
		return map[string]*ir.SelectNode{v: ir.NewWildcardNode()}, nil

	case []string:
		out := map[string]*ir.SelectNode{}
		for _, name := range v {
			tree, err := Normalize(name)
			if err != nil {
				return nil, err
			}
			out = MergeTrees(out, tree)
		}
		return out, nil

	case []any:
		out := map[string]*ir.SelectNode{}
		for _, elem := range v {
			tree, err := Normalize(elem)
			if err != nil {
				return nil, err
			}
			out = MergeTrees(out, tree)
		}
		return out, nil

	case map[string]string:
		out := make(map[string]*ir.SelectNode, len(v))
		for name, child := range v {
			node, err := normalizeEntry(name, child)
			if err != nil {
				return nil, err
			}
			out[name] = node
		}
		return out, nil

	case map[string][]string:
		out := make(map[string]*ir.SelectNode, len(v))
		for name, child := range v {
			node, err := normalizeEntry(name, child)
			if err != nil {
				return nil, err
			}
			out[name] = node
		}
		return out, nil

	case map[string]any:
		out := make(map[string]*ir.SelectNode, len(v))
		for name, child := range v {
			node, err := normalizeEntry(name, child)
			if err != nil {
				return nil, err
			}
			out[name] = node
		}
		return out, nil

	default:
		return nil, ir.NewUnsupportedSpecType(spec)
	}
}

// normalizeEntry builds the wildcard node for one mapping entry.
func normalizeEntry(name string, child any) (*ir.SelectNode, error) {
	if name == "" {
		return nil, ir.NewUnsupportedSpecType(name)
	}
	children, err := Normalize(child)
	if err != nil {
		return nil, err
	}
	node := ir.NewWildcardNode()
	if len(children) > 0 {
		node.Includes = children
	}
	return node, nil
}
