package ir

import (
	"slices"
	"strings"
)

// Wildcard is the select-all column marker.
const Wildcard = "*"

// SelectMode says whether a node selects every raw column or a fixed list.
type SelectMode string

const (
	ModeWildcard SelectMode = "wildcard"
	ModeExplicit SelectMode = "explicit"
)

// SelectNode is one level of a select tree: what to select from one entity
// and which associations to eager-load beneath it.
//
// A node is wildcard unless Mode is ModeExplicit. Skip is recorded so that
// merging two trees can re-derive explicit columns. Derived attributes are
// always selected in addition to raw columns.
type SelectNode struct {
	Entity   string                 `json:"entity,omitempty"`
	Relation string                 `json:"relation,omitempty"` // relation on the parent entity
	Mode     SelectMode             `json:"mode"`
	Columns  []string               `json:"columns,omitempty"`
	Skip     []string               `json:"skip,omitempty"`
	Derived  []string               `json:"derived,omitempty"`
	Embed    EmbedMode              `json:"embed,omitempty"`
	Includes map[string]*SelectNode `json:"includes,omitempty"`
}

// NewWildcardNode returns a node selecting all raw columns.
func NewWildcardNode() *SelectNode {
	return &SelectNode{Mode: ModeWildcard}
}

// IsWildcard reports whether the node selects every raw column.
func (n *SelectNode) IsWildcard() bool {
	return n.Mode != ModeExplicit
}

// IsIDsOnly reports whether the association is rendered as keys only.
func (n *SelectNode) IsIDsOnly() bool {
	return n.Embed == EmbedIDs
}

// Select returns the select list: "*" followed by derived attributes in
// wildcard mode, or the explicit columns followed by derived attributes.
func (n *SelectNode) Select() []string {
	out := make([]string, 0, len(n.Columns)+len(n.Derived)+1)
	if n.IsWildcard() {
		out = append(out, Wildcard)
	} else {
		out = append(out, n.Columns...)
	}
	return append(out, n.Derived...)
}

// IncludeNames returns association names in sorted order.
func (n *SelectNode) IncludeNames() []string {
	names := make([]string, 0, len(n.Includes))
	for name := range n.Includes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the node at a dotted association path ("posts.comments").
// The empty path is the node itself.
func (n *SelectNode) Lookup(path string) (*SelectNode, bool) {
	if path == "" {
		return n, true
	}
	cur := n
	for _, part := range strings.Split(path, ".") {
		next, ok := cur.Includes[part]
		if !ok || next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Snapshot returns the canonical IR form of the tree. Used for golden
// files and PlanHash.
func (n *SelectNode) Snapshot() IRObject {
	obj := IRObject{
		"select": Strings(n.Select()...),
	}
	if n.Entity != "" {
		obj["entity"] = IRString(n.Entity)
	}
	if n.Relation != "" {
		obj["relation"] = IRString(n.Relation)
	}
	if len(n.Skip) > 0 {
		obj["skip"] = Strings(n.Skip...)
	}
	if n.Embed == EmbedIDs {
		obj["embed"] = IRString(string(n.Embed))
	}
	if len(n.Includes) > 0 {
		includes := make(IRObject, len(n.Includes))
		for name, child := range n.Includes {
			includes[name] = child.Snapshot()
		}
		obj["includes"] = includes
	}
	return obj
}
