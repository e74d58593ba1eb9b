package selecttree

import (
	"slices"

	"github.com/samber/lo"

	"github.com/roach88/loadplan/internal/ir"
)

// Merge returns the union of two select nodes.
//
//   - skip-lists are unioned; any skip-list forces explicit mode and its
//     names are dropped from the column list
//   - otherwise wildcard wins over explicit
//   - columns and derived names keep left order, then right additions
//   - includes merge recursively
//   - an objects embed wins over an ids embed
//
// A nil side yields a clone of the other side.
func Merge(a, b *ir.SelectNode) *ir.SelectNode {
	if a == nil {
		return Clone(b)
	}
	if b == nil {
		return Clone(a)
	}

	out := &ir.SelectNode{
		Entity:   firstNonEmpty(a.Entity, b.Entity),
		Relation: firstNonEmpty(a.Relation, b.Relation),
		Derived:  lo.Union(a.Derived, b.Derived),
		Embed:    mergeEmbed(a.Embed, b.Embed),
	}

	skip := lo.Union(a.Skip, b.Skip)
	slices.Sort(skip)
	switch {
	case len(skip) > 0:
		out.Mode = ir.ModeExplicit
		out.Skip = skip
		out.Columns = lo.Without(lo.Union(a.Columns, b.Columns), skip...)
	case a.IsWildcard() || b.IsWildcard():
		out.Mode = ir.ModeWildcard
	default:
		out.Mode = ir.ModeExplicit
		out.Columns = lo.Union(a.Columns, b.Columns)
	}

	if includes := MergeTrees(a.Includes, b.Includes); len(includes) > 0 {
		out.Includes = includes
	}
	return nilIfEmpty(out)
}

// MergeTrees merges two association maps key by key.
func MergeTrees(a, b map[string]*ir.SelectNode) map[string]*ir.SelectNode {
	out := make(map[string]*ir.SelectNode, len(a)+len(b))
	for name, node := range a {
		out[name] = Clone(node)
	}
	for name, node := range b {
		if existing, ok := out[name]; ok {
			out[name] = Merge(existing, node)
			continue
		}
		out[name] = Clone(node)
	}
	return out
}

// Clone returns a deep copy of n.
func Clone(n *ir.SelectNode) *ir.SelectNode {
	if n == nil {
		return nil
	}
	out := &ir.SelectNode{
		Entity:   n.Entity,
		Relation: n.Relation,
		Mode:     n.Mode,
		Columns:  slices.Clone(n.Columns),
		Skip:     slices.Clone(n.Skip),
		Derived:  slices.Clone(n.Derived),
		Embed:    n.Embed,
	}
	if len(n.Includes) > 0 {
		out.Includes = make(map[string]*ir.SelectNode, len(n.Includes))
		for name, child := range n.Includes {
			out.Includes[name] = Clone(child)
		}
	}
	return out
}

// Equal reports whether two trees select the same names and include the
// same associations. Column, derived and skip names compare as sets.
func Equal(a, b *ir.SelectNode) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Entity != b.Entity || a.Relation != b.Relation ||
		a.IsWildcard() != b.IsWildcard() || a.IsIDsOnly() != b.IsIDsOnly() {
		return false
	}
	if !sameSet(a.Skip, b.Skip) || !sameSet(a.Derived, b.Derived) {
		return false
	}
	if !a.IsWildcard() && !sameSet(a.Columns, b.Columns) {
		return false
	}
	if len(a.Includes) != len(b.Includes) {
		return false
	}
	for name, child := range a.Includes {
		other, ok := b.Includes[name]
		if !ok || !Equal(child, other) {
			return false
		}
	}
	return true
}

// Canonical returns the RFC 8785 encoding of the tree snapshot.
func Canonical(n *ir.SelectNode) ([]byte, error) {
	return ir.MarshalCanonical(n.Snapshot())
}

func sameSet(a, b []string) bool {
	a, b = lo.Uniq(a), lo.Uniq(b)
	return len(a) == len(b) && lo.Every(a, b)
}

func mergeEmbed(a, b ir.EmbedMode) ir.EmbedMode {
	if a == ir.EmbedIDs && b == ir.EmbedIDs {
		return ir.EmbedIDs
	}
	if a == ir.EmbedObjects || b == ir.EmbedObjects {
		return ir.EmbedObjects
	}
	return ""
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// nilIfEmpty normalizes empty slices to nil so merged trees compare equal
// to freshly normalized ones.
func nilIfEmpty(n *ir.SelectNode) *ir.SelectNode {
	if len(n.Columns) == 0 {
		n.Columns = nil
	}
	if len(n.Derived) == 0 {
		n.Derived = nil
	}
	if len(n.Skip) == 0 {
		n.Skip = nil
	}
	return n
}
