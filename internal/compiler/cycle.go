package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/loadplan/internal/ir"
	"github.com/roach88/loadplan/internal/schema"
	"github.com/roach88/loadplan/internal/serializer"
)

// CycleWarning represents a cycle in the serializer association graph.
//
// The plan builder rejects such a serializer with a RECURSION error when
// it is built; the static analysis reports every cycle up front.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["BlogSerializer", "PostSerializer", "BlogSerializer"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles performs static cycle analysis on serializer declarations.
//
// The algorithm:
//  1. Build serializer → serializer edges from object-embedded
//     associations (ids embeds never recurse)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// Associations whose entity or relation cannot be resolved are skipped;
// Validate and the registry report those.
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(serializers []ir.SerializerSpec, catalog *schema.Catalog) []CycleWarning {
	if len(serializers) == 0 {
		return []CycleWarning{}
	}

	graph := buildDependencyGraph(serializers, catalog)
	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(strings.Join(a.Path, ","), strings.Join(b.Path, ","))
	})
	return warnings
}

// dependencyGraph maps serializer → serializers it embeds.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the serializer association graph.
// Subtypes see their parents' entity and associations.
func buildDependencyGraph(serializers []ir.SerializerSpec, catalog *schema.Catalog) dependencyGraph {
	graph := make(dependencyGraph)

	byName := make(map[string]ir.SerializerSpec, len(serializers))
	for _, s := range serializers {
		byName[s.Name] = s
	}

	for _, s := range serializers {
		graph[s.Name] = []string{}

		entity, assocs := effective(s, byName)
		e, ok := catalog.Entity(entity)
		if !ok {
			continue
		}
		for _, a := range assocs {
			if a.Embed == ir.EmbedIDs {
				continue
			}
			rel, ok := e.Relation(a.RelationName())
			if !ok {
				continue
			}
			target := a.Serializer
			if target == "" {
				target = serializer.DefaultSerializerName(rel.Target)
			}
			if _, declared := byName[target]; declared {
				graph[s.Name] = append(graph[s.Name], target)
			}
		}
		slices.Sort(graph[s.Name])
	}

	return graph
}

// effective walks the inheritance chain for the entity and associations a
// serializer renders. A child association replaces the parent's.
func effective(s ir.SerializerSpec, byName map[string]ir.SerializerSpec) (string, []ir.AssociationSpec) {
	entity := s.Entity
	assocs := slices.Clone(s.Associations)
	seen := map[string]bool{s.Name: true}

	for parentName := s.Inherits; parentName != "" && !seen[parentName]; {
		parent, ok := byName[parentName]
		if !ok {
			break
		}
		seen[parentName] = true
		if entity == "" {
			entity = parent.Entity
		}
		for _, pa := range parent.Associations {
			if !slices.ContainsFunc(assocs, func(a ir.AssociationSpec) bool { return a.Name == pa.Name }) {
				assocs = append(assocs, pa)
			}
		}
		parentName = parent.Inherits
	}
	return entity, assocs
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of serializer names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes in sorted order for deterministic output
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [name, name].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-embedding serializer detected: %s → %s", name, name),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path from the smallest name
	slices.Sort(scc)
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Association cycle detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
