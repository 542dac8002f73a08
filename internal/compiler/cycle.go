package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// BaseCycle is a set of types whose base lists inherit from each other.
//
// Cycles are errors: member lookup and retain-all both walk base lists, and a
// type graph with a cycle has no well-defined vtable layout.
type BaseCycle struct {
	Field   string   `json:"field"`
	Path    []string `json:"path"` // ["A:I", "A:J", "A:I"]
	Message string   `json:"message"`
}

// AnalyzeBases detects base-type cycles across the interop modules of d.
//
// The algorithm:
//  1. Build a type → base type graph, resolving unqualified bases against
//     the declaring module
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// Bases that do not parse or name no described type are ignored here.
func AnalyzeBases(d *Description) []BaseCycle {
	graph, fields := buildBaseGraph(d)

	var cycles []BaseCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		slices.Sort(scc)
		path := reconstructCyclePath(scc, graph)
		cycles = append(cycles, BaseCycle{
			Field:   fields[scc[0]],
			Path:    path,
			Message: fmt.Sprintf("base type cycle: %s", strings.Join(path, " -> ")),
		})
	}
	slices.SortFunc(cycles, func(a, b BaseCycle) int {
		return strings.Compare(a.Field, b.Field)
	})
	return cycles
}

// baseGraph maps "Module:Type" → its bases.
type baseGraph map[string][]string

func buildBaseGraph(d *Description) (baseGraph, map[string]string) {
	graph := make(baseGraph)
	fields := make(map[string]string)
	for i, m := range d.Modules {
		for j, t := range m.Types {
			node := m.Name + ":" + qualifiedName(t)
			fields[node] = fmt.Sprintf("modules[%d].types[%d].bases", i, j)
			if graph[node] == nil {
				graph[node] = []string{}
			}
			for _, b := range t.Bases {
				ref, err := ParseTypeRef(b)
				if err != nil {
					continue
				}
				if ref.Module == "" {
					if _, ok := findType(m, ref.Name); !ok {
						continue
					}
					ref.Module = m.Name
				}
				graph[node] = append(graph[node], ref.Module+":"+ref.Name)
			}
		}
	}
	return graph, fields
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph baseGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the output is deterministic.
func tarjanSCC(graph baseGraph) [][]string {
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
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root node: pop the stack and emit an SCC.
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

// reconstructCyclePath walks edges inside the SCC from its first node until
// it returns to the start.
func reconstructCyclePath(scc []string, graph baseGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
