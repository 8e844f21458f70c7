package eval

import (
	"slices"
	"strings"

	"github.com/roach88/dbgen/internal/ir"
)

// checkAcyclic rejects template sets whose derived graph has a cycle,
// including a table deriving itself.
//
// The algorithm:
//  1. Use Tarjan's algorithm to find strongly connected components
//  2. Any SCC with size > 1, or a single node with a self-loop, is a cycle
//  3. Report the cycle whose lowest-indexed table comes first in template
//     order, with a reconstructed path
func checkAcyclic(tables []*Table) error {
	sccs := tarjanSCC(tables)
	// Tarjan completes components in reverse topological order
	slices.SortFunc(sccs, func(a, b []int) int {
		return slices.Min(a) - slices.Min(b)
	})
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfLoop(tables, scc[0]) {
			path := reconstructCyclePath(tables, scc)
			names := make([]string, len(path))
			for i, idx := range path {
				names[i] = tables[idx].Name
			}
			first := tables[path[0]]
			return ir.Errorf(ir.ErrCodeCycle, first.Pos, "derived tables form a cycle: %s", strings.Join(names, " -> "))
		}
	}
	return nil
}

func hasSelfLoop(tables []*Table, node int) bool {
	for _, d := range tables[node].Derived {
		if d.Child == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components of the derived graph.
// Nodes are visited in template order, so results are deterministic.
func tarjanSCC(tables []*Table) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(tables))
		lowlink = make([]int, len(tables))
		onStack = make([]bool, len(tables))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, d := range tables[v].Derived {
			w := d.Child
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it
		if lowlink[v] == indices[v] {
			var scc []int
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

	for node := range tables {
		if indices[node] < 0 {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath follows derived edges inside an SCC from its
// lowest-indexed member until the walk returns to the start.
func reconstructCyclePath(tables []*Table, scc []int) []int {
	inSCC := make(map[int]bool, len(scc))
	start := scc[0]
	for _, n := range scc {
		inSCC[n] = true
		start = min(start, n)
	}

	path := []int{start}
	visited := map[int]bool{start: true}
	current := start
	for {
		next := -1
		for _, d := range tables[current].Derived {
			if inSCC[d.Child] && (d.Child == start || !visited[d.Child]) {
				next = d.Child
				break
			}
		}
		if next < 0 {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
