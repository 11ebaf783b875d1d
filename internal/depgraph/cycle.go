package depgraph

import (
	"slices"

	"github.com/naccdata/flywheel-gear-extensions-sub002/internal/visit"
)

// findCycles returns one path per strongly connected component that forms a
// cycle: components with more than one datatype, or a self-edge.
//
// Nodes are visited in sorted order so the reported paths are stable.
func findCycles(adj map[visit.Datatype][]visit.Datatype) [][]visit.Datatype {
	var cycles [][]visit.Datatype
	for _, scc := range tarjanSCC(adj) {
		if len(scc) > 1 || hasSelfLoop(scc[0], adj) {
			cycles = append(cycles, cyclePath(scc, adj))
		}
	}
	return cycles
}

func hasSelfLoop(node visit.Datatype, adj map[visit.Datatype][]visit.Datatype) bool {
	return slices.Contains(adj[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(adj map[visit.Datatype][]visit.Datatype) [][]visit.Datatype {
	var (
		index   = 0
		stack   []visit.Datatype
		indices = make(map[visit.Datatype]int)
		lowlink = make(map[visit.Datatype]int)
		onStack = make(map[visit.Datatype]bool)
		sccs    [][]visit.Datatype
	)

	var strongConnect func(visit.Datatype)
	strongConnect = func(v visit.Datatype) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []visit.Datatype
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]visit.Datatype, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside the component from its first member until it
// returns to the start, e.g. [A B A].
func cyclePath(scc []visit.Datatype, adj map[visit.Datatype][]visit.Datatype) []visit.Datatype {
	start := scc[0]
	if len(scc) == 1 {
		return []visit.Datatype{start, start}
	}

	members := make(map[visit.Datatype]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []visit.Datatype{start}
	visited := map[visit.Datatype]bool{}
	current := start
	for {
		visited[current] = true
		var next visit.Datatype
		for _, w := range adj[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
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
