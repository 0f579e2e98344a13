package graph

import "sort"

// stronglyConnectedCycles runs Tarjan's algorithm over vehicle-to-vehicle edges and
// returns every component that forms a cycle: more than one vehicle, or one vehicle
// that holds itself. Names inside a component are sorted; components are ordered by
// their first name.
//
// The traversal keeps its own call stack so arbitrarily deep hierarchies cannot
// overflow the goroutine stack.
func (g *Graph) stronglyConnectedCycles(edges []Edge) [][]string {
	adj := make(map[string][]string)
	selfLoop := make(map[string]bool)
	for _, e := range edges {
		if !g.IsVehicle(e.Source) || !g.IsVehicle(e.Target) {
			continue
		}
		if e.Source == e.Target {
			selfLoop[e.Source] = true
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	index := 0
	nodeIndex := make(map[string]int)
	lowLink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var cycles [][]string

	type frame struct {
		node  string
		edge  int
		child string
	}

	visit := func(start string) {
		calls := []frame{{node: start}}
		nodeIndex[start], lowLink[start] = index, index
		index++
		stack = append(stack, start)
		onStack[start] = true

		for len(calls) > 0 {
			f := &calls[len(calls)-1]

			if f.child != "" {
				if lowLink[f.child] < lowLink[f.node] {
					lowLink[f.node] = lowLink[f.child]
				}
				f.child = ""
			}

			descended := false
			for f.edge < len(adj[f.node]) {
				next := adj[f.node][f.edge]
				f.edge++
				if _, seen := nodeIndex[next]; !seen {
					f.child = next
					nodeIndex[next], lowLink[next] = index, index
					index++
					stack = append(stack, next)
					onStack[next] = true
					calls = append(calls, frame{node: next})
					descended = true
					break
				}
				if onStack[next] && nodeIndex[next] < lowLink[f.node] {
					lowLink[f.node] = nodeIndex[next]
				}
			}
			if descended {
				continue
			}

			if lowLink[f.node] == nodeIndex[f.node] {
				var component []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					component = append(component, w)
					if w == f.node {
						break
					}
				}
				if len(component) > 1 || selfLoop[component[0]] {
					sort.Strings(component)
					cycles = append(cycles, component)
				}
			}
			calls = calls[:len(calls)-1]
		}
	}

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, seen := nodeIndex[name]; !seen {
			visit(name)
		}
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}
