package graph

import "sort"

// Clump is a connected group of vehicles more than one level deep.
// Vehicles are grouped by LowestLevel; Depth is the deepest level present.
type Clump struct {
	Vehicles []string
	Levels   map[int][]string
	Depth    int
}

// Clumps splits the vehicles into weakly connected components. Components that span
// more than one level are returned as clumps; single-level vehicles are returned
// as standalone names. Both results are sorted for stable scheduling.
func (g *Graph) Clumps() ([]Clump, []string) {
	neighbours := make(map[string][]string)
	for _, e := range g.nodeEdges() {
		neighbours[e.Source] = append(neighbours[e.Source], e.Target)
		neighbours[e.Target] = append(neighbours[e.Target], e.Source)
	}

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool)
	var clumps []Clump
	var standalone []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		var component []string
		queue := []string{name}
		seen[name] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, n := range neighbours[cur] {
				if !seen[n] {
					seen[n] = true
					queue = append(queue, n)
				}
			}
		}
		sort.Strings(component)

		c := Clump{Vehicles: component, Levels: make(map[int][]string)}
		for _, v := range component {
			lvl := g.Nodes[v].LowestLevel
			c.Levels[lvl] = append(c.Levels[lvl], v)
			if lvl > c.Depth {
				c.Depth = lvl
			}
		}
		if c.Depth == 0 {
			standalone = append(standalone, component...)
			continue
		}
		clumps = append(clumps, c)
	}
	return clumps, standalone
}

// Name identifies a clump by its shallowest vehicles.
func (c Clump) Name() string {
	top := c.Levels[c.shallowest()]
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

func (c Clump) shallowest() int {
	min := c.Depth
	for lvl := range c.Levels {
		if lvl < min {
			min = lvl
		}
	}
	return min
}
