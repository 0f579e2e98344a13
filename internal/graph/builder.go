package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
)

// ErrCyclicGraph is returned by Build when FailOnCycle is set and a cycle exists.
var ErrCyclicGraph = errors.New("investment graph contains ownership cycles")

// Edge is a directed ownership relation: Source holds an interest in Target.
type Edge struct {
	Source string
	Target string
}

// Options tunes graph construction
type Options struct {
	// FailOnCycle makes Build return ErrCyclicGraph instead of dropping cyclic vehicles.
	FailOnCycle bool
}

// CycleReport describes one strongly connected group of vehicles that was removed,
// and how much ledger data went with it.
type CycleReport struct {
	Vehicles     []string `json:"vehicles"`
	Balances     int      `json:"balances"`
	Transactions int      `json:"transactions"`
	NAV          float64  `json:"nav"`
}

func (c CycleReport) String() string {
	return fmt.Sprintf("[%s] (%d balances, %d transactions, NAV %.2f)",
		strings.Join(c.Vehicles, ", "), c.Balances, c.Transactions, c.NAV)
}

// Graph is the classified, leveled, acyclic investment graph.
type Graph struct {
	PureSources map[string]struct{}
	PureTargets map[string]struct{}
	Nodes       map[string]*models.VehicleNode
	Reachable   map[string][]string
	Dropped     []CycleReport

	byID    map[int]*models.VehicleNode
	removed map[string]struct{}
	edges   []Edge
}

// EdgesFrom derives the distinct edge set of a ledger.
func EdgesFrom(balances []models.BalanceRecord, transactions []models.TransactionRecord) []Edge {
	seen := make(map[Edge]struct{})
	var edges []Edge
	add := func(e Edge) {
		if e.Source == "" || e.Target == "" {
			return
		}
		if _, ok := seen[e]; ok {
			return
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	for _, b := range balances {
		add(Edge{Source: b.Source, Target: b.Target})
	}
	for _, t := range transactions {
		add(Edge{Source: t.Source, Target: t.Target})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

// BuildFromRecords builds the graph from a ledger and sizes any dropped cycles
// by the records that touched them.
func BuildFromRecords(balances []models.BalanceRecord, transactions []models.TransactionRecord, opts Options) (*Graph, error) {
	g, err := Build(EdgesFrom(balances, transactions), opts)
	if err != nil {
		return nil, err
	}
	g.annotate(balances, transactions)
	return g, nil
}

// Build classifies entities, removes cyclic vehicles, levels the remaining
// vehicles and flattens each vehicle's reachable terminal investments.
func Build(edges []Edge, opts Options) (*Graph, error) {
	defer util.TrackTime("graph.Build", time.Now(), log.Fields{"edges": len(edges)})

	sources := make(map[string]struct{})
	targets := make(map[string]struct{})
	for _, e := range edges {
		sources[e.Source] = struct{}{}
		targets[e.Target] = struct{}{}
	}

	g := &Graph{
		PureSources: make(map[string]struct{}),
		PureTargets: make(map[string]struct{}),
		Nodes:       make(map[string]*models.VehicleNode),
		Reachable:   make(map[string][]string),
		byID:        make(map[int]*models.VehicleNode),
		removed:     make(map[string]struct{}),
	}

	var vehicleNames []string
	for s := range sources {
		if _, ok := targets[s]; ok {
			vehicleNames = append(vehicleNames, s)
		} else {
			g.PureSources[s] = struct{}{}
		}
	}
	for t := range targets {
		if _, ok := sources[t]; !ok {
			g.PureTargets[t] = struct{}{}
		}
	}
	sort.Strings(vehicleNames)
	for i, name := range vehicleNames {
		node := models.NewVehicleNode(i, name)
		g.Nodes[name] = node
		g.byID[i] = node
	}

	cycles := g.stronglyConnectedCycles(edges)
	if len(cycles) > 0 && opts.FailOnCycle {
		names := make([]string, 0, len(cycles))
		for _, c := range cycles {
			names = append(names, "["+strings.Join(c, ", ")+"]")
		}
		return nil, fmt.Errorf("%w: %s", ErrCyclicGraph, strings.Join(names, " "))
	}
	for _, c := range cycles {
		g.Dropped = append(g.Dropped, CycleReport{Vehicles: c})
		for _, name := range c {
			g.removeNode(name)
		}
	}

	for _, e := range edges {
		if g.isRemoved(e.Source) || g.isRemoved(e.Target) {
			continue
		}
		g.edges = append(g.edges, e)
	}

	g.level()
	g.closeAdjacency()
	g.flattenReachable()

	for _, report := range g.Dropped {
		log.Warnf("dropped cyclic vehicles %s", report)
	}
	return g, nil
}

func (g *Graph) removeNode(name string) {
	node, ok := g.Nodes[name]
	if !ok {
		return
	}
	delete(g.Nodes, name)
	delete(g.byID, node.ID)
	g.removed[name] = struct{}{}
}

func (g *Graph) isRemoved(name string) bool {
	_, ok := g.removed[name]
	return ok
}

// nodeEdges returns the kept edges whose both ends are vehicles.
func (g *Graph) nodeEdges() []Edge {
	var out []Edge
	for _, e := range g.edges {
		if g.IsVehicle(e.Source) && g.IsVehicle(e.Target) {
			out = append(out, e)
		}
	}
	return out
}

// level relaxes lowestLevel over vehicle-to-vehicle edges. On an acyclic graph the
// longest path has fewer than |V| edges, so |V| passes always reach a fixed point.
func (g *Graph) level() {
	edges := g.nodeEdges()
	passes := len(g.Nodes)
	for pass := 0; pass <= passes; pass++ {
		changed := false
		for _, e := range edges {
			src, dst := g.Nodes[e.Source], g.Nodes[e.Target]
			if dst.LowestLevel < src.LowestLevel+1 {
				dst.LowestLevel = src.LowestLevel + 1
				changed = true
			}
		}
		if !changed {
			return
		}
	}
	log.Errorf("vehicle leveling did not settle after %d passes", passes)
}

// closeAdjacency fills Above and Below with every ancestor and descendant vehicle.
func (g *Graph) closeAdjacency() {
	children := make(map[int][]int)
	for _, e := range g.nodeEdges() {
		src, dst := g.Nodes[e.Source], g.Nodes[e.Target]
		children[src.ID] = append(children[src.ID], dst.ID)
	}
	for _, node := range g.Nodes {
		stack := append([]int(nil), children[node.ID]...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, seen := node.Below[id]; seen {
				continue
			}
			node.Below[id] = struct{}{}
			g.byID[id].Above[node.ID] = struct{}{}
			stack = append(stack, children[id]...)
		}
	}

	// Cannot trigger after the SCC pass; kept as the documented post-condition.
	for name, node := range g.Nodes {
		if node.IsCyclic() {
			log.Errorf("vehicle %s is both above and below another vehicle, removing", name)
			g.Dropped = append(g.Dropped, CycleReport{Vehicles: []string{name}})
			g.removeNode(name)
		}
	}
}

// flattenReachable replaces vehicle targets with their own targets until only
// terminal investments remain. Each pass resolves at least one level, so |V|+1 passes suffice.
func (g *Graph) flattenReachable() {
	sets := make(map[string]map[string]struct{})
	for name := range g.Nodes {
		sets[name] = make(map[string]struct{})
	}
	for _, e := range g.edges {
		if set, ok := sets[e.Source]; ok {
			set[e.Target] = struct{}{}
		}
	}

	passes := len(g.Nodes) + 1
	settled := false
	for pass := 0; pass < passes && !settled; pass++ {
		settled = true
		for name, set := range sets {
			for t := range set {
				if !g.IsVehicle(t) {
					continue
				}
				settled = false
				delete(set, t)
				for tt := range sets[t] {
					if tt != name {
						set[tt] = struct{}{}
					}
				}
			}
		}
	}
	if !settled {
		log.Errorf("reachable investments did not settle after %d passes", passes)
	}

	for name, set := range sets {
		list := make([]string, 0, len(set))
		for t := range set {
			list = append(list, t)
		}
		sort.Strings(list)
		g.Reachable[name] = list
	}
}

// annotate sizes each dropped cycle by the ledger rows that touched it.
func (g *Graph) annotate(balances []models.BalanceRecord, transactions []models.TransactionRecord) {
	for i := range g.Dropped {
		report := &g.Dropped[i]
		in := make(map[string]struct{}, len(report.Vehicles))
		for _, v := range report.Vehicles {
			in[v] = struct{}{}
		}
		touches := func(source, target string) bool {
			_, s := in[source]
			_, t := in[target]
			return s || t
		}
		for _, b := range balances {
			if touches(b.Source, b.Target) {
				report.Balances++
				report.NAV += math.Abs(b.Value)
			}
		}
		for _, t := range transactions {
			if touches(t.Source, t.Target) {
				report.Transactions++
			}
		}
	}
}

// Edges returns the edges that survived cycle removal.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// IsVehicle reports whether name is a kept vehicle node.
func (g *Graph) IsVehicle(name string) bool {
	_, ok := g.Nodes[name]
	return ok
}

// IsRemoved reports whether name was dropped as part of a cycle.
func (g *Graph) IsRemoved(name string) bool {
	return g.isRemoved(name)
}

// Role classifies name. Removed vehicles report false.
func (g *Graph) Role(name string) (models.VehicleRole, bool) {
	if g.IsVehicle(name) {
		return models.RoleVehicle, true
	}
	if _, ok := g.PureSources[name]; ok {
		return models.RoleInvestor, true
	}
	if _, ok := g.PureTargets[name]; ok {
		return models.RoleInvestment, true
	}
	return "", false
}

// Name returns the vehicle name for a node ID.
func (g *Graph) Name(id int) string {
	if node, ok := g.byID[id]; ok {
		return node.Name
	}
	return ""
}

// Parents returns the vehicles that directly own vehicle name.
func (g *Graph) Parents(name string) []string {
	var out []string
	for _, e := range g.edges {
		if e.Target == name && g.IsVehicle(e.Source) {
			out = append(out, e.Source)
		}
	}
	sort.Strings(out)
	return out
}

// Children returns the vehicles directly held by vehicle name.
func (g *Graph) Children(name string) []string {
	var out []string
	for _, e := range g.edges {
		if e.Source == name && g.IsVehicle(e.Target) {
			out = append(out, e.Target)
		}
	}
	sort.Strings(out)
	return out
}

// DirectOwners returns investors holding at least one terminal investment directly.
func (g *Graph) DirectOwners() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range g.edges {
		_, src := g.PureSources[e.Source]
		_, dst := g.PureTargets[e.Target]
		if src && dst {
			if _, ok := seen[e.Source]; !ok {
				seen[e.Source] = struct{}{}
				out = append(out, e.Source)
			}
		}
	}
	sort.Strings(out)
	return out
}
