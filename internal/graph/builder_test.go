package graph

import (
	"testing"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edges(pairs ...string) []Edge {
	var out []Edge
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Edge{Source: pairs[i], Target: pairs[i+1]})
	}
	return out
}

func sampleEdges() []Edge {
	return edges(
		"A", "X",
		"C", "X",
		"C", "Z",
		"B", "Y",
		"B", "Z",
		"X", "Y",
		"X", "FundA",
		"X", "FundB",
		"Y", "FundC",
		"Y", "FundD",
		"Z", "FundE",
		"Z", "FundF",
	)
}

func keys(m map[string]struct{}) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestBuild_ClassifiesRoles(t *testing.T) {
	g, err := Build(sampleEdges(), Options{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"X", "Y", "Z"}, nodeNames(g))
	assert.ElementsMatch(t, []string{"A", "B", "C"}, keys(g.PureSources))
	assert.ElementsMatch(t, []string{"FundA", "FundB", "FundC", "FundD", "FundE", "FundF"}, keys(g.PureTargets))

	role, ok := g.Role("X")
	assert.True(t, ok)
	assert.Equal(t, models.RoleVehicle, role)
	role, _ = g.Role("A")
	assert.Equal(t, models.RoleInvestor, role)
	role, _ = g.Role("FundE")
	assert.Equal(t, models.RoleInvestment, role)
}

func TestBuild_Levels(t *testing.T) {
	g, err := Build(sampleEdges(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, g.Nodes["X"].LowestLevel)
	assert.Equal(t, g.Nodes["X"].LowestLevel+1, g.Nodes["Y"].LowestLevel)
	assert.Equal(t, 0, g.Nodes["Z"].LowestLevel)

	x, y := g.Nodes["X"], g.Nodes["Y"]
	assert.Contains(t, x.Below, y.ID)
	assert.Contains(t, y.Above, x.ID)
	assert.Empty(t, g.Nodes["Z"].Above)
}

func TestBuild_ReachableIsTransitive(t *testing.T) {
	g, err := Build(sampleEdges(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"FundA", "FundB", "FundC", "FundD"}, g.Reachable["X"])
	assert.Equal(t, []string{"FundC", "FundD"}, g.Reachable["Y"])
	assert.Equal(t, []string{"FundE", "FundF"}, g.Reachable["Z"])
}

func TestBuild_DeepChainIsNotTruncated(t *testing.T) {
	// 30 stacked vehicles would have been cut off by a fixed pass cap.
	var pairs []string
	pairs = append(pairs, "Investor", "V00")
	names := make([]string, 30)
	for i := range names {
		names[i] = "V" + string(rune('0'+i/10)) + string(rune('0'+i%10))
	}
	for i := 0; i+1 < len(names); i++ {
		pairs = append(pairs, names[i], names[i+1])
	}
	pairs = append(pairs, names[len(names)-1], "Fund")

	g, err := Build(edges(pairs...), Options{})
	require.NoError(t, err)

	assert.Equal(t, 29, g.Nodes[names[29]].LowestLevel)
	assert.Equal(t, []string{"Fund"}, g.Reachable[names[0]])
}

func TestBuild_DropsCycles(t *testing.T) {
	e := append(sampleEdges(), edges(
		"C", "P",
		"P", "Q",
		"Q", "R",
		"R", "P",
		"R", "FundG",
	)...)

	g, err := Build(e, Options{})
	require.NoError(t, err)

	for _, name := range []string{"P", "Q", "R"} {
		assert.False(t, g.IsVehicle(name), "%s should be removed", name)
		assert.True(t, g.IsRemoved(name))
	}
	require.Len(t, g.Dropped, 1)
	assert.Equal(t, []string{"P", "Q", "R"}, g.Dropped[0].Vehicles)

	for _, node := range g.Nodes {
		assert.False(t, node.IsCyclic(), "%s still cyclic", node.Name)
	}
	for _, edge := range g.Edges() {
		assert.NotEqual(t, "P", edge.Source)
		assert.NotEqual(t, "P", edge.Target)
	}
	assert.ElementsMatch(t, []string{"X", "Y", "Z"}, nodeNames(g))
}

func TestBuild_SelfLoopIsACycle(t *testing.T) {
	g, err := Build(edges("A", "S", "S", "S", "S", "Fund"), Options{})
	require.NoError(t, err)
	assert.False(t, g.IsVehicle("S"))
	require.Len(t, g.Dropped, 1)
}

func TestBuild_FailOnCycle(t *testing.T) {
	_, err := Build(edges("A", "P", "P", "Q", "Q", "P", "Q", "Fund"), Options{FailOnCycle: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicGraph)
}

func TestBuildFromRecords_SizesDroppedData(t *testing.T) {
	d := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	cf := 10.0
	balances := []models.BalanceRecord{
		{Source: "A", Target: "P", Date: d, Value: 100},
		{Source: "P", Target: "Q", Date: d, Value: 60},
		{Source: "Q", Target: "P", Date: d, Value: -5},
		{Source: "Q", Target: "Fund", Date: d, Value: 40},
		{Source: "A", Target: "Fund2", Date: d, Value: 7},
	}
	txns := []models.TransactionRecord{
		{Source: "A", Target: "P", Date: d, CashFlow: &cf},
	}

	g, err := BuildFromRecords(balances, txns, Options{})
	require.NoError(t, err)
	require.Len(t, g.Dropped, 1)

	report := g.Dropped[0]
	assert.Equal(t, 4, report.Balances)
	assert.Equal(t, 1, report.Transactions)
	assert.InDelta(t, 205.0, report.NAV, 1e-9)
}

func TestClumps(t *testing.T) {
	g, err := Build(sampleEdges(), Options{})
	require.NoError(t, err)

	clumps, standalone := g.Clumps()
	require.Len(t, clumps, 1)
	assert.Equal(t, []string{"X", "Y"}, clumps[0].Vehicles)
	assert.Equal(t, 1, clumps[0].Depth)
	assert.Equal(t, []string{"X"}, clumps[0].Levels[0])
	assert.Equal(t, []string{"Y"}, clumps[0].Levels[1])
	assert.Equal(t, "X", clumps[0].Name())
	assert.Equal(t, []string{"Z"}, standalone)

	assert.Equal(t, []string{"X"}, g.Parents("Y"))
	assert.Equal(t, []string{"Y"}, g.Children("X"))
}

func TestDirectOwners(t *testing.T) {
	g, err := Build(append(sampleEdges(), edges("A", "FundA", "B", "Z")...), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, g.DirectOwners())
}

func nodeNames(g *Graph) []string {
	var out []string
	for name := range g.Nodes {
		out = append(out, name)
	}
	return out
}
