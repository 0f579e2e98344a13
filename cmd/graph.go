package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/epeers/navgraph/internal/graph"
	"github.com/epeers/navgraph/internal/ingest"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the leveled investment graph of a ledger file",
	Long: `Build the investment graph of a ledger file and print each vehicle's level,
the investments it reaches, the clumps scheduled together and any ownership
cycles that were dropped.

Example:
  navgraph graph -f ledger.yaml`,
	RunE: runGraph,
}

var graphInputPath string

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().StringVarP(&graphInputPath, "input", "f", "", "path to ledger file (YAML or JSON) (required)")
	graphCmd.MarkFlagRequired("input")
}

func runGraph(cmd *cobra.Command, args []string) error {
	ledger, err := ingest.LoadFile(graphInputPath)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	g, err := graph.BuildFromRecords(ledger.Balances, ledger.Transactions, graph.Options{FailOnCycle: cfg.Engine.FailOnCycle})
	if err != nil {
		return err
	}

	fmt.Printf("Investors:   %s\n", strings.Join(sortedKeys(g.PureSources), ", "))
	fmt.Printf("Investments: %s\n", strings.Join(sortedKeys(g.PureTargets), ", "))

	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := g.Nodes[names[i]].LowestLevel, g.Nodes[names[j]].LowestLevel
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})

	fmt.Println()
	fmt.Println("Vehicles:")
	for _, name := range names {
		fmt.Printf("  L%-2d %-24s reaches %s\n", g.Nodes[name].LowestLevel, name, strings.Join(g.Reachable[name], ", "))
	}

	clumps, standalone := g.Clumps()
	fmt.Println()
	for _, c := range clumps {
		fmt.Printf("Clump %s (depth %d): %s\n", c.Name(), c.Depth, strings.Join(c.Vehicles, ", "))
	}
	if len(standalone) > 0 {
		fmt.Printf("Standalone: %s\n", strings.Join(standalone, ", "))
	}
	if owners := g.DirectOwners(); len(owners) > 0 {
		fmt.Printf("Direct owners: %s\n", strings.Join(owners, ", "))
	}
	for _, d := range g.Dropped {
		fmt.Printf("Dropped cycle: %s\n", d)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
