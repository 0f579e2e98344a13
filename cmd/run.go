package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/epeers/navgraph/internal/ingest"
	"github.com/epeers/navgraph/internal/metrics"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/repository"
	"github.com/epeers/navgraph/internal/services"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a calculation over a ledger file",
	Long: `Import a ledger file (YAML or JSON) into the SQLite store and calculate
every monthly period between --from and --to.

The ledger is upserted, so re-running a later range picks up the previous
run's rows for any vehicle that has no start balance.

Example:
  navgraph run -f ledger.yaml --from 2024-01 --to 2024-06`,
	RunE: runRun,
}

var (
	runInputPath string
	runFrom      string
	runTo        string
	runDBPath    string
	runCurrency  string
	runShowRows  bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runInputPath, "input", "f", "", "path to ledger file (YAML or JSON) (required)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "first period, YYYY-MM (required)")
	runCmd.Flags().StringVar(&runTo, "to", "", "last period, YYYY-MM (required)")
	runCmd.Flags().StringVar(&runDBPath, "db", "", "SQLite database path (default SQLITE_PATH)")
	runCmd.Flags().StringVar(&runCurrency, "currency", money.USD, "currency used to display NAV totals")
	runCmd.Flags().BoolVar(&runShowRows, "rows", false, "print every calculation row of the final period")
	runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagRequired("from")
	runCmd.MarkFlagRequired("to")
}

func runRun(cmd *cobra.Command, args []string) error {
	periods, err := parsePeriods(runFrom, runTo)
	if err != nil {
		return err
	}
	ledger, err := ingest.LoadFile(runInputPath)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}

	dbPath := runDBPath
	if dbPath == "" {
		dbPath = cfg.SQLitePath
	}
	store, err := repository.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.ImportLedger(ctx, ledger.Balances, ledger.Transactions, ledger.Reference); err != nil {
		return fmt.Errorf("import ledger: %w", err)
	}
	prior, err := services.PriorRows(ctx, store, periods)
	if err != nil {
		return err
	}

	fmt.Printf("Running %s..%s over %s\n", periods[0].Label, periods[len(periods)-1].Label, runInputPath)
	fmt.Printf("  Balances: %d  Transactions: %d  Prior rows: %d\n", len(ledger.Balances), len(ledger.Transactions), len(prior))

	orch := services.NewOrchestrator(cfg.Engine, store, metrics.New())
	result, err := orch.Run(ctx, services.InputFromLedger(ledger, periods, prior))
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	printResult(result, periods[len(periods)-1].Label)
	return nil
}

func parsePeriods(from, to string) ([]models.PeriodWindow, error) {
	f, err := models.ParseFlexibleDate(from)
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	t, err := models.ParseFlexibleDate(to)
	if err != nil {
		return nil, fmt.Errorf("--to: %w", err)
	}
	return util.MonthlyPeriods(f.Time, t.Time)
}

func printResult(result *services.RunResult, last string) {
	s := result.Summary
	fmt.Println()
	fmt.Printf("Run %s %s in %s\n", s.ID, s.Status, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Printf("  Periods: %d  Vehicles: %d  Rows: %d\n", s.Periods, s.Vehicles, s.Rows)
	for _, d := range result.Graph.Dropped {
		fmt.Printf("  Dropped cycle: %s\n", d)
	}
	for _, w := range s.Warnings {
		log.Warnf("%s: %s", w.Code, w.Message)
	}

	// Investor NAV through every path in the final period
	totals := make(map[string]float64)
	for _, r := range result.Rows {
		if r.Period != last || r.Path == "" {
			continue
		}
		if role, ok := result.Graph.Role(r.Target); ok && role != models.RoleInvestment {
			continue
		}
		if role, ok := result.Graph.Role(r.Source); ok && role == models.RoleInvestor {
			totals[r.Source] += r.NAV
		}
	}
	investors := make([]string, 0, len(totals))
	for name := range totals {
		investors = append(investors, name)
	}
	sort.Strings(investors)

	fmt.Println()
	fmt.Printf("Look-through NAV at %s\n", last)
	for _, name := range investors {
		fmt.Printf("  %-24s %s\n", name, formatAmount(totals[name], runCurrency))
	}

	if !runShowRows {
		return
	}
	fmt.Println()
	for _, r := range result.Rows {
		if r.Period != last {
			continue
		}
		label := r.Path
		if label == "" {
			label = models.JoinPath(r.Source, r.Target)
		}
		fmt.Printf("  %-48s NAV %s  gain %s  return %.4f%%  own %.4f%%\n",
			label, formatAmount(r.NAV, runCurrency), formatAmount(r.Gain, runCurrency), r.ReturnPct, r.OwnershipPct)
	}
}
