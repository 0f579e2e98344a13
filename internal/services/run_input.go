package services

import (
	"context"
	"fmt"

	"github.com/epeers/navgraph/internal/ingest"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/repository"
	log "github.com/sirupsen/logrus"
)

// LoadRunInput reads everything a run over periods needs from src: balances
// from the first opening date on, transactions inside the windows, reference
// data, and the previous run's rows for the period before the first one.
func LoadRunInput(ctx context.Context, src repository.LedgerSource, periods []models.PeriodWindow) (RunInput, error) {
	if err := validateInput(RunInput{Periods: periods}); err != nil {
		return RunInput{}, err
	}
	first, last := periods[0], periods[len(periods)-1]

	balances, err := src.LoadBalances(ctx, first.AccountStart, last.PeriodEnd)
	if err != nil {
		return RunInput{}, fmt.Errorf("failed to load balances: %w", err)
	}
	txns, err := src.LoadTransactions(ctx, first.PeriodStart, last.PeriodEnd)
	if err != nil {
		return RunInput{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	ref, err := src.LoadReference(ctx)
	if err != nil {
		return RunInput{}, fmt.Errorf("failed to load reference data: %w", err)
	}
	prior, err := PriorRows(ctx, src, periods)
	if err != nil {
		return RunInput{}, err
	}
	log.Debugf("loaded %d balances, %d transactions, %d prior rows for %s..%s",
		len(balances), len(txns), len(prior), first.Label, last.Label)
	return RunInput{Periods: periods, Balances: balances, Transactions: txns, Reference: ref, Prior: prior}, nil
}

// PriorRows returns the latest completed run's rows for the period just before periods[0]
func PriorRows(ctx context.Context, src repository.LedgerSource, periods []models.PeriodWindow) ([]models.CalculationRow, error) {
	if src == nil || len(periods) == 0 {
		return nil, nil
	}
	rows, err := src.LoadPriorRows(ctx, periods[0].AccountStart.Format("2006-01"))
	if err != nil {
		return nil, fmt.Errorf("failed to load prior rows: %w", err)
	}
	return rows, nil
}

// InputFromLedger builds a run input from an ingested ledger
func InputFromLedger(ledger *ingest.Ledger, periods []models.PeriodWindow, prior []models.CalculationRow) RunInput {
	return RunInput{
		Periods:      periods,
		Balances:     ledger.Balances,
		Transactions: ledger.Transactions,
		Reference:    ledger.Reference,
		Prior:        prior,
	}
}
