package repository

import (
	"context"
	"errors"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/shopspring/decimal"
)

var ErrRunNotFound = errors.New("run not found")

// LedgerSource supplies the inputs of a run
type LedgerSource interface {
	LoadBalances(ctx context.Context, from, to time.Time) ([]models.BalanceRecord, error)
	LoadTransactions(ctx context.Context, from, to time.Time) ([]models.TransactionRecord, error)
	LoadReference(ctx context.Context) (models.ReferenceData, error)
	// LoadPriorRows returns the rows of the latest completed run for a period label
	LoadPriorRows(ctx context.Context, period string) ([]models.CalculationRow, error)
}

// ResultStore persists runs. SaveRun writes the header, rows and balance
// corrections of one run atomically.
type ResultStore interface {
	SaveRun(ctx context.Context, run models.RunSummary, rows []models.CalculationRow, corrections []models.BalanceRecord) error
	GetRun(ctx context.Context, id string) (*models.RunSummary, error)
	ListRows(ctx context.Context, id string) ([]models.CalculationRow, error)
}

// LedgerWriter imports ledger records. The SQL stores upsert on the record key.
type LedgerWriter interface {
	ImportLedger(ctx context.Context, balances []models.BalanceRecord, transactions []models.TransactionRecord, reference models.ReferenceData) error
}

// Store is a complete backend
type Store interface {
	LedgerSource
	LedgerWriter
	ResultStore
	Close()
}

// moneyPlaces is the scale money and percentage columns are stored with
const moneyPlaces = 6

// toDecimal rounds a float to the stored scale
func toDecimal(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(moneyPlaces)
}

func fromDecimal(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toNullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(toDecimal(*v))
}

func fromNullDecimal(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	f := fromDecimal(d.Decimal)
	return &f
}
