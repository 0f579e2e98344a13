package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/epeers/navgraph/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestSQLite(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, path
}

func sampleLedger() ([]models.BalanceRecord, []models.TransactionRecord, models.ReferenceData) {
	cf := -12.5
	balances := []models.BalanceRecord{
		{Source: "A", Target: "Fund", Date: day(2023, 12, 31), Value: 100, BalanceType: models.BalanceActual, Commitment: 500, Unfunded: 400},
		{Source: "A", Target: "Fund", Date: day(2024, 1, 31), Value: 110.1234567, BalanceType: models.BalanceActual, Tags: []string{"Credit"}},
		{Source: "A", Target: "Fund", Date: day(2024, 3, 31), Value: 1, BalanceType: models.BalanceEstimate},
	}
	txns := []models.TransactionRecord{
		{Source: "A", Target: "Fund", Date: day(2024, 1, 15), Type: models.TxnDistribution, CashFlow: &cf, Timing: models.TimingEOD},
		{Source: "A", Target: "Fund", Date: day(2024, 1, 20), Type: models.TxnCommitmentAdjustment, CommitmentDelta: 50},
	}
	return balances, txns, models.ReferenceData{"Fund": {"Credit", "US"}}
}

func TestSQLiteStore_SchemaCreated(t *testing.T) {
	s, path := newTestSQLite(t)
	s.Close()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())
	for _, table := range []string{"ledger_balance", "ledger_transaction", "dim_reference", "calc_run", "calc_row", "calc_correction"} {
		assert.True(t, found[table], "missing table %s", table)
	}
}

func TestSQLiteStore_LedgerRoundTrip(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()
	balances, txns, ref := sampleLedger()
	require.NoError(t, s.ImportLedger(ctx, balances, txns, ref))

	// re-importing a balance with the same key replaces it
	balances[0].Value = 101
	require.NoError(t, s.ImportLedger(ctx, balances[:1], nil, nil))

	got, err := s.LoadBalances(ctx, day(2023, 12, 31), day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 101.0, got[0].Value)
	assert.Equal(t, 500.0, got[0].Commitment)
	assert.Equal(t, models.BalanceActual, got[0].BalanceType)
	assert.Equal(t, day(2023, 12, 31), got[0].Date)
	assert.InDelta(t, 110.123457, got[1].Value, 1e-9, "values are rounded to six places")
	assert.Equal(t, []string{"Credit"}, got[1].Tags)

	gotTx, err := s.LoadTransactions(ctx, day(2024, 1, 1), day(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, gotTx, 2)
	require.NotNil(t, gotTx[0].CashFlow)
	assert.Equal(t, -12.5, *gotTx[0].CashFlow)
	assert.Equal(t, models.TimingEOD, gotTx[0].Timing)
	assert.Nil(t, gotTx[1].CashFlow)
	assert.Equal(t, 50.0, gotTx[1].CommitmentDelta)

	gotRef, err := s.LoadReference(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Credit", "US"}, gotRef["Fund"])
}

func TestSQLiteStore_SaveAndLoadRun(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	irr := 12.3456789
	run := models.RunSummary{
		ID:         "01RUN",
		Status:     models.RunCompleted,
		StartedAt:  time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 2, 1, 10, 0, 5, 0, time.UTC),
		Periods:    1,
		Vehicles:   1,
		Rows:       2,
		Warnings:   []models.Warning{{Code: models.WarnOwnershipReconciled, Message: "rescaled"}},
	}
	rows := []models.CalculationRow{
		{Period: "2024-01", Source: "B", Vehicle: "V", Target: "V", Path: "B > V", NAV: 40, Gain: 4, StartNAV: 36, OwnershipPct: 40},
		{Period: "2024-01", Source: "A", Vehicle: "V", Target: "V", Path: "A > V", NAV: 60, Gain: 6, StartNAV: 54, OwnershipPct: 60, IRR: &irr, OwnershipAdjusted: true, Tags: []string{"Fund of funds"}},
	}
	corrections := []models.BalanceRecord{
		{Source: "A", Target: "V", Date: day(2024, 1, 31), Value: 60, BalanceType: models.BalanceSynthetic},
	}
	require.NoError(t, s.SaveRun(ctx, run, rows, corrections))

	got, err := s.GetRun(ctx, "01RUN")
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	assert.Equal(t, run.StartedAt, got.StartedAt)
	assert.Equal(t, run.FinishedAt, got.FinishedAt)
	assert.Equal(t, run.Warnings, got.Warnings)

	listed, err := s.ListRows(ctx, "01RUN")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "A > V", listed[0].Path, "rows come back ordered by period and path")
	require.NotNil(t, listed[0].IRR)
	assert.InDelta(t, 12.345679, *listed[0].IRR, 1e-9)
	assert.True(t, listed[0].OwnershipAdjusted)
	assert.Equal(t, []string{"Fund of funds"}, listed[0].Tags)
	assert.Nil(t, listed[1].IRR)

	saved, err := s.Corrections(ctx, "01RUN")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, models.BalanceSynthetic, saved[0].BalanceType)

	prior, err := s.LoadPriorRows(ctx, "2024-01")
	require.NoError(t, err)
	assert.Len(t, prior, 2)
	prior, err = s.LoadPriorRows(ctx, "2023-12")
	require.NoError(t, err)
	assert.Empty(t, prior)
}

func TestSQLiteStore_PriorRowsSkipFailedRuns(t *testing.T) {
	s, _ := newTestSQLite(t)
	ctx := context.Background()

	prior, err := s.LoadPriorRows(ctx, "2024-01")
	require.NoError(t, err)
	assert.Empty(t, prior)

	failed := models.RunSummary{ID: "02FAIL", Status: models.RunFailed, StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}
	require.NoError(t, s.SaveRun(ctx, failed, nil, nil))
	prior, err = s.LoadPriorRows(ctx, "2024-01")
	require.NoError(t, err)
	assert.Empty(t, prior)
}

func TestSQLiteStore_RunNotFound(t *testing.T) {
	s, _ := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.ListRows(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
