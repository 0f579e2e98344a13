package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
balances:
  - source: A
    target: Fund
    date: 2023-12-31
    value: 100
    commitment: 500
    unfunded: 400
  - source: A
    target: Fund
    date: "2024-01-31"
    value: 110
    balance_type: estimate
    sub_account: Class B
transactions:
  - source: A
    target: Fund
    date: 2024-01-15
    type: Capital Call
    cash_flow: 10
    timing: BOD
  - source: A
    target: Fund
    date: 2024-01-20
    type: Commitment Adjustment
    commitment_delta: 50
reference:
  Fund: [Buyout, Europe]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	ledger, err := LoadFile(writeFile(t, "ledger.yaml", sampleYAML))
	require.NoError(t, err)

	require.Len(t, ledger.Balances, 2)
	b := ledger.Balances[0]
	assert.Equal(t, models.BalanceActual, b.BalanceType, "balance type defaults to Actual")
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), b.Date)
	assert.Equal(t, 400.0, b.Unfunded)
	assert.Equal(t, models.BalanceEstimate, ledger.Balances[1].BalanceType)
	assert.Equal(t, "Class B", ledger.Balances[1].SubAccount)

	require.Len(t, ledger.Transactions, 2)
	call := ledger.Transactions[0]
	assert.Equal(t, models.TxnCapitalCall, call.Type)
	assert.Equal(t, models.TimingBOD, call.Timing)
	require.True(t, call.HasCashFlow())
	assert.Equal(t, 10.0, call.Amount())
	assert.False(t, ledger.Transactions[1].HasCashFlow())
	assert.Equal(t, 50.0, ledger.Transactions[1].CommitmentDelta)

	assert.Equal(t, []string{"Buyout", "Europe"}, ledger.Reference["Fund"])
}

func TestLoadFile_JSON(t *testing.T) {
	doc := `{"balances":[{"source":"A","target":"Fund","date":"2024-01","value":5}],"transactions":[]}`
	ledger, err := LoadFile(writeFile(t, "ledger.json", doc))
	require.NoError(t, err)
	require.Len(t, ledger.Balances, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ledger.Balances[0].Date)
	assert.NotNil(t, ledger.Reference)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "bad.yaml", "balances: [{source: A, target: B, date: someday, value: 1}]"))
	assert.Error(t, err)
}

func TestConvert_RejectsBadRows(t *testing.T) {
	one := 1.0
	date, _ := models.ParseFlexibleDate("2024-01-31")
	good := models.RawBalance{Source: "A", Target: "Fund", Date: date, Value: &one}

	tests := []struct {
		name   string
		ledger models.RawLedger
		index  string
	}{
		{"missing source", models.RawLedger{Balances: []models.RawBalance{good, {Target: "Fund", Date: date, Value: &one}}}, "balance 1"},
		{"missing value", models.RawLedger{Balances: []models.RawBalance{{Source: "A", Target: "Fund", Date: date}}}, "balance 0"},
		{"missing date", models.RawLedger{Balances: []models.RawBalance{{Source: "A", Target: "Fund", Value: &one}}}, "balance 0"},
		{"synthetic input", models.RawLedger{Balances: []models.RawBalance{{Source: "A", Target: "Fund", Date: date, Value: &one, BalanceType: "Synthetic"}}}, "balance 0"},
		{"bad timing", models.RawLedger{Transactions: []models.RawTransaction{{Source: "A", Target: "Fund", Date: date, Type: "Fee", Timing: "noon"}}}, "transaction 0"},
		{"missing type", models.RawLedger{Transactions: []models.RawTransaction{{Source: "A", Target: "Fund", Date: date}}}, "transaction 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.ledger)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRecord))
			assert.True(t, strings.Contains(err.Error(), tt.index), "expected %q in %v", tt.index, err)
		})
	}
}
