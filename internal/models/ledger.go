package models

import (
	"errors"
	"fmt"
	"time"
)

// BalanceType distinguishes how a balance snapshot was produced
type BalanceType string

const (
	BalanceActual     BalanceType = "Actual"
	BalanceEstimate   BalanceType = "Estimate"
	BalanceCalculated BalanceType = "Calculated" // folded in from a child vehicle's reconciled figures
	BalanceSynthetic  BalanceType = "Synthetic"  // start + net cash flow, no market gain
	BalancePrior      BalanceType = "Prior"      // seeded from a previous run's calculation row
)

// TransactionType is the ledger classification of a transaction
type TransactionType string

const (
	TxnCapitalCall          TransactionType = "Capital Call"
	TxnContribution         TransactionType = "Contribution"
	TxnDistribution         TransactionType = "Distribution"
	TxnRedemption           TransactionType = "Redemption"
	TxnTransfer             TransactionType = "Transfer"
	TxnFee                  TransactionType = "Fee"
	TxnCommitment           TransactionType = "Commitment"
	TxnCommitmentAdjustment TransactionType = "Commitment Adjustment"
)

// TimingTag records whether a cash flow happened at the start or end of its day.
// An empty tag means the source did not say.
type TimingTag string

const (
	TimingNone TimingTag = ""
	TimingEOD  TimingTag = "EOD"
	TimingBOD  TimingTag = "BOD"
)

// BalanceRecord is a snapshot of one source's account value in one target on one date
type BalanceRecord struct {
	Source      string      `json:"source" yaml:"source"`
	Target      string      `json:"target" yaml:"target"`
	Date        time.Time   `json:"date" yaml:"date"`
	Value       float64     `json:"value" yaml:"value"`
	BalanceType BalanceType `json:"balance_type" yaml:"balance_type"`
	SubAccount  string      `json:"sub_account,omitempty" yaml:"sub_account,omitempty"` // fund class / share class split
	Commitment  float64     `json:"commitment" yaml:"commitment"`
	Unfunded    float64     `json:"unfunded" yaml:"unfunded"`
	Tags        []string    `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// BalanceKey identifies a balance row for deduplication
type BalanceKey struct {
	Date        time.Time
	Source      string
	Target      string
	BalanceType BalanceType
	SubAccount  string
}

// Key returns the composite dedup key of the record
func (b BalanceRecord) Key() BalanceKey {
	return BalanceKey{
		Date:        b.Date,
		Source:      b.Source,
		Target:      b.Target,
		BalanceType: b.BalanceType,
		SubAccount:  b.SubAccount,
	}
}

// TransactionRecord is a single ledger movement between a source and a target.
// CashFlow is positive when money moves from source into target.
type TransactionRecord struct {
	Source          string          `json:"source" yaml:"source"`
	Target          string          `json:"target" yaml:"target"`
	Date            time.Time       `json:"date" yaml:"date"`
	Type            TransactionType `json:"type" yaml:"type"`
	CashFlow        *float64        `json:"cash_flow,omitempty" yaml:"cash_flow,omitempty"`
	CommitmentDelta float64         `json:"commitment_delta" yaml:"commitment_delta"`
	Timing          TimingTag       `json:"timing,omitempty" yaml:"timing,omitempty"`
}

// HasCashFlow reports whether the transaction moves money
func (t TransactionRecord) HasCashFlow() bool {
	return t.CashFlow != nil
}

// Amount returns the cash flow or 0 when the transaction carries none
func (t TransactionRecord) Amount() float64 {
	if t.CashFlow == nil {
		return 0
	}
	return *t.CashFlow
}

// PeriodWindow describes one calculation period.
// AccountStart is the date of the opening balance, usually the previous period's end.
type PeriodWindow struct {
	Label        string    `json:"label"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`
	AccountStart time.Time `json:"account_start"`
}

// Contains reports whether a transaction on date falls inside the window
func (p PeriodWindow) Contains(date time.Time) bool {
	return !date.Before(p.PeriodStart) && !date.After(p.PeriodEnd)
}

// Covers reports whether a balance dated date is relevant to the window,
// either as its opening or its closing snapshot.
func (p PeriodWindow) Covers(date time.Time) bool {
	return !date.Before(p.AccountStart) && !date.After(p.PeriodEnd)
}

// Days returns the number of calendar days weighted in the window
func (p PeriodWindow) Days() int {
	return int(p.PeriodEnd.Sub(p.AccountStart).Hours() / 24)
}

var ErrInvalidPeriods = errors.New("periods must be contiguous and strictly ordered")

// ValidatePeriods checks that windows are ordered and each one starts where the previous ended
func ValidatePeriods(periods []PeriodWindow) error {
	for i, p := range periods {
		if !p.PeriodEnd.After(p.AccountStart) || p.PeriodStart.After(p.PeriodEnd) {
			return fmt.Errorf("%w: period %s has an empty window", ErrInvalidPeriods, p.Label)
		}
		if i == 0 {
			continue
		}
		prev := periods[i-1]
		if !p.AccountStart.Equal(prev.PeriodEnd) {
			return fmt.Errorf("%w: period %s does not start at %s", ErrInvalidPeriods, p.Label, prev.PeriodEnd.Format("2006-01-02"))
		}
	}
	return nil
}

// ReferenceData maps an investment name to its classification tags
type ReferenceData map[string][]string

// Lookup returns the tags for an investment and whether it was known
func (r ReferenceData) Lookup(name string) ([]string, bool) {
	if r == nil {
		return nil, false
	}
	tags, ok := r[name]
	return tags, ok
}
