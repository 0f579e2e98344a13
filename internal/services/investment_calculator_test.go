package services

import (
	"context"
	"math"
	"testing"

	"github.com/epeers/navgraph/internal/cache"
	"github.com/epeers/navgraph/internal/models"
)

func TestCalculate_ModifiedDietz(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), jan31)
	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{bal("A", "Fund", dec31, 100), bal("A", "Fund", jan31, 115)},
		[]models.TransactionRecord{txn("A", "Fund", day(2024, 1, 16), models.TxnContribution, 10)},
		nil)["A"]

	ctx, _ := NewWarningContext(context.Background())
	calc := NewInvestmentCalculator(testConfig(), models.ReferenceData{"Fund": {"Buyout"}}, nil, nil)
	out := calc.Calculate(ctx, pc, 0, cache.NewCashFlowLedger(), nil)

	if len(out.Investments) != 1 {
		t.Fatalf("expected 1 investment, got %d", len(out.Investments))
	}
	f := out.Investments[0]
	wantMD := 100 + 10*15.0/31.0
	if !approx(f.MDDenominator, wantMD) {
		t.Errorf("expected MD denominator %v, got %v", wantMD, f.MDDenominator)
	}
	if !approx(f.Gain, 5) {
		t.Errorf("expected gain 5, got %v", f.Gain)
	}
	if !approx(f.ReturnPct, 5/wantMD*100) {
		t.Errorf("expected return %v, got %v", 5/wantMD*100, f.ReturnPct)
	}
	if f.IRR == nil {
		t.Fatal("expected an IRR for a contribution followed by a higher NAV")
	}
	if *f.IRR <= 0 {
		t.Errorf("expected positive IRR, got %v", *f.IRR)
	}
	if len(f.Tags) != 1 || f.Tags[0] != "Buyout" {
		t.Errorf("expected reference tags, got %v", f.Tags)
	}
	if !approx(out.Totals.NAV, 115) || !approx(out.Totals.CashFlow, 10) {
		t.Errorf("unexpected totals %+v", out.Totals)
	}
}

func TestCalculate_BackdatesBODAndNoStart(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), jan31)
	bod := txn("A", "Fund", day(2024, 1, 16), models.TxnContribution, 31)
	bod.Timing = models.TimingBOD
	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{bal("A", "Fund", jan31, 31)},
		[]models.TransactionRecord{bod},
		nil)["A"]

	calc := NewInvestmentCalculator(testConfig(), nil, nil, nil)
	f := calc.Calculate(context.Background(), pc, 0, cache.NewCashFlowLedger(), nil).Investments[0]

	// BOD adds one day, no opening balance adds another
	want := 31 * float64(31-(16-2)) / 31
	if !approx(f.MDDenominator, want) {
		t.Errorf("expected MD denominator %v, got %v", want, f.MDDenominator)
	}
	if f.Flows[0].Date != day(2024, 1, 14) {
		t.Errorf("expected IRR flow backdated to Jan 14, got %v", f.Flows[0].Date)
	}
	if f.Flows[0].Amount != -31 {
		t.Errorf("expected investor-signed flow -31, got %v", f.Flows[0].Amount)
	}
}

func TestCalculate_SynthesizesMissingEnd(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), day(2024, 2, 29))
	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{bal("A", "Fund", dec31, 100)},
		[]models.TransactionRecord{txn("A", "Fund", day(2024, 1, 10), models.TxnDistribution, -20)},
		nil)["A"]

	ctx, _ := NewWarningContext(context.Background())
	calc := NewInvestmentCalculator(testConfig(), models.ReferenceData{"Fund": nil}, nil, nil)
	f := calc.Calculate(ctx, pc, 0, cache.NewCashFlowLedger(), nil).Investments[0]

	if !f.Synthesized || !approx(f.NAV, 80) || !approx(f.Gain, 0) {
		t.Errorf("expected synthesized NAV 80 with no gain, got %+v", f)
	}
	if warningCodes(ctx)[models.WarnSynthesizedBalance] != 1 {
		t.Errorf("expected a synthesized balance warning")
	}

	var opening []models.BalanceRecord
	for _, b := range pc.Balances(cache.Below, "2024-02") {
		if b.Date.Equal(jan31) {
			opening = append(opening, b)
		}
	}
	if len(opening) != 1 || opening[0].BalanceType != models.BalanceSynthetic || !approx(opening[0].Value, 80) {
		t.Errorf("expected synthesized balance to open February, got %+v", opening)
	}
}

func TestCalculate_DuplicateResolution(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), jan31)
	estimate := bal("A", "Fund", jan31, 90)
	estimate.BalanceType = models.BalanceEstimate
	classA := bal("A", "Split", jan31, 60)
	classA.SubAccount = "A"
	classB := bal("A", "Split", jan31, 40)
	classB.SubAccount = "B"

	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{
			bal("A", "Fund", dec31, 100), estimate, bal("A", "Fund", jan31, 105),
			bal("A", "Split", dec31, 100), classA, classB,
		},
		nil, nil)["A"]

	calc := NewInvestmentCalculator(testConfig(), nil, nil, nil)
	out := calc.Calculate(context.Background(), pc, 0, cache.NewCashFlowLedger(), nil)
	if len(out.Investments) != 2 {
		t.Fatalf("expected 2 investments, got %d", len(out.Investments))
	}
	for _, f := range out.Investments {
		switch f.Target {
		case "Fund":
			if f.NAV != 105 {
				t.Errorf("expected Actual to win over Estimate, got NAV %v", f.NAV)
			}
		case "Split":
			if f.NAV != 100 {
				t.Errorf("expected sub-accounts to be summed, got NAV %v", f.NAV)
			}
		}
	}
}

func TestCalculate_CommitmentRollForward(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), day(2024, 2, 29))
	start := bal("A", "Fund", dec31, 400)
	start.Commitment, start.Unfunded = 1000, 600
	commit := models.TransactionRecord{Source: "A", Target: "Fund", Date: day(2024, 1, 20), Type: models.TxnCommitment, CommitmentDelta: 200}

	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{start, bal("A", "Fund", jan31, 520)},
		[]models.TransactionRecord{txn("A", "Fund", day(2024, 1, 10), models.TxnCapitalCall, 100), commit},
		nil)["A"]

	calc := NewInvestmentCalculator(testConfig(), nil, nil, nil)
	f := calc.Calculate(context.Background(), pc, 0, cache.NewCashFlowLedger(), nil).Investments[0]
	if f.Commitment != 1200 || f.Unfunded != 700 {
		t.Errorf("expected commitment 1200 / unfunded 700, got %v / %v", f.Commitment, f.Unfunded)
	}
	if f.CashFlow != 100 {
		t.Errorf("commitment rows must not move cash, got %v", f.CashFlow)
	}

	for _, b := range pc.Balances(cache.Below, "2024-02") {
		if b.Date.Equal(jan31) && (b.Commitment != 1200 || b.Unfunded != 700) {
			t.Errorf("expected rolled commitment written to the February opening balance, got %+v", b)
		}
	}

	// recomputing from the same start leaves the figures unchanged
	again := calc.Calculate(context.Background(), pc, 0, cache.NewCashFlowLedger(), nil).Investments[0]
	if again.Commitment != f.Commitment || again.Unfunded != f.Unfunded || again.NAV != f.NAV {
		t.Errorf("expected idempotent recomputation, got %+v then %+v", f, again)
	}
	if got := len(pc.Corrections()); got != 1 {
		t.Errorf("expected one journaled correction, got %d", got)
	}
}

func TestCalculate_UnfundedFloorsAtZero(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), jan31)
	start := bal("A", "Fund", dec31, 0)
	start.Commitment, start.Unfunded = 100, 50
	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{start, bal("A", "Fund", jan31, 80)},
		[]models.TransactionRecord{txn("A", "Fund", day(2024, 1, 10), models.TxnCapitalCall, 80)},
		nil)["A"]

	calc := NewInvestmentCalculator(testConfig(), nil, nil, nil)
	f := calc.Calculate(context.Background(), pc, 0, cache.NewCashFlowLedger(), nil).Investments[0]
	if f.Unfunded != 0 {
		t.Errorf("expected unfunded floored at 0, got %v", f.Unfunded)
	}
}

func TestCalculate_SkipsNonFiniteInvestment(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), jan31)
	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{
			bal("A", "Bad", dec31, 100), bal("A", "Bad", jan31, math.NaN()),
			bal("A", "Good", dec31, 100), bal("A", "Good", jan31, 101),
		},
		nil, nil)["A"]

	ctx, _ := NewWarningContext(context.Background())
	calc := NewInvestmentCalculator(testConfig(), nil, nil, nil)
	out := calc.Calculate(ctx, pc, 0, cache.NewCashFlowLedger(), nil)

	if len(out.Investments) != 1 || out.Investments[0].Target != "Good" {
		t.Fatalf("expected only Good to survive, got %+v", out.Investments)
	}
	codes := warningCodes(ctx)
	if codes[models.WarnInvestmentSkipped] != 1 {
		t.Errorf("expected one skipped-investment warning, got %v", codes)
	}
	if codes[models.WarnUnknownReference] != 1 {
		t.Errorf("expected one unknown-reference warning for Good, got %v", codes)
	}
}

func TestCalculate_IRRWarningOnlyInFinalPeriod(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), day(2024, 2, 29))
	pc := cache.Partition([]string{"A"}, periods,
		// no opening balance and no cash flows, so the series never has two terms
		[]models.BalanceRecord{bal("A", "Fund", jan31, 100), bal("A", "Fund", day(2024, 2, 29), 100)},
		nil, nil)["A"]

	ctx, _ := NewWarningContext(context.Background())
	calc := NewInvestmentCalculator(testConfig(), models.ReferenceData{"Fund": nil}, nil, nil)
	ledger := cache.NewCashFlowLedger()

	if f := calc.Calculate(ctx, pc, 0, ledger, nil).Investments[0]; f.IRR != nil {
		t.Errorf("expected no IRR without cash flows, got %v", *f.IRR)
	}
	if warningCodes(ctx)[models.WarnIRRUnavailable] != 0 {
		t.Error("expected no IRR warning before the final period")
	}
	calc.Calculate(ctx, pc, 1, ledger, nil)
	if warningCodes(ctx)[models.WarnIRRUnavailable] != 1 {
		t.Error("expected one IRR warning in the final period")
	}
}

func TestCalculate_IncludeFilter(t *testing.T) {
	periods := months(t, dec31.AddDate(0, 0, 1), jan31)
	pc := cache.Partition([]string{"A"}, periods,
		[]models.BalanceRecord{bal("A", "X", jan31, 10), bal("A", "Fund", jan31, 20)},
		nil, nil)["A"]

	calc := NewInvestmentCalculator(testConfig(), nil, nil, nil)
	out := calc.Calculate(context.Background(), pc, 0, cache.NewCashFlowLedger(), func(s string) bool { return s != "X" })
	if len(out.Investments) != 1 || out.Investments[0].Target != "Fund" {
		t.Errorf("expected only Fund, got %+v", out.Investments)
	}
}
