package returns

import (
	"math"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func series(amounts []float64, dates []time.Time) []CashFlow {
	flows := make([]CashFlow, len(amounts))
	for i := range amounts {
		flows[i] = CashFlow{Amount: amounts[i], Date: dates[i]}
	}
	return flows
}

func TestXIRR_ReferenceSeries(t *testing.T) {
	flows := series(
		[]float64{-600000, 200, 5000, 200000, -35000, 439799},
		[]time.Time{
			day(2023, 12, 5), day(2024, 5, 6), day(2024, 6, 7),
			day(2024, 8, 8), day(2025, 5, 5), day(2025, 6, 1),
		},
	)

	r, ok := XIRR(flows, 365)
	if !ok {
		t.Fatal("expected a rate for the reference series")
	}
	pct := math.Round(r*100*100) / 100
	if pct != 1.37 {
		t.Errorf("expected 1.37%%, got %.4f%%", r*100)
	}
}

func TestXIRR_SimpleDoubling(t *testing.T) {
	flows := series([]float64{-100, 200}, []time.Time{day(2023, 1, 1), day(2024, 1, 1)})
	r, ok := XIRR(flows, 365)
	if !ok {
		t.Fatal("expected a rate")
	}
	if math.Abs(r-1.0) > 1e-6 {
		t.Errorf("expected 100%% annual rate, got %f", r)
	}
}

func TestXIRR_NoResult(t *testing.T) {
	tests := []struct {
		name    string
		amounts []float64
	}{
		{"single flow", []float64{-100}},
		{"all positive", []float64{100, 50, 25}},
		{"all negative", []float64{-100, -50}},
		{"all zero", []float64{0, 0, 0}},
		{"two entries closing at zero", []float64{-100, 0}},
	}
	dates := []time.Time{day(2024, 1, 1), day(2024, 6, 1), day(2024, 12, 1)}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := XIRR(series(tt.amounts, dates[:len(tt.amounts)]), 365)
			if ok {
				t.Errorf("expected no result for %v", tt.amounts)
			}
		})
	}
}

func TestXIRR_ClosedFundDropsTrailingZero(t *testing.T) {
	withZero := series(
		[]float64{-100, -50, 170, 0},
		[]time.Time{day(2023, 1, 1), day(2023, 7, 1), day(2024, 1, 1), day(2024, 2, 1)},
	)
	withoutZero := withZero[:3]

	r1, ok1 := XIRR(withZero, 365)
	r2, ok2 := XIRR(withoutZero, 365)
	if !ok1 || !ok2 {
		t.Fatalf("expected both series to produce a rate, got %v %v", ok1, ok2)
	}
	if math.Abs(r1-r2) > 1e-9 {
		t.Errorf("expected trailing zero to be ignored: %f vs %f", r1, r2)
	}
}

func TestXIRR_ClosedFundSingleInvestment(t *testing.T) {
	flows := series(
		[]float64{-100, 110, 0},
		[]time.Time{day(2023, 1, 1), day(2024, 1, 1), day(2024, 2, 1)},
	)
	if r, ok := XIRR(flows, 365); ok {
		t.Errorf("expected no result once the closing zero leaves two entries, got %f", r)
	}

	// Without the closing zero the same two flows still have a rate.
	if _, ok := XIRR(flows[:2], 365); !ok {
		t.Error("expected a rate for a plain two-flow series")
	}
}

func TestXIRR_NonFinite(t *testing.T) {
	flows := series([]float64{-100, math.NaN()}, []time.Time{day(2024, 1, 1), day(2024, 2, 1)})
	if _, ok := XIRR(flows, 365); ok {
		t.Error("expected NaN input to produce no result")
	}
}

func TestXIRR_TotalLoss(t *testing.T) {
	flows := series([]float64{-100, 1}, []time.Time{day(2023, 1, 1), day(2024, 1, 1)})
	r, ok := XIRR(flows, 365)
	if !ok {
		t.Fatal("expected a rate for a near-total loss")
	}
	if math.Abs(r-(-0.99)) > 1e-6 {
		t.Errorf("expected -99%%, got %f", r)
	}
}
