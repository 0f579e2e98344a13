package returns

import (
	"math"
	"sort"
	"time"
)

const (
	newtonGuess      = 0.1
	newtonIterations = 100
	bisectIterations = 300
	rateTolerance    = 1e-9
	minRate          = -0.999999
	maxRate          = 1e6
)

// CashFlow is one dated amount in an IRR series, signed from the investor's side:
// money paid in is negative, money received (and the closing NAV) is positive.
type CashFlow struct {
	Amount float64
	Date   time.Time
}

// XIRR returns the annualized internal rate of return of the series as a fraction.
// The second result is false whenever no rate can be given: fewer than two usable flows,
// no sign change, or a solver that does not converge. It never panics on data.
func XIRR(flows []CashFlow, daysPerYear float64) (float64, bool) {
	flows = trimClosedFund(flows)
	if len(flows) < 2 {
		return 0, false
	}

	var hasPos, hasNeg bool
	nonZero := 0
	for _, f := range flows {
		if math.IsNaN(f.Amount) || math.IsInf(f.Amount, 0) {
			return 0, false
		}
		switch {
		case f.Amount > 0:
			hasPos = true
			nonZero++
		case f.Amount < 0:
			hasNeg = true
			nonZero++
		}
	}
	if !hasPos || !hasNeg || nonZero < 2 {
		return 0, false
	}

	if daysPerYear <= 0 {
		daysPerYear = 365
	}
	years := yearFractions(flows, daysPerYear)

	if r, ok := newton(flows, years); ok {
		return r, true
	}
	return bisect(flows, years)
}

// trimClosedFund drops a trailing zero NAV when the fund was emptied by its last real flow.
// If only two entries remain the series is a single investment with nothing to measure.
func trimClosedFund(flows []CashFlow) []CashFlow {
	n := len(flows)
	if n <= 2 || flows[n-1].Amount != 0 || flows[n-2].Amount == 0 {
		return flows
	}
	flows = flows[:n-1]
	if len(flows) == 2 {
		return nil
	}
	return flows
}

func yearFractions(flows []CashFlow, daysPerYear float64) []float64 {
	first := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(first) {
			first = f.Date
		}
	}
	years := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(first).Hours() / 24 / daysPerYear
	}
	return years
}

func npv(flows []CashFlow, years []float64, r float64) float64 {
	var v float64
	for i, f := range flows {
		v += f.Amount * math.Pow(1+r, -years[i])
	}
	return v
}

func dnpv(flows []CashFlow, years []float64, r float64) float64 {
	var v float64
	for i, f := range flows {
		v -= years[i] * f.Amount * math.Pow(1+r, -years[i]-1)
	}
	return v
}

func scale(flows []CashFlow) float64 {
	var s float64
	for _, f := range flows {
		s += math.Abs(f.Amount)
	}
	return s
}

func newton(flows []CashFlow, years []float64) (float64, bool) {
	r := newtonGuess
	for i := 0; i < newtonIterations; i++ {
		d := dnpv(flows, years, r)
		if d == 0 || math.IsNaN(d) {
			return 0, false
		}
		next := r - npv(flows, years, r)/d
		if next <= -1 {
			next = (r - 1) / 2
		}
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-r) < rateTolerance {
			if math.Abs(npv(flows, years, next)) > 1e-6*scale(flows) {
				return 0, false
			}
			return next, true
		}
		r = next
	}
	return 0, false
}

func bisect(flows []CashFlow, years []float64) (float64, bool) {
	lo, hi := minRate, 1.0
	fLo := npv(flows, years, lo)
	fHi := npv(flows, years, hi)
	for sameSign(fLo, fHi) {
		if hi >= maxRate {
			return 0, false
		}
		hi *= 2
		fHi = npv(flows, years, hi)
	}
	for i := 0; i < bisectIterations && hi-lo > rateTolerance; i++ {
		mid := (lo + hi) / 2
		fMid := npv(flows, years, mid)
		if sameSign(fLo, fMid) {
			lo, fLo = mid, fMid
		} else {
			hi = mid
		}
	}
	r := (lo + hi) / 2
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// SortFlows orders a series by date, keeping same-day flows in insertion order.
func SortFlows(flows []CashFlow) {
	sort.SliceStable(flows, func(i, j int) bool {
		return flows[i].Date.Before(flows[j].Date)
	})
}
