package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/epeers/navgraph/config"
	"github.com/epeers/navgraph/internal/cache"
	"github.com/epeers/navgraph/internal/metrics"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/returns"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidFigure is returned when a ledger value is NaN or infinite
var ErrInvalidFigure = errors.New("non-finite ledger value")

// InvestmentFigures is one owner's result for one investment in one period
type InvestmentFigures struct {
	Target        string
	StartNAV      float64
	NAV           float64
	CashFlow      float64
	Gain          float64
	MDDenominator float64
	ReturnPct     float64
	Commitment    float64
	Unfunded      float64
	IRR           *float64
	Synthesized   bool
	Flows         []returns.CashFlow // this period's IRR flows, investor-signed and backdated
	Tags          []string
}

// PeriodTotals sums an owner's investments for one period
type PeriodTotals struct {
	StartNAV      float64
	NAV           float64
	CashFlow      float64
	Gain          float64
	MDDenominator float64
	Commitment    float64
	Unfunded      float64
}

func (t *PeriodTotals) add(f InvestmentFigures) {
	t.StartNAV += f.StartNAV
	t.NAV += f.NAV
	t.CashFlow += f.CashFlow
	t.Gain += f.Gain
	t.MDDenominator += f.MDDenominator
	t.Commitment += f.Commitment
	t.Unfunded += f.Unfunded
}

// PeriodInvestments is the calculator's output for one owner and period
type PeriodInvestments struct {
	Window      models.PeriodWindow
	Index       int
	Investments []InvestmentFigures
	Totals      PeriodTotals
}

// holding is the resolved position of one source in one target over a window
type holding struct {
	source, target string

	start, end     float64
	noStart, noEnd bool
	fromPrior      bool

	endCommitment, endUnfunded float64 // as reported on the end balance
	endRecords                 []models.BalanceRecord

	netCF, weightedCF    float64
	commitment, unfunded float64 // rolled forward
	flows                []returns.CashFlow
	tags                 []string
}

func (h holding) md() float64   { return h.start + h.weightedCF }
func (h holding) gain() float64 { return h.end - h.start - h.netCF }

func (h holding) empty() bool {
	return h.start == 0 && h.end == 0 && h.netCF == 0 && h.commitment == 0 && h.unfunded == 0 && len(h.flows) == 0
}

// InvestmentCalculator computes Modified Dietz and IRR figures for each
// investment an owner holds in a period.
type InvestmentCalculator struct {
	cfg       config.EngineConfig
	offsets   returns.Offsets
	reference models.ReferenceData
	isVehicle func(string) bool
	metrics   *metrics.Collector
}

// NewInvestmentCalculator creates a calculator. isVehicle may be nil when every
// target is a terminal investment.
func NewInvestmentCalculator(cfg config.EngineConfig, reference models.ReferenceData, isVehicle func(string) bool, m *metrics.Collector) *InvestmentCalculator {
	if isVehicle == nil {
		isVehicle = func(string) bool { return false }
	}
	return &InvestmentCalculator{
		cfg:       cfg,
		offsets:   cfg.Offsets(),
		reference: reference,
		isVehicle: isVehicle,
		metrics:   m,
	}
}

// Calculate works through every investment below pc's owner for period idx.
// include filters targets; nil includes all. Synthesized end balances and
// rolled-forward commitments are injected back into pc for this and later periods.
func (c *InvestmentCalculator) Calculate(ctx context.Context, pc *cache.PeriodCache, idx int, ledger *cache.CashFlowLedger, include func(string) bool) PeriodInvestments {
	periods := pc.Periods()
	window := periods[idx]
	final := idx == len(periods)-1
	balances := pc.Balances(cache.Below, window.Label)
	txns := pc.Transactions(cache.Below, window.Label)

	out := PeriodInvestments{Window: window, Index: idx}
	entry := log.WithFields(log.Fields{"owner": pc.Owner, "period": window.Label})

	for _, target := range targetsOf(pc.Owner, balances, txns) {
		if include != nil && !include(target) {
			continue
		}
		h, err := c.resolve(window, pc.Owner, target, balances, txns, nil)
		if err != nil {
			entry.WithField("investment", target).Warnf("skipping investment: %v", err)
			AddWarning(ctx, models.Warning{
				Code:    models.WarnInvestmentSkipped,
				Message: fmt.Sprintf("%s holding in %s skipped for %s: %v", pc.Owner, target, window.Label, err),
			})
			continue
		}
		if h.empty() {
			continue
		}
		if h.noEnd {
			c.metrics.BalanceSynthesized()
			AddWarning(ctx, models.Warning{
				Code:    models.WarnSynthesizedBalance,
				Message: fmt.Sprintf("no %s balance for %s in %s, assumed %.2f", window.Label, pc.Owner, target, h.end),
			})
		}
		if h.noEnd || h.commitment != h.endCommitment || h.unfunded != h.endUnfunded {
			for _, rec := range correctedEnd(h, window, h.end) {
				pc.Inject(cache.Below, rec, idx)
			}
		}

		f := InvestmentFigures{
			Target:        target,
			StartNAV:      h.start,
			NAV:           h.end,
			CashFlow:      h.netCF,
			Gain:          h.gain(),
			MDDenominator: h.md(),
			Commitment:    h.commitment,
			Unfunded:      h.unfunded,
			Synthesized:   h.noEnd,
			Flows:         h.flows,
			Tags:          c.tags(ctx, target, h.tags),
		}
		f.ReturnPct = returns.SignedReturn(f.Gain, f.MDDenominator)
		ledger.Open(target, h.start, window.AccountStart)
		ledger.Append(target, h.flows...)
		f.IRR = c.irr(ctx, ledger, target, f.NAV, window, final)

		out.Investments = append(out.Investments, f)
		out.Totals.add(f)
	}
	return out
}

// resolve reads the opening and closing balances of source in target, its cash
// flows inside the window, and rolls its commitment forward. fallbackStart, when
// set, supplies an opening value if the ledger has none.
func (c *InvestmentCalculator) resolve(window models.PeriodWindow, source, target string, balances []models.BalanceRecord, txns []models.TransactionRecord, fallbackStart func() (float64, bool)) (holding, error) {
	h := holding{source: source, target: target}

	var startRows, endRows []models.BalanceRecord
	for _, b := range balances {
		if b.Source != source || b.Target != target {
			continue
		}
		switch d := util.DateOnly(b.Date); {
		case d.Equal(window.AccountStart):
			startRows = append(startRows, b)
		case d.Equal(window.PeriodEnd):
			endRows = append(endRows, b)
		}
	}

	start := c.pick(startRows)
	end := c.pick(endRows)
	for _, r := range append(append([]models.BalanceRecord(nil), start...), end...) {
		if !finite(r.Value, r.Commitment, r.Unfunded) {
			return h, fmt.Errorf("%w: balance %s on %s", ErrInvalidFigure, r.BalanceType, r.Date.Format("2006-01-02"))
		}
	}

	var startCommitment, startUnfunded float64
	h.noStart = len(start) == 0
	for _, r := range start {
		h.start += r.Value
		startCommitment += r.Commitment
		startUnfunded += r.Unfunded
	}
	if h.noStart && fallbackStart != nil {
		if v, ok := fallbackStart(); ok {
			h.start, h.noStart, h.fromPrior = v, false, true
		}
	}

	h.noEnd = len(end) == 0
	h.endRecords = end
	for _, r := range end {
		h.end += r.Value
		h.endCommitment += r.Commitment
		h.endUnfunded += r.Unfunded
		if len(h.tags) == 0 {
			h.tags = r.Tags
		}
	}

	var delta, drawn float64
	for _, t := range txns {
		if t.Source != source || t.Target != target || !window.Contains(t.Date) {
			continue
		}
		if c.cfg.IsCommitmentType(t.Type) {
			if !finite(t.CommitmentDelta) {
				return h, fmt.Errorf("%w: commitment delta on %s", ErrInvalidFigure, t.Date.Format("2006-01-02"))
			}
			delta += t.CommitmentDelta
			continue
		}
		if !t.HasCashFlow() {
			continue
		}
		amount := t.Amount()
		if !finite(amount) {
			return h, fmt.Errorf("%w: %s cash flow on %s", ErrInvalidFigure, t.Type, t.Date.Format("2006-01-02"))
		}
		off := c.offsets.Offset(t.Date, t.Timing, h.noStart)
		h.netCF += amount
		h.weightedCF += amount * returns.Weight(window, t.Date, off)
		h.flows = append(h.flows, returns.CashFlow{Amount: -amount, Date: returns.Backdate(t.Date, off)})
		if c.cfg.ReducesUnfunded(t.Type) {
			drawn += amount
		}
	}

	switch {
	case !h.noStart || h.fromPrior:
		h.commitment = startCommitment + delta
		h.unfunded = startUnfunded + delta - drawn
	case !h.noEnd && (h.endCommitment != 0 || h.endUnfunded != 0):
		// a first appearance reports its commitment as of period end
		h.commitment = h.endCommitment
		h.unfunded = h.endUnfunded
	default:
		h.commitment = delta
		h.unfunded = delta - drawn
	}
	h.unfunded = math.Max(0, h.unfunded)

	if h.noEnd {
		h.end = h.start + h.netCF
	}
	return h, nil
}

// pick resolves duplicate balance rows: rows of the same sub-account compete by
// balance type precedence, distinct sub-accounts are all kept. A Calculated row
// covers the whole holding and replaces every sub-account.
func (c *InvestmentCalculator) pick(rows []models.BalanceRecord) []models.BalanceRecord {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r.BalanceType == models.BalanceCalculated {
			return []models.BalanceRecord{r}
		}
	}
	best := make(map[string]int)
	var order []string
	for i, r := range rows {
		j, ok := best[r.SubAccount]
		if !ok {
			best[r.SubAccount] = i
			order = append(order, r.SubAccount)
			continue
		}
		if c.cfg.Precedence(r.BalanceType) < c.cfg.Precedence(rows[j].BalanceType) {
			best[r.SubAccount] = i
		}
	}
	out := make([]models.BalanceRecord, 0, len(order))
	for _, sub := range order {
		out = append(out, rows[best[sub]])
	}
	return out
}

// correctedEnd builds the end balances to write back for h, valued at nav in
// total and carrying the rolled commitment. Sub-accounts keep their value shares.
func correctedEnd(h holding, window models.PeriodWindow, nav float64) []models.BalanceRecord {
	if len(h.endRecords) == 0 {
		return []models.BalanceRecord{{
			Source:      h.source,
			Target:      h.target,
			Date:        window.PeriodEnd,
			Value:       nav,
			BalanceType: models.BalanceSynthetic,
			Commitment:  h.commitment,
			Unfunded:    h.unfunded,
			Tags:        h.tags,
		}}
	}
	out := make([]models.BalanceRecord, 0, len(h.endRecords))
	for _, r := range h.endRecords {
		share := 1 / float64(len(h.endRecords))
		if h.end != 0 {
			share = r.Value / h.end
		}
		if nav != h.end {
			r.Value = nav * share
		}
		r.Commitment = h.commitment * share
		r.Unfunded = h.unfunded * share
		out = append(out, r)
	}
	return out
}

// irr evaluates the inception-to-date IRR of key with nav as the closing value.
// A missing result is only surfaced as a warning in the final period.
func (c *InvestmentCalculator) irr(ctx context.Context, ledger *cache.CashFlowLedger, key string, nav float64, window models.PeriodWindow, final bool) *float64 {
	series := ledger.Series(key, nav, window.PeriodEnd)
	rate, ok := returns.XIRR(series, c.cfg.DaysPerYear)
	if !ok {
		c.metrics.IRRUnavailable()
		log.WithFields(log.Fields{"key": key, "period": window.Label}).Debugf("no IRR for series %v", series)
		if final {
			AddWarningOnce(ctx, key, models.Warning{
				Code:    models.WarnIRRUnavailable,
				Message: fmt.Sprintf("no inception-to-date IRR for %s as of %s", key, window.Label),
			})
		}
		return nil
	}
	pct := rate * 100
	return &pct
}

// tags returns reference tags for target, falling back to tags carried on its balances
func (c *InvestmentCalculator) tags(ctx context.Context, target string, carried []string) []string {
	if tags, ok := c.reference.Lookup(target); ok {
		return tags
	}
	if len(carried) > 0 {
		return carried
	}
	if !c.isVehicle(target) {
		AddWarningOnce(ctx, target, models.Warning{
			Code:    models.WarnUnknownReference,
			Message: fmt.Sprintf("no reference data for %s", target),
		})
	}
	return nil
}

// targetsOf lists the distinct targets owner holds or transacts with, sorted
func targetsOf(owner string, balances []models.BalanceRecord, txns []models.TransactionRecord) []string {
	seen := make(map[string]struct{})
	for _, b := range balances {
		if b.Source == owner {
			seen[b.Target] = struct{}{}
		}
	}
	for _, t := range txns {
		if t.Source == owner {
			seen[t.Target] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// sourcesOf lists the distinct sources holding or transacting with target, sorted
func sourcesOf(target string, balances []models.BalanceRecord, txns []models.TransactionRecord) []string {
	seen := make(map[string]struct{})
	for _, b := range balances {
		if b.Target == target {
			seen[b.Source] = struct{}{}
		}
	}
	for _, t := range txns {
		if t.Target == target {
			seen[t.Source] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
