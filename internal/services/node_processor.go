package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/epeers/navgraph/config"
	"github.com/epeers/navgraph/internal/cache"
	"github.com/epeers/navgraph/internal/metrics"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/returns"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// RunEnv bundles what every worker of a run shares
type RunEnv struct {
	Config     config.EngineConfig
	Calculator *InvestmentCalculator
	Flag       *CancelFlag
	Metrics    *metrics.Collector
	Report     func(models.Progress)
	// Slots is the run's worker budget. Jobs hold one slot each; work nested
	// in a job only fans out onto free slots. Nil runs nested work inline.
	Slots *semaphore.Weighted
}

func (e *RunEnv) progress(p models.Progress) {
	if e.Report != nil {
		e.Report(p)
	}
}

// NodeState is the lifecycle of a NodeProcessor
type NodeState string

const (
	StatePending          NodeState = "Pending"
	StatePeriodInProgress NodeState = "PeriodInProgress"
	StateCompleted        NodeState = "Completed"
	StateFailed           NodeState = "Failed"
)

// OwnerShare is one owner's reconciled position in a vehicle for a period
type OwnerShare struct {
	Owner         string
	Exited        bool
	OwnershipPct  float64
	MDShare       float64 // fraction of the vehicle's gain allocated to this owner
	NAV           float64
	CashFlow      float64
	Gain          float64
	MDDenominator float64
	Commitment    float64
	Unfunded      float64
	IRR           *float64
}

// VehicleResult is everything a vehicle produced for one period
type VehicleResult struct {
	Vehicle  string
	Window   models.PeriodWindow
	Index    int
	Holdings PeriodInvestments
	Owners   []OwnerShare
	Adjusted bool
	Rows     []models.CalculationRow
}

// Owner returns the share held by name
func (r *VehicleResult) Owner(name string) (OwnerShare, bool) {
	for _, o := range r.Owners {
		if o.Owner == name {
			return o, true
		}
	}
	return OwnerShare{}, false
}

// NodeProcessor runs one vehicle through every period in order: it computes the
// vehicle's own holdings, allocates gain across its owners, reconciles ownership
// and cascades each owner's share down to every investment.
type NodeProcessor struct {
	env     *RunEnv
	vehicle string
	cache   *cache.PeriodCache

	holdings *cache.CashFlowLedger
	owners   *cache.CashFlowLedger

	mu    sync.Mutex
	state NodeState
}

func NewNodeProcessor(env *RunEnv, pc *cache.PeriodCache) *NodeProcessor {
	return &NodeProcessor{
		env:      env,
		vehicle:  pc.Owner,
		cache:    pc,
		holdings: cache.NewCashFlowLedger(),
		owners:   cache.NewCashFlowLedger(),
		state:    StatePending,
	}
}

func (p *NodeProcessor) State() NodeState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *NodeProcessor) setState(s NodeState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run processes every period in order. It stops at the first period boundary
// after the cancel flag is raised or ctx ends, and then returns no results.
func (p *NodeProcessor) Run(ctx context.Context) ([]*VehicleResult, error) {
	defer util.TrackTime("NodeProcessor.Run", time.Now(), log.Fields{"vehicle": p.vehicle, "periods": len(p.cache.Periods())})

	periods := p.cache.Periods()
	var results []*VehicleResult
	for idx := range periods {
		if err := checkpoint(ctx, p.env.Flag); err != nil {
			p.setState(StateFailed)
			return nil, err
		}
		p.setState(StatePeriodInProgress)
		if res := p.ProcessPeriod(ctx, idx); res != nil {
			results = append(results, res)
		}
		p.env.Metrics.PeriodProcessed()
		p.env.progress(models.Progress{VehicleID: p.vehicle, Periods: idx + 1, Total: len(periods), Status: models.StatusWorking})
	}
	p.setState(StateCompleted)
	return results, nil
}

type ownerPosition struct {
	h       holding
	exited  bool
	mdShare float64
	own     float64 // percent
}

// ProcessPeriod computes one period. It returns nil when the vehicle held
// nothing and moved no cash in the period.
func (p *NodeProcessor) ProcessPeriod(ctx context.Context, idx int) *VehicleResult {
	cfg := p.env.Config
	calc := p.env.Calculator
	periods := p.cache.Periods()
	window := periods[idx]
	final := idx == len(periods)-1
	entry := log.WithFields(log.Fields{"vehicle": p.vehicle, "period": window.Label})

	inv := calc.Calculate(ctx, p.cache, idx, p.holdings, nil)
	if returns.NearlyZero(inv.Totals.NAV, cfg.ZeroTolerance) && returns.NearlyZero(inv.Totals.CashFlow, cfg.ZeroTolerance) {
		entry.Debug("no NAV and no cash flow, skipping period")
		return nil
	}

	res := &VehicleResult{Vehicle: p.vehicle, Window: window, Index: idx, Holdings: inv}
	for _, f := range inv.Investments {
		row := models.CalculationRow{
			Period:        window.Label,
			Source:        p.vehicle,
			Vehicle:       p.vehicle,
			Target:        f.Target,
			Path:          models.JoinPath(p.vehicle, f.Target),
			CashFlow:      f.CashFlow,
			NAV:           f.NAV,
			Gain:          f.Gain,
			ReturnPct:     f.ReturnPct,
			MDDenominator: f.MDDenominator,
			OwnershipPct:  100,
			Commitment:    f.Commitment,
			Unfunded:      f.Unfunded,
			IRR:           f.IRR,
			Tags:          f.Tags,
		}
		row.ImplyStart()
		res.Rows = append(res.Rows, row)
	}

	positions, names := p.resolveOwners(ctx, window, idx)
	active := p.allocate(positions, names)
	res.Adjusted = p.reconcile(active, inv.Totals.NAV)
	if res.Adjusted {
		p.env.Metrics.OwnershipAdjusted()
		entry.Infof("owner percentages rescaled to 100 across %d owners", len(active))
		AddWarning(ctx, models.Warning{
			Code:    models.WarnOwnershipReconciled,
			Message: fmt.Sprintf("ownership of %s rescaled to 100%% for %s", p.vehicle, window.Label),
		})
	}

	vehicleTags := calc.tags(ctx, p.vehicle, nil)
	for _, name := range names {
		pos := positions[name]
		ownerKey := models.JoinPath(name, p.vehicle)
		p.owners.Open(ownerKey, pos.h.start, window.AccountStart)
		p.owners.Append(ownerKey, pos.h.flows...)

		if pos.exited {
			if !returns.NearlyZero(pos.h.start, cfg.ZeroTolerance) {
				AddWarning(ctx, models.Warning{
					Code:    models.WarnOwnerExited,
					Message: fmt.Sprintf("%s exited %s in %s", name, p.vehicle, window.Label),
				})
			}
			res.Owners = append(res.Owners, OwnerShare{Owner: name, Exited: true})
			res.Rows = append(res.Rows, models.CalculationRow{
				Period:  window.Label,
				Source:  name,
				Vehicle: p.vehicle,
				Target:  p.vehicle,
				Path:    ownerKey,
				Tags:    vehicleTags,
			})
			continue
		}

		frac := pos.own / 100
		share := OwnerShare{
			Owner:         name,
			OwnershipPct:  pos.own,
			MDShare:       pos.mdShare,
			NAV:           frac * inv.Totals.NAV,
			CashFlow:      pos.h.netCF,
			Gain:          inv.Totals.Gain * pos.mdShare,
			MDDenominator: pos.h.md(),
			Commitment:    pos.h.commitment,
			Unfunded:      pos.h.unfunded,
		}
		share.IRR = calc.irr(ctx, p.owners, ownerKey, share.NAV, window, final)
		res.Owners = append(res.Owners, share)

		row := models.CalculationRow{
			Period:            window.Label,
			Source:            name,
			Vehicle:           p.vehicle,
			Target:            p.vehicle,
			Path:              ownerKey,
			CashFlow:          share.CashFlow,
			NAV:               share.NAV,
			Gain:              share.Gain,
			ReturnPct:         returns.SignedReturn(share.Gain, share.MDDenominator),
			MDDenominator:     share.MDDenominator,
			OwnershipPct:      share.OwnershipPct,
			Commitment:        share.Commitment,
			Unfunded:          share.Unfunded,
			IRR:               share.IRR,
			OwnershipAdjusted: res.Adjusted,
			Tags:              vehicleTags,
		}
		row.ImplyStart()
		res.Rows = append(res.Rows, row)
		res.Rows = append(res.Rows, p.cascade(ctx, name, frac, pos.mdShare, inv, res.Adjusted, final)...)

		p.persistOwner(pos, window, idx, share.NAV)
	}
	return res
}

// resolveOwners reads each owner's position in the vehicle. Owners without an
// opening balance fall back to the previous run's closing NAV for them.
func (p *NodeProcessor) resolveOwners(ctx context.Context, window models.PeriodWindow, idx int) (map[string]*ownerPosition, []string) {
	tol := p.env.Config.ZeroTolerance
	above := p.cache.Balances(cache.Above, window.Label)
	aboveTx := p.cache.Transactions(cache.Above, window.Label)
	prevLabel := window.AccountStart.Format("2006-01")

	positions := make(map[string]*ownerPosition)
	var names []string
	for _, name := range sourcesOf(p.vehicle, above, aboveTx) {
		owner := name
		fallback := func() (float64, bool) { return p.priorNAV(prevLabel, owner) }
		h, err := p.env.Calculator.resolve(window, owner, p.vehicle, above, aboveTx, fallback)
		if err != nil {
			log.WithFields(log.Fields{"vehicle": p.vehicle, "period": window.Label, "owner": owner}).Warnf("skipping owner: %v", err)
			AddWarning(ctx, models.Warning{
				Code:    models.WarnInvestmentSkipped,
				Message: fmt.Sprintf("%s holding in %s skipped for %s: %v", owner, p.vehicle, window.Label, err),
			})
			continue
		}
		if h.empty() {
			continue
		}
		exited := returns.NearlyZero(h.start+h.netCF, tol) || h.noEnd || returns.NearlyZero(h.end, tol)
		positions[owner] = &ownerPosition{h: h, exited: exited}
		names = append(names, owner)
	}
	return positions, names
}

// allocate sets each active owner's share of the vehicle gain from its Modified
// Dietz denominator, falling back to closing NAV and then to equal shares.
func (p *NodeProcessor) allocate(positions map[string]*ownerPosition, names []string) []*ownerPosition {
	tol := p.env.Config.ZeroTolerance
	var active []*ownerPosition
	var sumMD, sumEnd float64
	for _, name := range names {
		pos := positions[name]
		if pos.exited {
			continue
		}
		active = append(active, pos)
		sumMD += pos.h.md()
		sumEnd += pos.h.end
	}
	for _, pos := range active {
		switch {
		case !returns.NearlyZero(sumMD, tol):
			pos.mdShare = pos.h.md() / sumMD
		case !returns.NearlyZero(sumEnd, tol):
			pos.mdShare = pos.h.end / sumEnd
		default:
			pos.mdShare = 1 / float64(len(active))
		}
	}
	return active
}

// reconcile sets ownership percentages from closing balances against the vehicle
// NAV, rescaling them to 100 when they drift past tolerance. It reports whether
// a rescale happened.
func (p *NodeProcessor) reconcile(active []*ownerPosition, nav float64) bool {
	cfg := p.env.Config
	if len(active) == 0 {
		return false
	}
	if returns.NearlyZero(nav, cfg.ZeroTolerance) {
		for _, pos := range active {
			pos.own = pos.mdShare * 100
		}
		return false
	}

	var sum float64
	for _, pos := range active {
		pos.own = pos.h.end / nav * 100
		sum += pos.own
	}
	if math.Abs(sum-100) <= cfg.OwnershipTolerance || returns.NearlyZero(sum, cfg.ZeroTolerance) {
		return false
	}
	scale := 100 / sum
	for _, pos := range active {
		pos.own *= scale
	}
	return true
}

// cascade pushes an owner's share of the vehicle down to each investment
func (p *NodeProcessor) cascade(ctx context.Context, owner string, frac, mdShare float64, inv PeriodInvestments, adjusted, final bool) []models.CalculationRow {
	commitFrac := frac
	if commitFrac == 0 {
		commitFrac = mdShare
	}
	rows := make([]models.CalculationRow, 0, len(inv.Investments))
	for _, f := range inv.Investments {
		key := models.JoinPath(owner, p.vehicle, f.Target)
		p.owners.Open(key, f.StartNAV*mdShare, inv.Window.AccountStart)
		p.owners.Append(key, scaleFlows(f.Flows, mdShare)...)
		nav := f.NAV * frac

		row := models.CalculationRow{
			Period:            inv.Window.Label,
			Source:            owner,
			Vehicle:           p.vehicle,
			Target:            f.Target,
			Path:              key,
			CashFlow:          f.CashFlow * mdShare,
			NAV:               nav,
			Gain:              f.Gain * mdShare,
			ReturnPct:         f.ReturnPct,
			MDDenominator:     f.MDDenominator * mdShare,
			OwnershipPct:      frac * 100,
			Commitment:        f.Commitment * commitFrac,
			Unfunded:          f.Unfunded * commitFrac,
			IRR:               p.env.Calculator.irr(ctx, p.owners, key, nav, inv.Window, final),
			OwnershipAdjusted: adjusted,
			Tags:              f.Tags,
		}
		row.ImplyStart()
		rows = append(rows, row)
	}
	return rows
}

// persistOwner writes the reconciled closing balance and rolled commitment
// back to the above side, plus the opening balance taken from a prior run.
func (p *NodeProcessor) persistOwner(pos *ownerPosition, window models.PeriodWindow, idx int, nav float64) {
	h := pos.h
	if h.fromPrior {
		p.cache.Inject(cache.Above, models.BalanceRecord{
			Source:      h.source,
			Target:      h.target,
			Date:        window.AccountStart,
			Value:       h.start,
			BalanceType: models.BalancePrior,
		}, idx)
	}
	if h.noEnd || !returns.NearlyZero(nav-h.end, p.env.Config.ZeroTolerance) ||
		h.commitment != h.endCommitment || h.unfunded != h.endUnfunded {
		for _, rec := range correctedEnd(h, window, nav) {
			p.cache.Inject(cache.Above, rec, idx)
		}
	}
}

// priorNAV finds an earlier run's closing NAV for owner in this vehicle
func (p *NodeProcessor) priorNAV(label, owner string) (float64, bool) {
	for _, row := range p.cache.Prior(label) {
		if row.Source == owner && row.Target == p.vehicle && row.Vehicle == p.vehicle {
			return row.NAV, true
		}
	}
	return 0, false
}

func scaleFlows(flows []returns.CashFlow, factor float64) []returns.CashFlow {
	out := make([]returns.CashFlow, len(flows))
	for i, f := range flows {
		out[i] = returns.CashFlow{Amount: f.Amount * factor, Date: f.Date}
	}
	return out
}

// runVehicle runs a standalone NodeProcessor under the per-vehicle watchdog
func runVehicle(ctx context.Context, env *RunEnv, pc *cache.PeriodCache) ([]*VehicleResult, error) {
	if env.Config.VehicleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, env.Config.VehicleTimeout)
		defer cancel()
	}
	results, err := NewNodeProcessor(env, pc).Run(ctx)
	if errors.Is(err, ErrVehicleTimeout) {
		AddWarning(ctx, models.Warning{
			Code:    models.WarnVehicleTimeout,
			Message: fmt.Sprintf("%s did not finish within %s", pc.Owner, env.Config.VehicleTimeout),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", pc.Owner, err)
	}
	return results, nil
}

// rowsOf flattens vehicle results into their calculation rows
func rowsOf(results []*VehicleResult) []models.CalculationRow {
	var rows []models.CalculationRow
	for _, r := range results {
		rows = append(rows, r.Rows...)
	}
	return rows
}
