package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/epeers/navgraph/internal/cache"
	"github.com/epeers/navgraph/internal/graph"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ClumpLinker processes a connected group of vehicles from the deepest level up,
// folding each level's owner rows into the caches of the vehicles above it, and
// then walks ownership paths from terminal owners down to terminal investments.
type ClumpLinker struct {
	env   *RunEnv
	graph *graph.Graph
}

func NewClumpLinker(env *RunEnv, g *graph.Graph) *ClumpLinker {
	return &ClumpLinker{env: env, graph: g}
}

// periodResults indexes vehicle results by vehicle name and period index
type periodResults map[string]map[int]*VehicleResult

func (r periodResults) get(vehicle string, idx int) *VehicleResult {
	return r[vehicle][idx]
}

// Run processes clump using the partitions in arena and returns every row it produced
func (l *ClumpLinker) Run(ctx context.Context, clump graph.Clump, arena cache.Arena) ([]models.CalculationRow, error) {
	defer util.TrackTime("ClumpLinker.Run", time.Now(), log.Fields{"clump": clump.Name(), "depth": clump.Depth})

	results := make(periodResults, len(clump.Vehicles))
	var rows []models.CalculationRow
	var mu sync.Mutex

	for lvl := clump.Depth; lvl >= 0; lvl-- {
		vehicles := clump.Levels[lvl]
		if len(vehicles) == 0 {
			continue
		}

		eg, egctx := errgroup.WithContext(ctx)
		var inlineErr error
		for _, v := range vehicles {
			pc, ok := arena[v]
			if !ok {
				continue
			}
			work := func(ctx context.Context) error {
				res, err := runVehicle(ctx, l.env, pc)
				if err != nil {
					return err
				}
				byPeriod := make(map[int]*VehicleResult, len(res))
				for _, r := range res {
					byPeriod[r.Index] = r
				}
				mu.Lock()
				results[v] = byPeriod
				rows = append(rows, rowsOf(res)...)
				mu.Unlock()
				return nil
			}
			if l.env.Slots != nil && l.env.Slots.TryAcquire(1) {
				eg.Go(func() error {
					defer l.env.Slots.Release(1)
					return work(egctx)
				})
				continue
			}
			// no free worker, so run on the slot this job already holds
			if inlineErr = work(egctx); inlineErr != nil {
				break
			}
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		if inlineErr != nil {
			return nil, inlineErr
		}

		for _, v := range vehicles {
			var vrows []models.CalculationRow
			for _, r := range results[v] {
				vrows = append(vrows, r.Rows...)
			}
			for _, parent := range l.graph.Parents(v) {
				if pc, ok := arena[parent]; ok {
					n := pc.Fold(vrows)
					log.WithFields(log.Fields{"clump": clump.Name(), "vehicle": v, "parent": parent}).Debugf("folded %d rows", n)
				}
			}
		}
	}

	periods := 0
	for _, pc := range arena {
		periods = len(pc.Periods())
		break
	}
	rows = append(rows, l.paths(ctx, clump, results, periods)...)
	return rows, nil
}

// paths emits one row per ownership path that passes through at least one
// child vehicle: "A > X > Y > Fund". Single-vehicle paths are already produced
// by the node processor.
func (l *ClumpLinker) paths(ctx context.Context, clump graph.Clump, results periodResults, periods int) []models.CalculationRow {
	inClump := make(map[string]bool, len(clump.Vehicles))
	for _, v := range clump.Vehicles {
		inClump[v] = true
	}
	ledger := cache.NewCashFlowLedger()
	calc := l.env.Calculator

	var rows []models.CalculationRow
	var walk func(idx int, path []string, vehicle string, fOwn, fMD float64)
	walk = func(idx int, path []string, vehicle string, fOwn, fMD float64) {
		res := results.get(vehicle, idx)
		if res == nil {
			return
		}
		for _, f := range res.Holdings.Investments {
			if inClump[f.Target] {
				child := results.get(f.Target, idx)
				if child == nil {
					continue
				}
				s, ok := child.Owner(vehicle)
				if !ok || s.Exited {
					continue
				}
				next := append(append([]string(nil), path...), f.Target)
				walk(idx, next, f.Target, fOwn*s.OwnershipPct/100, fMD*s.MDShare)
				continue
			}
			if len(path) < 3 {
				continue
			}
			key := models.JoinPath(append(append([]string(nil), path...), f.Target)...)
			nav := f.NAV * fOwn
			ledger.Open(key, f.StartNAV*fMD, res.Window.AccountStart)
			ledger.Append(key, scaleFlows(f.Flows, fMD)...)
			row := models.CalculationRow{
				Period:        res.Window.Label,
				Source:        path[0],
				Vehicle:       vehicle,
				Target:        f.Target,
				Path:          key,
				CashFlow:      f.CashFlow * fMD,
				NAV:           nav,
				Gain:          f.Gain * fMD,
				ReturnPct:     f.ReturnPct,
				MDDenominator: f.MDDenominator * fMD,
				OwnershipPct:  fOwn * 100,
				Commitment:    f.Commitment * fOwn,
				Unfunded:      f.Unfunded * fOwn,
				IRR:           calc.irr(ctx, ledger, key, nav, res.Window, res.Index == periods-1),
				Tags:          f.Tags,
			}
			row.ImplyStart()
			rows = append(rows, row)
		}
	}

	for idx := 0; idx < periods; idx++ {
		for _, v := range clump.Vehicles {
			res := results.get(v, idx)
			if res == nil {
				continue
			}
			for _, o := range res.Owners {
				if o.Exited || inClump[o.Owner] {
					continue
				}
				walk(idx, []string{o.Owner, v}, v, o.OwnershipPct/100, o.MDShare)
			}
		}
	}
	if len(rows) > 0 {
		log.WithField("clump", clump.Name()).Debugf("assembled %d path rows", len(rows))
	}
	return rows
}

// DirectHoldings computes terminal owners' positions held without any vehicle
type DirectHoldings struct {
	env   *RunEnv
	graph *graph.Graph
}

func NewDirectHoldings(env *RunEnv, g *graph.Graph) *DirectHoldings {
	return &DirectHoldings{env: env, graph: g}
}

// Run produces one row per (period, terminal investment) held directly by pc's owner
func (d *DirectHoldings) Run(ctx context.Context, pc *cache.PeriodCache) ([]models.CalculationRow, error) {
	defer util.TrackTime("DirectHoldings.Run", time.Now(), log.Fields{"owner": pc.Owner})

	terminal := func(name string) bool {
		_, ok := d.graph.PureTargets[name]
		return ok
	}
	ledger := cache.NewCashFlowLedger()
	periods := pc.Periods()
	var rows []models.CalculationRow
	for idx := range periods {
		if err := checkpoint(ctx, d.env.Flag); err != nil {
			return nil, fmt.Errorf("direct holdings of %s: %w", pc.Owner, err)
		}
		inv := d.env.Calculator.Calculate(ctx, pc, idx, ledger, terminal)
		for _, f := range inv.Investments {
			row := models.CalculationRow{
				Period:        inv.Window.Label,
				Source:        pc.Owner,
				Target:        f.Target,
				Path:          models.JoinPath(pc.Owner, f.Target),
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
			rows = append(rows, row)
		}
		d.env.progress(models.Progress{VehicleID: pc.Owner, Periods: idx + 1, Total: len(periods), Status: models.StatusWorking})
	}
	return rows, nil
}
