package cache

import (
	"sync"

	"github.com/epeers/navgraph/internal/models"
)

// Side selects which half of a cache partition a record belongs to.
// Below holds what the owner invests in; Above holds who invests in the owner.
type Side int

const (
	Below Side = iota
	Above
)

func (s Side) String() string {
	if s == Above {
		return "above"
	}
	return "below"
}

type bucket struct {
	balances     []models.BalanceRecord
	transactions []models.TransactionRecord
}

// PeriodCache is the working copy of ledger data for one vehicle (or direct owner),
// bucketed by period label. A balance sits in every period whose window covers its
// date, so the closing snapshot of one period is also the opening one of the next.
type PeriodCache struct {
	Owner string

	periods []models.PeriodWindow
	index   map[string]int
	sides   [2]map[string]*bucket
	prior   map[string][]models.CalculationRow
	journal map[models.BalanceKey]models.BalanceRecord
	order   []models.BalanceKey
	mu      sync.RWMutex
}

// NewPeriodCache creates an empty partition for owner over the given periods
func NewPeriodCache(owner string, periods []models.PeriodWindow) *PeriodCache {
	c := &PeriodCache{
		Owner:   owner,
		periods: periods,
		index:   make(map[string]int, len(periods)),
		prior:   make(map[string][]models.CalculationRow),
		journal: make(map[models.BalanceKey]models.BalanceRecord),
	}
	for side := range c.sides {
		c.sides[side] = make(map[string]*bucket, len(periods))
	}
	for i, p := range periods {
		c.index[p.Label] = i
		c.sides[Below][p.Label] = &bucket{}
		c.sides[Above][p.Label] = &bucket{}
	}
	return c
}

// Periods returns the windows this partition was built for
func (c *PeriodCache) Periods() []models.PeriodWindow {
	return c.periods
}

// PeriodIndex returns the position of a period label
func (c *PeriodCache) PeriodIndex(label string) (int, bool) {
	i, ok := c.index[label]
	return i, ok
}

// Balances returns a copy of the balances on side for a period
func (c *PeriodCache) Balances(side Side, label string) []models.BalanceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.sides[side][label]
	if !ok {
		return nil
	}
	return append([]models.BalanceRecord(nil), b.balances...)
}

// Transactions returns a copy of the transactions on side for a period
func (c *PeriodCache) Transactions(side Side, label string) []models.TransactionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.sides[side][label]
	if !ok {
		return nil
	}
	return append([]models.TransactionRecord(nil), b.transactions...)
}

// Prior returns calculation rows from an earlier run for a period label
func (c *PeriodCache) Prior(label string) []models.CalculationRow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prior[label]
}

// HasPrior reports whether any earlier-run rows were loaded
func (c *PeriodCache) HasPrior() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prior) > 0
}

// AddBalance places a balance into every period whose window covers its date
func (c *PeriodCache) AddBalance(side Side, rec models.BalanceRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsert(side, rec, 0)
}

// AddTransaction places a transaction into the period that contains its date
func (c *PeriodCache) AddTransaction(side Side, rec models.TransactionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.periods {
		if p.Contains(rec.Date) {
			b := c.sides[side][p.Label]
			b.transactions = append(b.transactions, rec)
			return
		}
	}
}

// AddPrior stores an earlier run's row under its period label
func (c *PeriodCache) AddPrior(row models.CalculationRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prior[row.Period] = append(c.prior[row.Period], row)
}

// Inject upserts rec into every period at index from or later whose window covers
// its date. A record with the same composite key is replaced, so injecting the
// same correction twice leaves the cache unchanged. Injected records are journaled
// and returned by Corrections.
func (c *PeriodCache) Inject(side Side, rec models.BalanceRecord, from int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.upsert(side, rec, from)
	key := rec.Key()
	if _, ok := c.journal[key]; !ok {
		c.order = append(c.order, key)
	}
	c.journal[key] = rec
}

// Corrections returns the latest version of every injected record, in first-injection order
func (c *PeriodCache) Corrections() []models.BalanceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.BalanceRecord, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.journal[k])
	}
	return out
}

func (c *PeriodCache) upsert(side Side, rec models.BalanceRecord, from int) {
	key := rec.Key()
	for i := from; i < len(c.periods); i++ {
		p := c.periods[i]
		if rec.Date.After(p.PeriodEnd) {
			continue
		}
		if rec.Date.Before(p.AccountStart) {
			break
		}
		b := c.sides[side][p.Label]
		replaced := false
		for j := range b.balances {
			if b.balances[j].Key() == key {
				b.balances[j] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			b.balances = append(b.balances, rec)
		}
	}
}

// Fold turns a child vehicle's owner-level rows into this partition's below balances,
// so the child shows up as an ordinary investment with its reconciled figures.
// Only rows whose source is this partition's owner are folded.
func (c *PeriodCache) Fold(rows []models.CalculationRow) int {
	folded := 0
	for _, row := range rows {
		if row.Source != c.Owner || row.Target != row.Vehicle {
			continue
		}
		i, ok := c.PeriodIndex(row.Period)
		if !ok {
			continue
		}
		c.mu.Lock()
		c.upsert(Below, models.BalanceRecord{
			Source:      row.Source,
			Target:      row.Target,
			Date:        c.periods[i].PeriodEnd,
			Value:       row.NAV,
			BalanceType: models.BalanceCalculated,
			Commitment:  row.Commitment,
			Unfunded:    row.Unfunded,
			Tags:        row.Tags,
		}, i)
		c.mu.Unlock()
		folded++
	}
	return folded
}
