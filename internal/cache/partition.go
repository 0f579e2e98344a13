package cache

import (
	"github.com/epeers/navgraph/internal/models"
)

// Arena holds one cache partition per vehicle or direct owner, keyed by name.
// Each worker receives its own partitions; no partition is shared across workers.
type Arena map[string]*PeriodCache

// Partition copies ledger records into per-owner partitions. A record whose source
// is a partition owner lands below it; a record whose target is one lands above it.
// Records touching none of the owners are ignored.
func Partition(owners []string, periods []models.PeriodWindow, balances []models.BalanceRecord, transactions []models.TransactionRecord, prior []models.CalculationRow) Arena {
	arena := make(Arena, len(owners))
	for _, o := range owners {
		arena[o] = NewPeriodCache(o, periods)
	}

	for _, b := range balances {
		if c, ok := arena[b.Source]; ok {
			c.AddBalance(Below, b)
		}
		if c, ok := arena[b.Target]; ok {
			c.AddBalance(Above, b)
		}
	}
	for _, t := range transactions {
		if c, ok := arena[t.Source]; ok {
			c.AddTransaction(Below, t)
		}
		if c, ok := arena[t.Target]; ok {
			c.AddTransaction(Above, t)
		}
	}
	for _, r := range prior {
		if c, ok := arena[r.Target]; ok {
			c.AddPrior(r)
		}
	}
	return arena
}

// Subset returns the partitions for names, skipping unknown ones.
func (a Arena) Subset(names ...string) Arena {
	out := make(Arena, len(names))
	for _, n := range names {
		if c, ok := a[n]; ok {
			out[n] = c
		}
	}
	return out
}
