package cache

import (
	"time"

	"github.com/epeers/navgraph/internal/returns"
)

// CashFlowLedger keeps the running IRR cash flows per investment key.
// Series only ever grow within a run.
type CashFlowLedger struct {
	flows map[string][]returns.CashFlow
}

// NewCashFlowLedger creates an empty ledger
func NewCashFlowLedger() *CashFlowLedger {
	return &CashFlowLedger{flows: make(map[string][]returns.CashFlow)}
}

// Append adds flows to the series for key
func (l *CashFlowLedger) Append(key string, flows ...returns.CashFlow) {
	l.flows[key] = append(l.flows[key], flows...)
}

// Known reports whether key has been appended to, even with no flows
func (l *CashFlowLedger) Known(key string) bool {
	_, ok := l.flows[key]
	return ok
}

// Open registers key, seeding it with an opening investment of amount at date
// when the key is new and amount is non-zero.
func (l *CashFlowLedger) Open(key string, amount float64, date time.Time) {
	if l.Known(key) {
		return
	}
	l.flows[key] = nil
	if amount != 0 {
		l.flows[key] = append(l.flows[key], returns.CashFlow{Amount: -amount, Date: date})
	}
}

// Len returns the number of flows stored for key
func (l *CashFlowLedger) Len(key string) int {
	return len(l.flows[key])
}

// Series returns the date-ordered flows for key followed by the closing NAV term.
func (l *CashFlowLedger) Series(key string, nav float64, asOf time.Time) []returns.CashFlow {
	series := make([]returns.CashFlow, 0, len(l.flows[key])+1)
	series = append(series, l.flows[key]...)
	returns.SortFlows(series)
	return append(series, returns.CashFlow{Amount: nav, Date: asOf})
}
