package cache

import (
	"time"

	"github.com/epeers/navgraph/internal/returns"
)

func returnsFlow(amount float64, date time.Time) returns.CashFlow {
	return returns.CashFlow{Amount: amount, Date: date}
}
