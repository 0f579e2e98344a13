package returns

import (
	"math"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/util"
)

// Offsets holds the backdating day offsets applied to cash-flow weighting.
// FirstOfMonth and Default apply when a transaction has no timing tag;
// NoStart is added on top when the holding had no opening balance.
type Offsets struct {
	EOD          int
	BOD          int
	FirstOfMonth int
	Default      int
	NoStart      int
}

// DefaultOffsets treats beginning-of-day and untagged first-of-month flows as
// having been invested for the whole day.
var DefaultOffsets = Offsets{EOD: 0, BOD: 1, FirstOfMonth: 1, Default: 0, NoStart: 1}

// Offset returns the number of days a transaction is backdated for weighting and IRR.
func (o Offsets) Offset(date time.Time, timing models.TimingTag, noStart bool) int {
	var off int
	switch timing {
	case models.TimingEOD:
		off = o.EOD
	case models.TimingBOD:
		off = o.BOD
	default:
		if date.Day() == 1 {
			off = o.FirstOfMonth
		} else {
			off = o.Default
		}
	}
	if noStart {
		off += o.NoStart
	}
	return off
}

// Backdate shifts a transaction date by its offset.
func Backdate(date time.Time, offset int) time.Time {
	return util.DateOnly(date).AddDate(0, 0, -offset)
}

// Weight is the Modified Dietz fraction of the window a flow was invested for.
func Weight(window models.PeriodWindow, date time.Time, offset int) float64 {
	days := window.Days()
	if days <= 0 {
		return 1
	}
	elapsed := util.DaysBetween(window.AccountStart, date) - offset
	w := float64(days-elapsed) / float64(days)
	return math.Max(0, math.Min(1, w))
}

// SignedReturn returns gain/denominator as a percentage. The magnitude is taken on
// absolute values and the sign restored afterwards so no -0 or sign flip leaks out.
func SignedReturn(gain, denominator float64) float64 {
	if denominator == 0 || gain == 0 {
		return 0
	}
	r := math.Abs(gain) / math.Abs(denominator) * 100
	if (gain < 0) != (denominator < 0) {
		return -r
	}
	return r
}

// NearlyZero reports whether v is within tol of zero.
func NearlyZero(v, tol float64) bool {
	return math.Abs(v) <= tol
}
