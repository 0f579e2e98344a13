package util

import (
	"fmt"
	"time"

	"github.com/epeers/navgraph/internal/models"
	log "github.com/sirupsen/logrus"
)

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last calendar day of t's month at midnight UTC.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// MonthlyPeriods builds contiguous month windows covering from..to inclusive.
// Each window opens on the previous month end and closes on its own month end.
func MonthlyPeriods(from, to time.Time) ([]models.PeriodWindow, error) {
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := MonthEnd(to)
	if last.Before(first) {
		return nil, fmt.Errorf("period range ends (%s) before it starts (%s)", last.Format("2006-01-02"), first.Format("2006-01-02"))
	}

	var periods []models.PeriodWindow
	for start := first; !start.After(last); start = start.AddDate(0, 1, 0) {
		periods = append(periods, models.PeriodWindow{
			Label:        start.Format("2006-01"),
			PeriodStart:  start,
			PeriodEnd:    MonthEnd(start),
			AccountStart: start.AddDate(0, 0, -1),
		})
	}
	log.Debugf("built %d monthly periods %s..%s", len(periods), periods[0].Label, periods[len(periods)-1].Label)
	return periods, nil
}
