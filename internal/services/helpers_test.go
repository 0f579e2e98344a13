package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/epeers/navgraph/config"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/util"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	dec31 = day(2023, 12, 31)
	jan31 = day(2024, 1, 31)
)

func bal(source, target string, date time.Time, value float64) models.BalanceRecord {
	return models.BalanceRecord{Source: source, Target: target, Date: date, Value: value, BalanceType: models.BalanceActual}
}

func txn(source, target string, date time.Time, typ models.TransactionType, cf float64) models.TransactionRecord {
	return models.TransactionRecord{Source: source, Target: target, Date: date, Type: typ, CashFlow: &cf}
}

func months(t *testing.T, from, to time.Time) []models.PeriodWindow {
	t.Helper()
	periods, err := util.MonthlyPeriods(from, to)
	if err != nil {
		t.Fatalf("failed to build periods: %v", err)
	}
	return periods
}

func testConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.Workers = 2
	cfg.ProgressInterval = 10 * time.Millisecond
	cfg.CancelGrace = 200 * time.Millisecond
	return cfg
}

func testEnv(cfg config.EngineConfig, reference models.ReferenceData, vehicles ...string) *RunEnv {
	set := make(map[string]bool)
	for _, v := range vehicles {
		set[v] = true
	}
	return &RunEnv{
		Config:     cfg,
		Calculator: NewInvestmentCalculator(cfg, reference, func(s string) bool { return set[s] }, nil),
		Flag:       NewCancelFlag(),
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func warningCodes(ctx context.Context) map[models.WarningCode]int {
	out := make(map[models.WarningCode]int)
	if wc := collectorFrom(ctx); wc != nil {
		for _, w := range wc.GetWarnings() {
			out[w.Code]++
		}
	}
	return out
}

func findRow(rows []models.CalculationRow, period, path string) (models.CalculationRow, bool) {
	for _, r := range rows {
		if r.Period == period && r.Path == path {
			return r, true
		}
	}
	return models.CalculationRow{}, false
}
