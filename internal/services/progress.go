package services

import (
	"sort"
	"sync"
	"time"

	"github.com/epeers/navgraph/internal/models"
	log "github.com/sirupsen/logrus"
)

// ProgressSnapshot is a point-in-time view of a run's workers
type ProgressSnapshot struct {
	PercentDone   float64
	TimeRemaining time.Duration
	Vehicles      []models.VehicleProgress
	Failed        bool
}

// ProgressAggregator folds worker status updates into run-level progress.
// Once any worker reports Failed, later updates are ignored.
type ProgressAggregator struct {
	mu       sync.RWMutex
	started  time.Time
	vehicles map[string]models.VehicleProgress
	failed   bool
}

func NewProgressAggregator() *ProgressAggregator {
	return &ProgressAggregator{
		started:  time.Now(),
		vehicles: make(map[string]models.VehicleProgress),
	}
}

// Expect registers a worker before it starts
func (a *ProgressAggregator) Expect(vehicle string, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.vehicles[vehicle] = models.VehicleProgress{VehicleID: vehicle, Total: total, Status: models.StatusInitialization}
}

// Apply records one update
func (a *ProgressAggregator) Apply(p models.Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failed {
		return
	}
	v := a.vehicles[p.VehicleID]
	v.VehicleID = p.VehicleID
	v.Status = p.Status
	if p.Total > 0 {
		v.Total = p.Total
	}
	if p.Periods > v.Periods {
		v.Periods = p.Periods
	}
	if p.Status == models.StatusCompleted {
		v.Periods = v.Total
	}
	a.vehicles[p.VehicleID] = v
	if p.Status == models.StatusFailed {
		a.failed = true
	}
}

// Consume applies updates from in until it is closed or quit is closed,
// logging a snapshot every interval.
func (a *ProgressAggregator) Consume(in <-chan models.Progress, quit <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case p, ok := <-in:
			if !ok {
				return
			}
			a.Apply(p)
		case <-ticker.C:
			s := a.Snapshot()
			log.Debugf("progress %.1f%%, about %s remaining", s.PercentDone, s.TimeRemaining.Round(time.Millisecond))
		case <-quit:
			return
		}
	}
}

// Snapshot returns percent complete, a linear estimate of the time remaining,
// and every worker's status sorted by name
func (a *ProgressAggregator) Snapshot() ProgressSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var done, total int
	out := ProgressSnapshot{Failed: a.failed}
	for _, v := range a.vehicles {
		done += v.Periods
		total += v.Total
		out.Vehicles = append(out.Vehicles, v)
	}
	sort.Slice(out.Vehicles, func(i, j int) bool { return out.Vehicles[i].VehicleID < out.Vehicles[j].VehicleID })

	if total > 0 {
		out.PercentDone = float64(done) / float64(total) * 100
	}
	if out.PercentDone > 0 && out.PercentDone < 100 {
		elapsed := time.Since(a.started)
		out.TimeRemaining = time.Duration(float64(elapsed) * (100 - out.PercentDone) / out.PercentDone)
	}
	return out
}

// Completed reports whether every registered worker finished and none failed
func (a *ProgressAggregator) Completed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.failed {
		return false
	}
	for _, v := range a.vehicles {
		if v.Status != models.StatusCompleted {
			return false
		}
	}
	return true
}
