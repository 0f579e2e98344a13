package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/repository"
	log "github.com/sirupsen/logrus"
)

// storeMu serializes commits from concurrent runs in this process
var storeMu sync.Mutex

// Writer is the only goroutine that touches the store during a run. It stages
// worker mutations and commits them in one call once the run has succeeded.
type Writer struct {
	store repository.ResultStore
	in    <-chan models.Mutation

	rows        []models.CalculationRow
	corrections []models.BalanceRecord
	done        chan struct{}
}

func NewWriter(store repository.ResultStore, in <-chan models.Mutation) *Writer {
	return &Writer{store: store, in: in, done: make(chan struct{})}
}

// Drain stages mutations until in is closed or quit is closed
func (w *Writer) Drain(quit <-chan struct{}) {
	defer close(w.done)
	for {
		select {
		case m, ok := <-w.in:
			if !ok {
				return
			}
			w.stage(m)
		case <-quit:
			return
		}
	}
}

func (w *Writer) stage(m models.Mutation) {
	switch m.Kind {
	case models.MutationInsert:
		w.rows = append(w.rows, m.Rows...)
	case models.MutationUpdate:
		w.corrections = append(w.corrections, m.Balances...)
	default:
		log.Warnf("writer ignoring mutation of kind %q from %s", m.Kind, m.VehicleID)
	}
}

// Wait blocks until Drain returns
func (w *Writer) Wait() {
	<-w.done
}

// Rows returns the staged rows. Only valid after Wait.
func (w *Writer) Rows() []models.CalculationRow {
	return w.rows
}

// Corrections returns the staged balance corrections. Only valid after Wait.
func (w *Writer) Corrections() []models.BalanceRecord {
	return w.corrections
}

// Commit persists the run. Staged results are written only when the run
// completed; a failed run stores its header alone.
func (w *Writer) Commit(ctx context.Context, run models.RunSummary) error {
	if w.store == nil {
		return nil
	}
	// a failed run may have abandoned Drain mid-flight, so staged data is not read
	var rows []models.CalculationRow
	var corrections []models.BalanceRecord
	if run.Status == models.RunCompleted {
		rows, corrections = w.rows, w.corrections
	}

	storeMu.Lock()
	defer storeMu.Unlock()
	if err := w.store.SaveRun(ctx, run, rows, corrections); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}
