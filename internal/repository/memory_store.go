package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/epeers/navgraph/internal/models"
)

// MemoryStore keeps ledgers and runs in process memory
type MemoryStore struct {
	mu           sync.RWMutex
	balances     []models.BalanceRecord
	transactions []models.TransactionRecord
	reference    models.ReferenceData
	runs         map[string]models.RunSummary
	rows         map[string][]models.CalculationRow
	corrections  map[string][]models.BalanceRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reference:   make(models.ReferenceData),
		runs:        make(map[string]models.RunSummary),
		rows:        make(map[string][]models.CalculationRow),
		corrections: make(map[string][]models.BalanceRecord),
	}
}

// Seed adds ledger records to the store
func (s *MemoryStore) Seed(balances []models.BalanceRecord, transactions []models.TransactionRecord, reference models.ReferenceData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = append(s.balances, balances...)
	s.transactions = append(s.transactions, transactions...)
	for k, v := range reference {
		s.reference[k] = v
	}
}

func (s *MemoryStore) ImportLedger(ctx context.Context, balances []models.BalanceRecord, transactions []models.TransactionRecord, reference models.ReferenceData) error {
	s.Seed(balances, transactions, reference)
	return nil
}

func (s *MemoryStore) LoadBalances(ctx context.Context, from, to time.Time) ([]models.BalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.BalanceRecord
	for _, b := range s.balances {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadTransactions(ctx context.Context, from, to time.Time) ([]models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TransactionRecord
	for _, t := range s.transactions {
		if !t.Date.Before(from) && !t.Date.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) LoadReference(ctx context.Context) (models.ReferenceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(models.ReferenceData, len(s.reference))
	for k, v := range s.reference {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) LoadPriorRows(ctx context.Context, period string) ([]models.CalculationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.RunSummary
	for _, run := range s.runs {
		if run.Status != models.RunCompleted {
			continue
		}
		if latest == nil || run.FinishedAt.After(latest.FinishedAt) {
			r := run
			latest = &r
		}
	}
	if latest == nil {
		return nil, nil
	}
	var out []models.CalculationRow
	for _, row := range s.rows[latest.ID] {
		if row.Period == period {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryStore) SaveRun(ctx context.Context, run models.RunSummary, rows []models.CalculationRow, corrections []models.BalanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	s.rows[run.ID] = append([]models.CalculationRow(nil), rows...)
	s.corrections[run.ID] = append([]models.BalanceRecord(nil), corrections...)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

func (s *MemoryStore) ListRows(ctx context.Context, id string) ([]models.CalculationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[id]; !ok {
		return nil, ErrRunNotFound
	}
	rows := append([]models.CalculationRow(nil), s.rows[id]...)
	sortRows(rows)
	return rows, nil
}

// Corrections returns the balance corrections stored with a run
func (s *MemoryStore) Corrections(id string) []models.BalanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BalanceRecord(nil), s.corrections[id]...)
}

func (s *MemoryStore) Close() {}

// sortRows orders rows the way the SQL stores return them
func sortRows(rows []models.CalculationRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Path < b.Path
	})
}
