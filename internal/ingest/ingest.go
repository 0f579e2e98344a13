package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRecord = errors.New("invalid ledger record")

// Ledger is validated input ready for a run
type Ledger struct {
	Balances     []models.BalanceRecord
	Transactions []models.TransactionRecord
	Reference    models.ReferenceData
}

// LoadFile reads a ledger document from path. YAML is tried first, then JSON.
func LoadFile(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger file: %w", err)
	}

	var raw models.RawLedger
	if err := yaml.Unmarshal(data, &raw); err != nil {
		if jerr := json.Unmarshal(data, &raw); jerr != nil {
			return nil, fmt.Errorf("failed to parse %s (tried YAML and JSON): %w", path, err)
		}
	}

	ledger, err := Convert(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("loaded %d balances, %d transactions and %d reference entries from %s",
		len(ledger.Balances), len(ledger.Transactions), len(ledger.Reference), path)
	return ledger, nil
}

var inputBalanceTypes = map[string]models.BalanceType{
	"":           models.BalanceActual,
	"actual":     models.BalanceActual,
	"estimate":   models.BalanceEstimate,
	"calculated": models.BalanceCalculated,
}

var timingTags = map[string]models.TimingTag{
	"":    models.TimingNone,
	"eod": models.TimingEOD,
	"bod": models.TimingBOD,
}

// Convert validates raw rows and turns them into ledger records. The first bad
// row fails the whole ledger with ErrInvalidRecord naming its position.
func Convert(raw models.RawLedger) (*Ledger, error) {
	out := &Ledger{
		Balances:     make([]models.BalanceRecord, 0, len(raw.Balances)),
		Transactions: make([]models.TransactionRecord, 0, len(raw.Transactions)),
		Reference:    raw.Reference,
	}
	if out.Reference == nil {
		out.Reference = make(models.ReferenceData)
	}

	for i, rb := range raw.Balances {
		b, err := convertBalance(rb)
		if err != nil {
			return nil, fmt.Errorf("%w: balance %d: %v", ErrInvalidRecord, i, err)
		}
		out.Balances = append(out.Balances, b)
	}
	for i, rt := range raw.Transactions {
		t, err := convertTransaction(rt)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %d: %v", ErrInvalidRecord, i, err)
		}
		out.Transactions = append(out.Transactions, t)
	}
	return out, nil
}

func convertBalance(rb models.RawBalance) (models.BalanceRecord, error) {
	if err := checkEdge(rb.Source, rb.Target, rb.Date); err != nil {
		return models.BalanceRecord{}, err
	}
	if rb.Value == nil {
		return models.BalanceRecord{}, errors.New("value is required")
	}
	bt, ok := inputBalanceTypes[strings.ToLower(strings.TrimSpace(rb.BalanceType))]
	if !ok {
		return models.BalanceRecord{}, fmt.Errorf("unknown balance type %q", rb.BalanceType)
	}
	value, commitment, unfunded := *rb.Value, deref(rb.Commitment), deref(rb.Unfunded)
	if !finite(value, commitment, unfunded) {
		return models.BalanceRecord{}, errors.New("non-finite amount")
	}
	return models.BalanceRecord{
		Source:      strings.TrimSpace(rb.Source),
		Target:      strings.TrimSpace(rb.Target),
		Date:        util.DateOnly(rb.Date.Time),
		Value:       value,
		BalanceType: bt,
		SubAccount:  strings.TrimSpace(rb.SubAccount),
		Commitment:  commitment,
		Unfunded:    unfunded,
		Tags:        rb.Tags,
	}, nil
}

func convertTransaction(rt models.RawTransaction) (models.TransactionRecord, error) {
	if err := checkEdge(rt.Source, rt.Target, rt.Date); err != nil {
		return models.TransactionRecord{}, err
	}
	typ := strings.TrimSpace(rt.Type)
	if typ == "" {
		return models.TransactionRecord{}, errors.New("type is required")
	}
	timing, ok := timingTags[strings.ToLower(strings.TrimSpace(rt.Timing))]
	if !ok {
		return models.TransactionRecord{}, fmt.Errorf("unknown timing tag %q", rt.Timing)
	}
	delta := deref(rt.CommitmentDelta)
	if !finite(delta) || (rt.CashFlow != nil && !finite(*rt.CashFlow)) {
		return models.TransactionRecord{}, errors.New("non-finite amount")
	}
	t := models.TransactionRecord{
		Source:          strings.TrimSpace(rt.Source),
		Target:          strings.TrimSpace(rt.Target),
		Date:            util.DateOnly(rt.Date.Time),
		Type:            models.TransactionType(typ),
		CommitmentDelta: delta,
		Timing:          timing,
	}
	if rt.CashFlow != nil {
		cf := *rt.CashFlow
		t.CashFlow = &cf
	}
	return t, nil
}

func checkEdge(source, target string, date models.FlexibleDate) error {
	switch {
	case strings.TrimSpace(source) == "":
		return errors.New("source is required")
	case strings.TrimSpace(target) == "":
		return errors.New("target is required")
	case date.IsZero():
		return errors.New("date is required")
	}
	return nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
