package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/epeers/navgraph/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Decimal columns are TEXT so SQLite keeps the rounded value exactly
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_balance (
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	date         DATE NOT NULL,
	balance_type TEXT NOT NULL,
	sub_account  TEXT NOT NULL DEFAULT '',
	value        TEXT NOT NULL,
	commitment   TEXT NOT NULL DEFAULT '0',
	unfunded     TEXT NOT NULL DEFAULT '0',
	tags         TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (date, source, target, balance_type, sub_account)
);
CREATE TABLE IF NOT EXISTS ledger_transaction (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	source           TEXT NOT NULL,
	target           TEXT NOT NULL,
	date             DATE NOT NULL,
	type             TEXT NOT NULL,
	cash_flow        TEXT,
	commitment_delta TEXT NOT NULL DEFAULT '0',
	timing           TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS dim_reference (
	name TEXT PRIMARY KEY,
	tags TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS calc_run (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	periods     INTEGER NOT NULL,
	vehicles    INTEGER NOT NULL,
	row_count   INTEGER NOT NULL,
	warnings    TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS calc_row (
	run_id             TEXT NOT NULL REFERENCES calc_run (id) ON DELETE CASCADE,
	period             TEXT NOT NULL,
	path               TEXT NOT NULL,
	source             TEXT NOT NULL,
	vehicle            TEXT NOT NULL DEFAULT '',
	target             TEXT NOT NULL,
	start_nav          TEXT NOT NULL,
	cash_flow          TEXT NOT NULL,
	nav                TEXT NOT NULL,
	gain               TEXT NOT NULL,
	return_pct         TEXT NOT NULL,
	md_denominator     TEXT NOT NULL,
	ownership_pct      TEXT NOT NULL,
	commitment         TEXT NOT NULL,
	unfunded           TEXT NOT NULL,
	irr                TEXT,
	ownership_adjusted BOOLEAN NOT NULL DEFAULT 0,
	tags               TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (run_id, period, path)
);
CREATE TABLE IF NOT EXISTS calc_correction (
	run_id       TEXT NOT NULL REFERENCES calc_run (id) ON DELETE CASCADE,
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	date         DATE NOT NULL,
	balance_type TEXT NOT NULL,
	sub_account  TEXT NOT NULL DEFAULT '',
	value        TEXT NOT NULL,
	commitment   TEXT NOT NULL,
	unfunded     TEXT NOT NULL,
	PRIMARY KEY (run_id, date, source, target, balance_type, sub_account)
);
`

// SQLiteStore is the single-file store used by the CLI and by servers without Postgres
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and creates its tables
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadBalances(ctx context.Context, from, to time.Time) ([]models.BalanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, date, balance_type, sub_account, value, commitment, unfunded, tags
		FROM ledger_balance
		WHERE date >= ? AND date <= ?
		ORDER BY date, source, target
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []models.BalanceRecord
	for rows.Next() {
		var b models.BalanceRecord
		var bt, tags string
		var value, commitment, unfunded decimal.Decimal
		if err := rows.Scan(&b.Source, &b.Target, &b.Date, &bt, &b.SubAccount, &value, &commitment, &unfunded, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.Date = b.Date.UTC()
		b.BalanceType = models.BalanceType(bt)
		b.Value, b.Commitment, b.Unfunded = fromDecimal(value), fromDecimal(commitment), fromDecimal(unfunded)
		if b.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadTransactions(ctx context.Context, from, to time.Time) ([]models.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, date, type, cash_flow, commitment_delta, timing
		FROM ledger_transaction
		WHERE date >= ? AND date <= ?
		ORDER BY date, id
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		var t models.TransactionRecord
		var typ, timing string
		var cf decimal.NullDecimal
		var delta decimal.Decimal
		if err := rows.Scan(&t.Source, &t.Target, &t.Date, &typ, &cf, &delta, &timing); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Date = t.Date.UTC()
		t.Type = models.TransactionType(typ)
		t.Timing = models.TimingTag(timing)
		t.CashFlow = fromNullDecimal(cf)
		t.CommitmentDelta = fromDecimal(delta)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadReference(ctx context.Context) (models.ReferenceData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, tags FROM dim_reference`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference data: %w", err)
	}
	defer rows.Close()

	out := make(models.ReferenceData)
	for rows.Next() {
		var name, tags string
		if err := rows.Scan(&name, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan reference data: %w", err)
		}
		if out[name], err = decodeTags(tags); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LoadPriorRows(ctx context.Context, period string) ([]models.CalculationRow, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM calc_run
		WHERE status = ?
		ORDER BY finished_at DESC
		LIMIT 1
	`, string(models.RunCompleted)).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest run: %w", err)
	}
	return s.queryRows(ctx, runID, period)
}

func (s *SQLiteStore) ImportLedger(ctx context.Context, balances []models.BalanceRecord, transactions []models.TransactionRecord, reference models.ReferenceData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range balances {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_balance (source, target, date, balance_type, sub_account, value, commitment, unfunded, tags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (date, source, target, balance_type, sub_account) DO UPDATE
			SET value = excluded.value, commitment = excluded.commitment,
			    unfunded = excluded.unfunded, tags = excluded.tags
		`, b.Source, b.Target, b.Date.UTC(), string(b.BalanceType), b.SubAccount,
			toDecimal(b.Value), toDecimal(b.Commitment), toDecimal(b.Unfunded), encodeTags(b.Tags))
		if err != nil {
			return fmt.Errorf("failed to import balance: %w", err)
		}
	}
	for _, t := range transactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_transaction (source, target, date, type, cash_flow, commitment_delta, timing)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.Source, t.Target, t.Date.UTC(), string(t.Type), toNullDecimal(t.CashFlow), toDecimal(t.CommitmentDelta), string(t.Timing))
		if err != nil {
			return fmt.Errorf("failed to import transaction: %w", err)
		}
	}
	for name, tags := range reference {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dim_reference (name, tags) VALUES (?, ?)
			ON CONFLICT (name) DO UPDATE SET tags = excluded.tags
		`, name, encodeTags(tags))
		if err != nil {
			return fmt.Errorf("failed to import reference data: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run models.RunSummary, rows []models.CalculationRow, corrections []models.BalanceRecord) error {
	warnings, err := json.Marshal(nonNilWarnings(run.Warnings))
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO calc_run (id, status, started_at, finished_at, periods, vehicles, row_count, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, finished_at = excluded.finished_at, vehicles = excluded.vehicles,
		    row_count = excluded.row_count, warnings = excluded.warnings
	`, run.ID, string(run.Status), run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Periods, run.Vehicles, run.Rows, string(warnings))
	if err != nil {
		return fmt.Errorf("failed to save run header: %w", err)
	}

	rowStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO calc_row (run_id, period, path, source, vehicle, target, start_nav, cash_flow, nav, gain,
		                      return_pct, md_denominator, ownership_pct, commitment, unfunded, irr,
		                      ownership_adjusted, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer rowStmt.Close()
	for _, row := range rows {
		_, err := rowStmt.ExecContext(ctx, run.ID, row.Period, row.Path, row.Source, row.Vehicle, row.Target,
			toDecimal(row.StartNAV), toDecimal(row.CashFlow), toDecimal(row.NAV), toDecimal(row.Gain),
			toDecimal(row.ReturnPct), toDecimal(row.MDDenominator), toDecimal(row.OwnershipPct),
			toDecimal(row.Commitment), toDecimal(row.Unfunded), toNullDecimal(row.IRR),
			row.OwnershipAdjusted, encodeTags(row.Tags))
		if err != nil {
			return fmt.Errorf("failed to save row %s %s: %w", row.Period, row.Path, err)
		}
	}

	for _, b := range corrections {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO calc_correction (run_id, source, target, date, balance_type, sub_account, value, commitment, unfunded)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, date, source, target, balance_type, sub_account) DO UPDATE
			SET value = excluded.value, commitment = excluded.commitment, unfunded = excluded.unfunded
		`, run.ID, b.Source, b.Target, b.Date.UTC(), string(b.BalanceType), b.SubAccount,
			toDecimal(b.Value), toDecimal(b.Commitment), toDecimal(b.Unfunded))
		if err != nil {
			return fmt.Errorf("failed to save correction: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	run := &models.RunSummary{}
	var status, warnings string
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, started_at, finished_at, periods, vehicles, row_count, warnings
		FROM calc_run
		WHERE id = ?
	`, id).Scan(&run.ID, &status, &run.StartedAt, &finished, &run.Periods, &run.Vehicles, &run.Rows, &warnings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = models.RunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	if finished.Valid {
		run.FinishedAt = finished.Time.UTC()
	}
	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return nil, fmt.Errorf("failed to decode warnings of run %s: %w", id, err)
	}
	if len(run.Warnings) == 0 {
		run.Warnings = nil
	}
	return run, nil
}

func (s *SQLiteStore) ListRows(ctx context.Context, id string) ([]models.CalculationRow, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return s.queryRows(ctx, id, "")
}

func (s *SQLiteStore) queryRows(ctx context.Context, runID, period string) ([]models.CalculationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, path, source, vehicle, target, start_nav, cash_flow, nav, gain, return_pct,
		       md_denominator, ownership_pct, commitment, unfunded, irr, ownership_adjusted, tags
		FROM calc_row
		WHERE run_id = ? AND (? = '' OR period = ?)
		ORDER BY period, path
	`, runID, period, period)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []models.CalculationRow
	for rows.Next() {
		var row models.CalculationRow
		var start, cf, nav, gain, ret, md, own, commitment, unfunded decimal.Decimal
		var irr decimal.NullDecimal
		var tags string
		if err := rows.Scan(&row.Period, &row.Path, &row.Source, &row.Vehicle, &row.Target,
			&start, &cf, &nav, &gain, &ret, &md, &own, &commitment, &unfunded, &irr,
			&row.OwnershipAdjusted, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row.StartNAV, row.CashFlow, row.NAV, row.Gain = fromDecimal(start), fromDecimal(cf), fromDecimal(nav), fromDecimal(gain)
		row.ReturnPct, row.MDDenominator, row.OwnershipPct = fromDecimal(ret), fromDecimal(md), fromDecimal(own)
		row.Commitment, row.Unfunded = fromDecimal(commitment), fromDecimal(unfunded)
		row.IRR = fromNullDecimal(irr)
		if row.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Corrections returns the balance corrections stored with a run
func (s *SQLiteStore) Corrections(ctx context.Context, id string) ([]models.BalanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, date, balance_type, sub_account, value, commitment, unfunded
		FROM calc_correction
		WHERE run_id = ?
		ORDER BY date, source, target
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var out []models.BalanceRecord
	for rows.Next() {
		var b models.BalanceRecord
		var bt string
		var value, commitment, unfunded decimal.Decimal
		if err := rows.Scan(&b.Source, &b.Target, &b.Date, &bt, &b.SubAccount, &value, &commitment, &unfunded); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		b.Date = b.Date.UTC()
		b.BalanceType = models.BalanceType(bt)
		b.Value, b.Commitment, b.Unfunded = fromDecimal(value), fromDecimal(commitment), fromDecimal(unfunded)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func encodeTags(tags []string) string {
	b, _ := json.Marshal(nonNil(tags))
	return string(b)
}

func decodeTags(s string) ([]string, error) {
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags %q: %w", s, err)
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return tags, nil
}
