package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epeers/navgraph/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ledger_balance (
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	date         DATE NOT NULL,
	balance_type TEXT NOT NULL,
	sub_account  TEXT NOT NULL DEFAULT '',
	value        NUMERIC(24,6) NOT NULL,
	commitment   NUMERIC(24,6) NOT NULL DEFAULT 0,
	unfunded     NUMERIC(24,6) NOT NULL DEFAULT 0,
	tags         TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (date, source, target, balance_type, sub_account)
);
CREATE TABLE IF NOT EXISTS ledger_transaction (
	id               BIGSERIAL PRIMARY KEY,
	source           TEXT NOT NULL,
	target           TEXT NOT NULL,
	date             DATE NOT NULL,
	type             TEXT NOT NULL,
	cash_flow        NUMERIC(24,6),
	commitment_delta NUMERIC(24,6) NOT NULL DEFAULT 0,
	timing           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ledger_transaction_date_idx ON ledger_transaction (date);
CREATE TABLE IF NOT EXISTS dim_reference (
	name TEXT PRIMARY KEY,
	tags TEXT[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS calc_run (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	periods     INT NOT NULL,
	vehicles    INT NOT NULL,
	row_count   INT NOT NULL,
	warnings    JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS calc_row (
	run_id             TEXT NOT NULL REFERENCES calc_run (id) ON DELETE CASCADE,
	period             TEXT NOT NULL,
	path               TEXT NOT NULL,
	source             TEXT NOT NULL,
	vehicle            TEXT NOT NULL DEFAULT '',
	target             TEXT NOT NULL,
	start_nav          NUMERIC(24,6) NOT NULL,
	cash_flow          NUMERIC(24,6) NOT NULL,
	nav                NUMERIC(24,6) NOT NULL,
	gain               NUMERIC(24,6) NOT NULL,
	return_pct         NUMERIC(24,6) NOT NULL,
	md_denominator     NUMERIC(24,6) NOT NULL,
	ownership_pct      NUMERIC(24,6) NOT NULL,
	commitment         NUMERIC(24,6) NOT NULL,
	unfunded           NUMERIC(24,6) NOT NULL,
	irr                NUMERIC(24,6),
	ownership_adjusted BOOLEAN NOT NULL DEFAULT FALSE,
	tags               TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, period, path)
);
CREATE TABLE IF NOT EXISTS calc_correction (
	run_id       TEXT NOT NULL REFERENCES calc_run (id) ON DELETE CASCADE,
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	date         DATE NOT NULL,
	balance_type TEXT NOT NULL,
	sub_account  TEXT NOT NULL DEFAULT '',
	value        NUMERIC(24,6) NOT NULL,
	commitment   NUMERIC(24,6) NOT NULL,
	unfunded     NUMERIC(24,6) NOT NULL,
	PRIMARY KEY (run_id, date, source, target, balance_type, sub_account)
);
`

// PostgresStore reads ledgers from and writes runs to Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on pool and makes sure its tables exist
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (r *PostgresStore) LoadBalances(ctx context.Context, from, to time.Time) ([]models.BalanceRecord, error) {
	query := `
		SELECT source, target, date, balance_type, sub_account, value, commitment, unfunded, tags
		FROM ledger_balance
		WHERE date >= $1 AND date <= $2
		ORDER BY date, source, target
	`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []models.BalanceRecord
	for rows.Next() {
		var b models.BalanceRecord
		var value, commitment, unfunded decimal.Decimal
		if err := rows.Scan(&b.Source, &b.Target, &b.Date, &b.BalanceType, &b.SubAccount, &value, &commitment, &unfunded, &b.Tags); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.Date = b.Date.UTC()
		b.Value, b.Commitment, b.Unfunded = fromDecimal(value), fromDecimal(commitment), fromDecimal(unfunded)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresStore) LoadTransactions(ctx context.Context, from, to time.Time) ([]models.TransactionRecord, error) {
	query := `
		SELECT source, target, date, type, cash_flow, commitment_delta, timing
		FROM ledger_transaction
		WHERE date >= $1 AND date <= $2
		ORDER BY date, id
	`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []models.TransactionRecord
	for rows.Next() {
		var t models.TransactionRecord
		var cf decimal.NullDecimal
		var delta decimal.Decimal
		if err := rows.Scan(&t.Source, &t.Target, &t.Date, &t.Type, &cf, &delta, &t.Timing); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Date = t.Date.UTC()
		t.CashFlow = fromNullDecimal(cf)
		t.CommitmentDelta = fromDecimal(delta)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresStore) LoadReference(ctx context.Context) (models.ReferenceData, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, tags FROM dim_reference`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference data: %w", err)
	}
	defer rows.Close()

	out := make(models.ReferenceData)
	for rows.Next() {
		var name string
		var tags []string
		if err := rows.Scan(&name, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan reference data: %w", err)
		}
		out[name] = tags
	}
	return out, rows.Err()
}

func (r *PostgresStore) LoadPriorRows(ctx context.Context, period string) ([]models.CalculationRow, error) {
	var runID string
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM calc_run
		WHERE status = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`, models.RunCompleted).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest run: %w", err)
	}
	return r.queryRows(ctx, runID, period)
}

// ImportLedger upserts balances and reference data and appends transactions, in one transaction
func (r *PostgresStore) ImportLedger(ctx context.Context, balances []models.BalanceRecord, transactions []models.TransactionRecord, reference models.ReferenceData) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, b := range balances {
		batch.Queue(`
			INSERT INTO ledger_balance (source, target, date, balance_type, sub_account, value, commitment, unfunded, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (date, source, target, balance_type, sub_account) DO UPDATE
			SET value = EXCLUDED.value, commitment = EXCLUDED.commitment,
			    unfunded = EXCLUDED.unfunded, tags = EXCLUDED.tags
		`, b.Source, b.Target, b.Date, string(b.BalanceType), b.SubAccount,
			toDecimal(b.Value), toDecimal(b.Commitment), toDecimal(b.Unfunded), nonNil(b.Tags))
	}
	for _, t := range transactions {
		batch.Queue(`
			INSERT INTO ledger_transaction (source, target, date, type, cash_flow, commitment_delta, timing)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.Source, t.Target, t.Date, string(t.Type), toNullDecimal(t.CashFlow), toDecimal(t.CommitmentDelta), string(t.Timing))
	}
	for name, tags := range reference {
		batch.Queue(`
			INSERT INTO dim_reference (name, tags) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET tags = EXCLUDED.tags
		`, name, nonNil(tags))
	}
	if err := execBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("failed to import ledger: %w", err)
	}
	return tx.Commit(ctx)
}

// SaveRun writes the run header, its rows and its balance corrections in one transaction
func (r *PostgresStore) SaveRun(ctx context.Context, run models.RunSummary, rows []models.CalculationRow, corrections []models.BalanceRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO calc_run (id, status, started_at, finished_at, periods, vehicles, row_count, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at, vehicles = EXCLUDED.vehicles,
		    row_count = EXCLUDED.row_count, warnings = EXCLUDED.warnings
	`, run.ID, string(run.Status), run.StartedAt, run.FinishedAt, run.Periods, run.Vehicles, run.Rows, nonNilWarnings(run.Warnings))
	if err != nil {
		return fmt.Errorf("failed to save run header: %w", err)
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO calc_row (run_id, period, path, source, vehicle, target, start_nav, cash_flow, nav, gain,
			                      return_pct, md_denominator, ownership_pct, commitment, unfunded, irr,
			                      ownership_adjusted, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`, run.ID, row.Period, row.Path, row.Source, row.Vehicle, row.Target,
			toDecimal(row.StartNAV), toDecimal(row.CashFlow), toDecimal(row.NAV), toDecimal(row.Gain),
			toDecimal(row.ReturnPct), toDecimal(row.MDDenominator), toDecimal(row.OwnershipPct),
			toDecimal(row.Commitment), toDecimal(row.Unfunded), toNullDecimal(row.IRR),
			row.OwnershipAdjusted, nonNil(row.Tags))
	}
	for _, b := range corrections {
		batch.Queue(`
			INSERT INTO calc_correction (run_id, source, target, date, balance_type, sub_account, value, commitment, unfunded)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id, date, source, target, balance_type, sub_account) DO UPDATE
			SET value = EXCLUDED.value, commitment = EXCLUDED.commitment, unfunded = EXCLUDED.unfunded
		`, run.ID, b.Source, b.Target, b.Date, string(b.BalanceType), b.SubAccount,
			toDecimal(b.Value), toDecimal(b.Commitment), toDecimal(b.Unfunded))
	}
	if err := execBatch(ctx, tx, batch); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return tx.Commit(ctx)
}

func (r *PostgresStore) GetRun(ctx context.Context, id string) (*models.RunSummary, error) {
	query := `
		SELECT id, status, started_at, finished_at, periods, vehicles, row_count, warnings
		FROM calc_run
		WHERE id = $1
	`
	run := &models.RunSummary{}
	var finished *time.Time
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Status, &run.StartedAt, &finished, &run.Periods, &run.Vehicles, &run.Rows, &run.Warnings,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	return run, nil
}

func (r *PostgresStore) ListRows(ctx context.Context, id string) ([]models.CalculationRow, error) {
	if _, err := r.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return r.queryRows(ctx, id, "")
}

// queryRows reads a run's rows, restricted to one period unless period is empty
func (r *PostgresStore) queryRows(ctx context.Context, runID, period string) ([]models.CalculationRow, error) {
	query := `
		SELECT period, path, source, vehicle, target, start_nav, cash_flow, nav, gain, return_pct,
		       md_denominator, ownership_pct, commitment, unfunded, irr, ownership_adjusted, tags
		FROM calc_row
		WHERE run_id = $1 AND ($2 = '' OR period = $2)
		ORDER BY period, path
	`
	rows, err := r.pool.Query(ctx, query, runID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var out []models.CalculationRow
	for rows.Next() {
		var row models.CalculationRow
		var start, cf, nav, gain, ret, md, own, commitment, unfunded decimal.Decimal
		var irr decimal.NullDecimal
		if err := rows.Scan(&row.Period, &row.Path, &row.Source, &row.Vehicle, &row.Target,
			&start, &cf, &nav, &gain, &ret, &md, &own, &commitment, &unfunded, &irr,
			&row.OwnershipAdjusted, &row.Tags); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row.StartNAV, row.CashFlow, row.NAV, row.Gain = fromDecimal(start), fromDecimal(cf), fromDecimal(nav), fromDecimal(gain)
		row.ReturnPct, row.MDDenominator, row.OwnershipPct = fromDecimal(ret), fromDecimal(md), fromDecimal(own)
		row.Commitment, row.Unfunded = fromDecimal(commitment), fromDecimal(unfunded)
		row.IRR = fromNullDecimal(irr)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresStore) Close() {
	r.pool.Close()
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilWarnings(ws []models.Warning) []models.Warning {
	if ws == nil {
		return []models.Warning{}
	}
	return ws
}
