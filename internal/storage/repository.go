// Package storage persists templates, payment sources, balances and
// materialized month instances in SQLite. The repository hands the core
// packages fully-typed values and knows nothing about their accounting
// rules.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"mensile/internal/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- templates ---

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t core.Template) error {
	start := ""
	if !t.StartDate.IsZero() {
		start = t.StartDate.String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, kind, billing_period, amount_cents, start_date,
			day_of_month, is_payoff, is_active, category_id, payment_source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, string(t.Kind), string(t.BillingPeriod), t.Amount.Cents, start,
		t.DayOfMonth, t.IsPayoff, t.IsActive, t.CategoryID, t.PaymentSourceID)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListActiveTemplates(ctx context.Context) ([]core.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, kind, billing_period, amount_cents, start_date,
			day_of_month, is_payoff, is_active, category_id, payment_source_id
		FROM templates WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []core.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(rows *sql.Rows) (core.Template, error) {
	var t core.Template
	var kind, period, start string
	if err := rows.Scan(&t.ID, &t.Name, &kind, &period, &t.Amount.Cents, &start,
		&t.DayOfMonth, &t.IsPayoff, &t.IsActive, &t.CategoryID, &t.PaymentSourceID); err != nil {
		return t, fmt.Errorf("scan template: %w", err)
	}
	t.Kind = core.InstanceKind(kind)
	t.BillingPeriod = core.BillingPeriod(period)
	if start != "" {
		d, err := core.ParseDate(start)
		if err != nil {
			return t, fmt.Errorf("template %s: %w", t.ID, err)
		}
		t.StartDate = d
	}
	return t, nil
}

// --- payment sources ---

func (r *SQLiteRepository) CreatePaymentSource(ctx context.Context, s core.PaymentSource) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_sources (id, name, type, pay_off_monthly, exclude_from_leftover, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Type, s.PayOffMonthly, s.ExcludeFromLeftover, s.IsActive)
	if err != nil {
		return fmt.Errorf("create payment source: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListPaymentSources(ctx context.Context) ([]core.PaymentSource, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, pay_off_monthly, exclude_from_leftover, is_active
		FROM payment_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list payment sources: %w", err)
	}
	defer rows.Close()

	var out []core.PaymentSource
	for rows.Next() {
		var s core.PaymentSource
		if err := rows.Scan(&s.ID, &s.Name, &s.Type, &s.PayOffMonthly, &s.ExcludeFromLeftover, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scan payment source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- balances ---

func (r *SQLiteRepository) UpsertBalance(ctx context.Context, month core.Month, sourceID string, amount core.Money) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO balances (month, source_id, amount_cents, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(month, source_id) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			updated_at = excluded.updated_at`,
		month.String(), sourceID, amount.Cents)
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// GetBalances returns the balance map for a month, keyed by source id.
// Sources without an entry are simply absent; the leftover calculator
// treats absence as a completeness failure, not this layer.
func (r *SQLiteRepository) GetBalances(ctx context.Context, month core.Month) (map[string]core.Money, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source_id, amount_cents FROM balances WHERE month = ?`, month.String())
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.Money)
	for rows.Next() {
		var id string
		var cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[id] = core.Money{Cents: cents}
	}
	return out, rows.Err()
}

// --- instances & occurrences ---

// CreateInstance stores an instance together with its occurrence sequence
// in one transaction.
func (r *SQLiteRepository) CreateInstance(ctx context.Context, inst core.Instance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO instances (id, template_id, name, kind, month, billing_period,
			expected_cents, is_adhoc, is_default, is_payoff, category_id, payment_source_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.TemplateID, inst.Name, string(inst.Kind), inst.Month.String(),
		string(inst.BillingPeriod), inst.ExpectedAmount.Cents, inst.IsAdhoc,
		inst.IsDefault, inst.IsPayoff, inst.CategoryID, inst.PaymentSourceID)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}

	if err := insertOccurrences(ctx, tx, inst.ID, inst.Occurrences); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceOccurrences swaps an instance's occurrence sequence wholesale.
// Ledger transitions return a full new sequence, so replace-all is both
// simpler and safer than diffing.
func (r *SQLiteRepository) ReplaceOccurrences(ctx context.Context, instanceID string, occs []core.Occurrence) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("delete occurrences: %w", err)
	}
	if err := insertOccurrences(ctx, tx, instanceID, occs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertOccurrences(ctx context.Context, tx *sql.Tx, instanceID string, occs []core.Occurrence) error {
	for _, o := range occs {
		closed := ""
		if !o.ClosedDate.IsZero() {
			closed = o.ClosedDate.String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO occurrences (id, instance_id, seq, expected_date, expected_cents,
				is_closed, closed_date, payment_source_id, is_adhoc, notes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, instanceID, o.Sequence, o.ExpectedDate.String(), o.ExpectedAmount.Cents,
			o.IsClosed, closed, o.PaymentSourceID, o.IsAdhoc, o.Notes)
		if err != nil {
			return fmt.Errorf("insert occurrence %s: %w", o.ID, err)
		}
	}
	return nil
}

// GetInstance loads one instance with its occurrences in sequence order.
func (r *SQLiteRepository) GetInstance(ctx context.Context, id string) (core.Instance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, template_id, name, kind, month, billing_period, expected_cents,
			is_adhoc, is_default, is_payoff, category_id, payment_source_id
		FROM instances WHERE id = ?`, id)

	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Instance{}, fmt.Errorf("instance %s: %w", id, ErrNotFound)
		}
		return core.Instance{}, err
	}

	occs, err := r.loadOccurrences(ctx, inst.ID)
	if err != nil {
		return core.Instance{}, err
	}
	inst.Occurrences = occs
	return inst, nil
}

// ListInstances loads every instance of a month, occurrences included.
func (r *SQLiteRepository) ListInstances(ctx context.Context, month core.Month) ([]core.Instance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, name, kind, month, billing_period, expected_cents,
			is_adhoc, is_default, is_payoff, category_id, payment_source_id
		FROM instances WHERE month = ? ORDER BY name`, month.String())
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []core.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		occs, err := r.loadOccurrences(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Occurrences = occs
	}
	return out, nil
}

// HasInstanceForTemplate reports whether a template is already materialized
// for a month. Materialization must be idempotent across worker runs.
func (r *SQLiteRepository) HasInstanceForTemplate(ctx context.Context, templateID string, month core.Month) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM instances WHERE template_id = ? AND month = ?`,
		templateID, month.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check instance for template: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) loadOccurrences(ctx context.Context, instanceID string) ([]core.Occurrence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seq, expected_date, expected_cents, is_closed, closed_date,
			payment_source_id, is_adhoc, notes
		FROM occurrences WHERE instance_id = ? ORDER BY seq`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load occurrences: %w", err)
	}
	defer rows.Close()

	var out []core.Occurrence
	for rows.Next() {
		var o core.Occurrence
		var expected, closed string
		if err := rows.Scan(&o.ID, &o.Sequence, &expected, &o.ExpectedAmount.Cents,
			&o.IsClosed, &closed, &o.PaymentSourceID, &o.IsAdhoc, &o.Notes); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		if o.ExpectedDate, err = core.ParseDate(expected); err != nil {
			return nil, fmt.Errorf("occurrence %s: %w", o.ID, err)
		}
		if closed != "" {
			if o.ClosedDate, err = core.ParseDate(closed); err != nil {
				return nil, fmt.Errorf("occurrence %s: %w", o.ID, err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (core.Instance, error) {
	var inst core.Instance
	var kind, month, period string
	err := row.Scan(&inst.ID, &inst.TemplateID, &inst.Name, &kind, &month, &period,
		&inst.ExpectedAmount.Cents, &inst.IsAdhoc, &inst.IsDefault, &inst.IsPayoff,
		&inst.CategoryID, &inst.PaymentSourceID)
	if err != nil {
		return inst, err
	}
	inst.Kind = core.InstanceKind(kind)
	inst.BillingPeriod = core.BillingPeriod(period)
	if inst.Month, err = core.ParseMonth(month); err != nil {
		return inst, fmt.Errorf("instance %s: %w", inst.ID, err)
	}
	return inst, nil
}
