package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quipu-erp/quipu-erp/internal/platform/db"
)

const periodColumns = `id, company_id, year, month, status, closed_at, closed_by, close_reason, reopened_at, reopened_by, reopen_reason, created_at, updated_at`

// Repository encapsulates DB operations for period lifecycle management.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPeriod(ctx context.Context, id int64) (Period, error)
	ListPeriods(ctx context.Context, companyID int64) ([]Period, error)
	// CollectValidationData gathers a read-only snapshot for the standalone
	// validate operation.
	CollectValidationData(ctx context.Context, periodID int64) (ValidationData, error)
}

// TxRepository exposes methods available within a close/reopen transaction.
type TxRepository interface {
	GetPeriodForUpdate(ctx context.Context, id int64) (Period, error)
	CollectValidationData(ctx context.Context, periodID int64) (ValidationData, error)
	MarkClosed(ctx context.Context, id int64, in CloseInput, at time.Time) error
	MarkReopened(ctx context.Context, id int64, in ReopenInput, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the provided pool.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id))
}

func (r *repository) ListPeriods(ctx context.Context, companyID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods WHERE company_id=$1 ORDER BY year DESC, month DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) CollectValidationData(ctx context.Context, periodID int64) (ValidationData, error) {
	return collectValidationData(ctx, r.db, periodID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) CollectValidationData(ctx context.Context, periodID int64) (ValidationData, error) {
	return collectValidationData(ctx, r.tx, periodID)
}

func (r *txRepository) MarkClosed(ctx context.Context, id int64, in CloseInput, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE periods SET status='CLOSED', closed_at=$2, closed_by=$3, close_reason=$4, updated_at=NOW() WHERE id=$1`, id, at, in.ActorID, in.Reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) MarkReopened(ctx context.Context, id int64, in ReopenInput, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE periods SET status='REOPENED', reopened_at=$2, reopened_by=$3, reopen_reason=$4, updated_at=NOW() WHERE id=$1`, id, at, in.ActorID, in.Reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx so the validation
// snapshot can be collected inside or outside a close transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func collectValidationData(ctx context.Context, q querier, periodID int64) (ValidationData, error) {
	var data ValidationData

	// Only POSTED entries are inspected: voided entries are immutable audit
	// records excluded from every balance and closing check.
	rows, err := q.Query(ctx, `SELECT e.id, e.date, e.glosa, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
WHERE e.period_id=$1 AND e.status='POSTED'
GROUP BY e.id, e.date, e.glosa
ORDER BY e.id`, periodID)
	if err != nil {
		return ValidationData{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var row EntryCheckRow
		if err := rows.Scan(&row.EntryID, &row.Date, &row.Glosa, &row.Debit, &row.Credit); err != nil {
			return ValidationData{}, err
		}
		data.Entries = append(data.Entries, row)
	}
	if err := rows.Err(); err != nil {
		return ValidationData{}, err
	}

	accountRows, err := q.Query(ctx, `SELECT DISTINCT l.account_code
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
LEFT JOIN accounts a ON a.code = l.account_code
WHERE e.period_id=$1 AND e.status='POSTED' AND (a.code IS NULL OR NOT a.is_active)
ORDER BY l.account_code`, periodID)
	if err != nil {
		return ValidationData{}, err
	}
	defer accountRows.Close()
	for accountRows.Next() {
		var code string
		if err := accountRows.Scan(&code); err != nil {
			return ValidationData{}, err
		}
		data.BadAccountCodes = append(data.BadAccountCodes, code)
	}
	return data, accountRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(row rowScanner) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Year, &p.Month, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CloseReason, &p.ReopenedAt, &p.ReopenedBy, &p.ReopenReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}
