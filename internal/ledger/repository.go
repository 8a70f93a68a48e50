package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quipu-erp/quipu-erp/internal/periods"
	"github.com/quipu-erp/quipu-erp/internal/platform/db"
)

const entryColumns = `id, period_id, company_id, date, glosa, currency, exchange_rate, origin, source_id, status, integrity_hash, posted_by, posted_at, created_at, updated_at`

// Repository encapsulates DB operations for the posting engine.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error)
	// ListPostedByPeriod loads posted entries with lines for integrity scans.
	ListPostedByPeriod(ctx context.Context, periodID int64) ([]JournalEntry, error)
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	// ResolvePeriodForUpdate finds or creates the period owning the given
	// company/year/month and locks its row. New periods start OPEN.
	ResolvePeriodForUpdate(ctx context.Context, companyID int64, year, month int) (periods.Period, error)
	GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error)
	// MissingOrInactiveAccounts returns the subset of codes that do not
	// reference an existing active account.
	MissingOrInactiveAccounts(ctx context.Context, codes []string) ([]string, error)
	InsertEntry(ctx context.Context, periodID int64, draft DraftEntry, hash string) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []DraftLine) ([]JournalLine, error)
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	UpdateEntryStatus(ctx context.Context, id int64, status EntryStatus) error
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

func (r *repository) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := loadLines(ctx, r.db, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) ListEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE company_id=$1`
	args := []any{filter.CompanyID}
	if filter.PeriodID != 0 {
		args = append(args, filter.PeriodID)
		query += fmt.Sprintf(" AND period_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.Origin != "" {
		args = append(args, filter.Origin)
		query += fmt.Sprintf(" AND origin=$%d", len(args))
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) ListPostedByPeriod(ctx context.Context, periodID int64) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE period_id=$1 AND status='POSTED' ORDER BY id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lines, err := loadLines(ctx, r.db, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) ResolvePeriodForUpdate(ctx context.Context, companyID int64, year, month int) (periods.Period, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO periods (company_id, year, month, status)
VALUES ($1, $2, $3, 'OPEN')
ON CONFLICT (company_id, year, month) DO NOTHING`, companyID, year, month)
	if err != nil {
		return periods.Period{}, err
	}
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT id, company_id, year, month, status, closed_at, closed_by, close_reason, reopened_at, reopened_by, reopen_reason, created_at, updated_at
FROM periods WHERE company_id=$1 AND year=$2 AND month=$3 FOR UPDATE`, companyID, year, month))
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT id, company_id, year, month, status, closed_at, closed_by, close_reason, reopened_at, reopened_by, reopen_reason, created_at, updated_at
FROM periods WHERE id=$1 FOR UPDATE`, periodID))
}

func (r *txRepository) MissingOrInactiveAccounts(ctx context.Context, codes []string) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT c.code
FROM unnest($1::text[]) AS c(code)
LEFT JOIN accounts a ON a.code = c.code
WHERE a.code IS NULL OR NOT a.is_active
ORDER BY c.code`, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var missing []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		missing = append(missing, code)
	}
	return missing, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, periodID int64, draft DraftEntry, hash string) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (period_id, company_id, date, glosa, currency, exchange_rate, origin, source_id, status, integrity_hash, posted_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'POSTED', $9, $10)
RETURNING id, posted_at, created_at, updated_at`,
		periodID, draft.CompanyID, draft.Date, draft.Glosa, draft.Currency, draft.ExchangeRate, draft.Origin, nullUUID(draft.SourceID), hash, draft.PostedBy)
	entry := JournalEntry{
		PeriodID:      periodID,
		CompanyID:     draft.CompanyID,
		Date:          draft.Date,
		Glosa:         draft.Glosa,
		Currency:      draft.Currency,
		ExchangeRate:  draft.ExchangeRate,
		Origin:        draft.Origin,
		SourceID:      draft.SourceID,
		Status:        EntryStatusPosted,
		IntegrityHash: hash,
		PostedBy:      draft.PostedBy,
	}
	if err := row.Scan(&entry.ID, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_journal_entries_source" {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []DraftLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_code, third_party_id, cost_center_id, debit, credit, memo)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			entryID, line.AccountCode, line.ThirdPartyID, line.CostCenterID, line.Debit, line.Credit, line.Memo).Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, JournalLine{
			ID:           id,
			EntryID:      entryID,
			AccountCode:  line.AccountCode,
			ThirdPartyID: line.ThirdPartyID,
			CostCenterID: line.CostCenterID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Memo:         line.Memo,
		})
	}
	return out, nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := loadLines(ctx, r.tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, id int64, status EntryStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_code, third_party_id, cost_center_id, debit, credit, memo
FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountCode, &line.ThirdPartyID, &line.CostCenterID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (JournalEntry, error) {
	var entry JournalEntry
	var sourceID *uuid.UUID
	err := row.Scan(&entry.ID, &entry.PeriodID, &entry.CompanyID, &entry.Date, &entry.Glosa, &entry.Currency, &entry.ExchangeRate, &entry.Origin, &sourceID, &entry.Status, &entry.IntegrityHash, &entry.PostedBy, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	if sourceID != nil {
		entry.SourceID = *sourceID
	}
	return entry, nil
}

func scanPeriod(row rowScanner) (periods.Period, error) {
	var p periods.Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Year, &p.Month, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CloseReason, &p.ReopenedAt, &p.ReopenedBy, &p.ReopenReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, periods.ErrPeriodNotFound
		}
		return periods.Period{}, err
	}
	return p, nil
}

func nullUUID(val uuid.UUID) any {
	if val == uuid.Nil {
		return nil
	}
	return val
}
