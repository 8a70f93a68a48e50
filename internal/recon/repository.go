package recon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quipu-erp/quipu-erp/internal/periods"
	"github.com/quipu-erp/quipu-erp/internal/platform/db"
)

// Finalization is a stored reconciliation checkpoint.
type Finalization struct {
	ID            int64
	BankAccountID int64
	PeriodID      int64
	Summary       Summary
	Notes         string
	FinalizedAt   time.Time
	FinalizedBy   int64
}

// Repository encapsulates DB operations for bank reconciliation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBankAccount(ctx context.Context, id int64) (BankAccount, error)
	ListUnmatchedTransactions(ctx context.Context, bankAccountID, periodID int64) ([]BankTransaction, error)
	ListUnmatchedLines(ctx context.Context, glAccountCode string, companyID, periodID int64) ([]EntryLine, error)
	// BookBalance sums posted debits minus credits on the GL code through the
	// given date. Voided entries never count.
	BookBalance(ctx context.Context, glAccountCode string, companyID int64, through time.Time) (float64, error)
	// LatestClosingBalance returns the newest statement closing balance for
	// the account and period; found is false when no statement was ingested.
	LatestClosingBalance(ctx context.Context, bankAccountID, periodID int64) (balance float64, found bool, err error)
	GetLatestFinalization(ctx context.Context, bankAccountID, periodID int64) (Finalization, bool, error)
}

// TxRepository exposes methods available within a matching or finalization
// transaction. Lock order is always transaction row first, then line row.
type TxRepository interface {
	GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error)
	GetLineForUpdate(ctx context.Context, id int64) (EntryLine, error)
	MatchExistsForTransaction(ctx context.Context, transactionID int64) (bool, error)
	MatchExistsForLine(ctx context.Context, lineID int64) (bool, error)
	InsertMatch(ctx context.Context, transactionID, lineID, actorID int64, difference float64, at time.Time) (Match, error)
	DeleteMatchByTransaction(ctx context.Context, transactionID int64) (bool, error)
	// LockPeriod takes the period row lock so concurrent posts serialize
	// against the finalization's balance reads.
	LockPeriod(ctx context.Context, periodID int64) error
	BookBalance(ctx context.Context, glAccountCode string, companyID int64, through time.Time) (float64, error)
	LatestClosingBalance(ctx context.Context, bankAccountID, periodID int64) (balance float64, found bool, err error)
	InsertFinalization(ctx context.Context, in FinalizeInput, summary Summary, at time.Time) error
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx so the balance reads
// serve the read-time summary and the finalization transaction alike.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
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

func (r *repository) GetBankAccount(ctx context.Context, id int64) (BankAccount, error) {
	var acct BankAccount
	err := r.db.QueryRow(ctx, `SELECT id, company_id, gl_account_code, bank_name, account_number, currency
FROM bank_accounts WHERE id=$1`, id).
		Scan(&acct.ID, &acct.CompanyID, &acct.GLAccountCode, &acct.BankName, &acct.AccountNumber, &acct.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return acct, nil
}

func (r *repository) ListUnmatchedTransactions(ctx context.Context, bankAccountID, periodID int64) ([]BankTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT t.id, t.statement_id, t.date, t.description, t.reference, t.debit, t.credit, t.balance
FROM bank_transactions t
JOIN bank_statements s ON s.id = t.statement_id
WHERE s.bank_account_id=$1 AND s.period_id=$2
  AND NOT EXISTS (SELECT 1 FROM reconciliation_matches m WHERE m.bank_transaction_id = t.id)
ORDER BY t.date, t.id`, bankAccountID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BankTransaction
	for rows.Next() {
		var t BankTransaction
		if err := rows.Scan(&t.ID, &t.StatementID, &t.Date, &t.Description, &t.Reference, &t.Debit, &t.Credit, &t.Balance); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) ListUnmatchedLines(ctx context.Context, glAccountCode string, companyID, periodID int64) ([]EntryLine, error) {
	rows, err := r.db.Query(ctx, `SELECT l.id, l.entry_id, e.date, l.account_code, l.debit, l.credit, l.memo
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_code=$1 AND e.company_id=$2 AND e.period_id=$3 AND e.status='POSTED'
  AND NOT EXISTS (SELECT 1 FROM reconciliation_matches m WHERE m.entry_line_id = l.id)
ORDER BY e.date, l.id`, glAccountCode, companyID, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryLine
	for rows.Next() {
		var l EntryLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.Date, &l.AccountCode, &l.Debit, &l.Credit, &l.Memo); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) BookBalance(ctx context.Context, glAccountCode string, companyID int64, through time.Time) (float64, error) {
	return bookBalance(ctx, r.db, glAccountCode, companyID, through)
}

func (r *repository) LatestClosingBalance(ctx context.Context, bankAccountID, periodID int64) (float64, bool, error) {
	return latestClosingBalance(ctx, r.db, bankAccountID, periodID)
}

func bookBalance(ctx context.Context, q querier, glAccountCode string, companyID int64, through time.Time) (float64, error) {
	var balance float64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_code=$1 AND e.company_id=$2 AND e.status='POSTED' AND e.date <= $3`, glAccountCode, companyID, through).Scan(&balance)
	return balance, err
}

func latestClosingBalance(ctx context.Context, q querier, bankAccountID, periodID int64) (float64, bool, error) {
	var balance float64
	err := q.QueryRow(ctx, `SELECT closing_balance FROM bank_statements
WHERE bank_account_id=$1 AND period_id=$2
ORDER BY statement_date DESC, id DESC LIMIT 1`, bankAccountID, periodID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return balance, true, nil
}

func (r *repository) GetLatestFinalization(ctx context.Context, bankAccountID, periodID int64) (Finalization, bool, error) {
	var f Finalization
	err := r.db.QueryRow(ctx, `SELECT id, bank_account_id, period_id, book_balance, bank_balance, pending_debits, pending_credits, reconciled_balance, warning, notes, finalized_at, finalized_by
FROM reconciliation_finalizations
WHERE bank_account_id=$1 AND period_id=$2
ORDER BY finalized_at DESC, id DESC LIMIT 1`, bankAccountID, periodID).
		Scan(&f.ID, &f.BankAccountID, &f.PeriodID, &f.Summary.BookBalance, &f.Summary.BankBalance, &f.Summary.PendingDebits, &f.Summary.PendingCredits, &f.Summary.ReconciledBalance, &f.Summary.Warning, &f.Notes, &f.FinalizedAt, &f.FinalizedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Finalization{}, false, nil
		}
		return Finalization{}, false, err
	}
	return f, true, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	var t BankTransaction
	err := r.tx.QueryRow(ctx, `SELECT id, statement_id, date, description, reference, debit, credit, balance
FROM bank_transactions WHERE id=$1 FOR UPDATE`, id).
		Scan(&t.ID, &t.StatementID, &t.Date, &t.Description, &t.Reference, &t.Debit, &t.Credit, &t.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrTransactionNotFound
		}
		return BankTransaction{}, err
	}
	return t, nil
}

func (r *txRepository) GetLineForUpdate(ctx context.Context, id int64) (EntryLine, error) {
	var l EntryLine
	err := r.tx.QueryRow(ctx, `SELECT l.id, l.entry_id, e.date, l.account_code, l.debit, l.credit, l.memo
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.id=$1 AND e.status='POSTED'
FOR UPDATE OF l`, id).
		Scan(&l.ID, &l.EntryID, &l.Date, &l.AccountCode, &l.Debit, &l.Credit, &l.Memo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntryLine{}, ErrLineNotFound
		}
		return EntryLine{}, err
	}
	return l, nil
}

func (r *txRepository) MatchExistsForTransaction(ctx context.Context, transactionID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reconciliation_matches WHERE bank_transaction_id=$1)`, transactionID).Scan(&exists)
	return exists, err
}

func (r *txRepository) MatchExistsForLine(ctx context.Context, lineID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reconciliation_matches WHERE entry_line_id=$1)`, lineID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertMatch(ctx context.Context, transactionID, lineID, actorID int64, difference float64, at time.Time) (Match, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO reconciliation_matches (bank_transaction_id, entry_line_id, matched_by, amount_difference, matched_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, transactionID, lineID, actorID, difference, at).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Match{}, ErrAlreadyMatched
		}
		return Match{}, err
	}
	return Match{
		ID:                id,
		BankTransactionID: transactionID,
		EntryLineID:       lineID,
		MatchedAt:         at,
		MatchedBy:         actorID,
		AmountDifference:  difference,
	}, nil
}

func (r *txRepository) DeleteMatchByTransaction(ctx context.Context, transactionID int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM reconciliation_matches WHERE bank_transaction_id=$1`, transactionID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *txRepository) LockPeriod(ctx context.Context, periodID int64) error {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM periods WHERE id=$1 FOR UPDATE`, periodID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return periods.ErrPeriodNotFound
	}
	return err
}

func (r *txRepository) BookBalance(ctx context.Context, glAccountCode string, companyID int64, through time.Time) (float64, error) {
	return bookBalance(ctx, r.tx, glAccountCode, companyID, through)
}

func (r *txRepository) LatestClosingBalance(ctx context.Context, bankAccountID, periodID int64) (float64, bool, error) {
	return latestClosingBalance(ctx, r.tx, bankAccountID, periodID)
}

func (r *txRepository) InsertFinalization(ctx context.Context, in FinalizeInput, summary Summary, at time.Time) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO reconciliation_finalizations (bank_account_id, period_id, book_balance, bank_balance, pending_debits, pending_credits, reconciled_balance, warning, notes, finalized_at, finalized_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		in.BankAccountID, in.PeriodID, summary.BookBalance, summary.BankBalance, summary.PendingDebits, summary.PendingCredits, summary.ReconciledBalance, summary.Warning, in.Notes, at, in.ActorID)
	return err
}
