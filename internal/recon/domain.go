package recon

import (
	"fmt"
	"time"

	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// BankAccount maps a bank account to its general-ledger cash/bank account.
type BankAccount struct {
	ID            int64
	CompanyID     int64
	GLAccountCode string
	BankName      string
	AccountNumber string
	Currency      string
}

// BankStatement batches transactions for one bank account and period.
type BankStatement struct {
	ID             int64
	BankAccountID  int64
	PeriodID       int64
	StatementDate  time.Time
	OpeningBalance float64
	ClosingBalance float64
}

// BankTransaction is one statement movement. Debit and credit reflect the
// bank's view; exactly one side is non-zero.
type BankTransaction struct {
	ID          int64
	StatementID int64
	Date        time.Time
	Description string
	Reference   string
	Debit       float64
	Credit      float64
	Balance     float64
}

// Amount returns the non-zero side of the transaction.
func (t BankTransaction) Amount() float64 {
	if t.Debit != 0 {
		return t.Debit
	}
	return t.Credit
}

// EntryLine is the ledger-side view the matcher works against: a line of a
// POSTED journal entry on the bank account's GL code.
type EntryLine struct {
	ID          int64
	EntryID     int64
	Date        time.Time
	AccountCode string
	Debit       float64
	Credit      float64
	Memo        string
}

// Amount returns the non-zero side of the line.
func (l EntryLine) Amount() float64 {
	if l.Debit != 0 {
		return l.Debit
	}
	return l.Credit
}

// Match pairs one bank transaction with one entry line. Both foreign keys
// are unique, so each side can appear in at most one active match.
type Match struct {
	ID                int64
	BankTransactionID int64
	EntryLineID       int64
	MatchedAt         time.Time
	MatchedBy         int64
	AmountDifference  float64
}

// Suggestion is one auto-match candidate produced by Suggest.
type Suggestion struct {
	TransactionID int64   `json:"transactionId"`
	LineID        int64   `json:"lineId"`
	Confidence    float64 `json:"confidence"`
	Reason        string  `json:"reason"`
}

// Summary is the derived reconciliation position for one bank account and
// period; it is computed at read time, never stored as mutable state.
type Summary struct {
	BookBalance       float64 `json:"bookBalance"`
	BankBalance       float64 `json:"bankBalance"`
	PendingDebits     float64 `json:"pendingDebits"`
	PendingCredits    float64 `json:"pendingCredits"`
	ReconciledBalance float64 `json:"reconciledBalance"`
	// HasStatement is false when no bank statement was ingested for the
	// period; BankBalance is then zero and not meaningful.
	HasStatement bool `json:"hasStatement"`
	// Warning flags |reconciledBalance - bankBalance| beyond tolerance.
	// Finalization is a checkpoint, not a hard gate, so this never fails.
	Warning bool `json:"unreconciledLinesWarning"`
}

// MatchInput carries a manual match request.
type MatchInput struct {
	TransactionID int64
	LineID        int64
	ActorID       int64
	// AllowMismatch acknowledges an amount difference beyond tolerance.
	// Supplied by the excluded authorization/UI layer.
	AllowMismatch bool
}

// Pair identifies one suggestion being applied in bulk.
type Pair struct {
	TransactionID int64 `json:"transactionId"`
	LineID        int64 `json:"lineId"`
}

// BulkMatchInput applies many pairs inside one transaction.
type BulkMatchInput struct {
	Pairs         []Pair
	ActorID       int64
	AllowMismatch bool
}

// SkippedPair reports a bulk member that could not be applied.
type SkippedPair struct {
	Pair   Pair   `json:"pair"`
	Reason string `json:"reason"`
}

// BulkMatchResult is the deliberately partial outcome of BulkMatch: claimed
// pairs are skipped, not fatal.
type BulkMatchResult struct {
	Matched []Match       `json:"matched"`
	Skipped []SkippedPair `json:"skipped"`
}

// FinalizeInput closes out a period's reconciliation for one bank account.
type FinalizeInput struct {
	BankAccountID  int64
	PeriodID       int64
	PendingDebits  float64
	PendingCredits float64
	Notes          string
	ActorID        int64
}

var (
	// ErrAlreadyMatched is returned when either side of a pair has an active
	// match, including when the claim is lost to a concurrent writer.
	ErrAlreadyMatched = fmt.Errorf("recon: transaction or line already matched: %w", shared.ErrConflict)
	// ErrMatchNotFound indicates no active match for the transaction.
	ErrMatchNotFound = fmt.Errorf("recon: no active match for transaction: %w", shared.ErrNotFound)
	// ErrBankAccountNotFound indicates a missing bank account.
	ErrBankAccountNotFound = fmt.Errorf("recon: bank account not found: %w", shared.ErrNotFound)
	// ErrTransactionNotFound indicates a missing bank transaction.
	ErrTransactionNotFound = fmt.Errorf("recon: bank transaction not found: %w", shared.ErrNotFound)
	// ErrLineNotFound indicates a missing entry line.
	ErrLineNotFound = fmt.Errorf("recon: entry line not found: %w", shared.ErrNotFound)
	// ErrNoStatement rejects a finalization when no bank statement was
	// ingested for the account and period.
	ErrNoStatement = fmt.Errorf("recon: no bank statement for period: %w", shared.ErrState)
)

// AmountMismatchError is returned when a pair differs beyond tolerance and
// the caller did not acknowledge the mismatch.
type AmountMismatchError struct {
	Difference float64
}

func (e AmountMismatchError) Error() string {
	return fmt.Sprintf("recon: amounts differ by %.2f, mismatch not acknowledged", e.Difference)
}

func (e AmountMismatchError) Unwrap() error { return shared.ErrValidation }
