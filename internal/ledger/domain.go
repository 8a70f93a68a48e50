package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoided EntryStatus = "VOIDED"
)

// EntryOrigin tags which upstream module produced a draft. Purchases, sales
// and inventory postings are built by excluded upstream services that call
// the same Post operation with pre-built drafts.
type EntryOrigin string

const (
	OriginManual    EntryOrigin = "MANUAL"
	OriginPurchases EntryOrigin = "PURCHASES"
	OriginSales     EntryOrigin = "SALES"
	OriginInventory EntryOrigin = "INVENTORY"
)

// ValidOrigin reports whether the origin tag is one of the known producers.
func ValidOrigin(o EntryOrigin) bool {
	switch o {
	case OriginManual, OriginPurchases, OriginSales, OriginInventory:
		return true
	}
	return false
}

// Account is a PCGE chart-of-accounts entry. Master-data CRUD lives outside
// this core; posting only checks existence and active state.
type Account struct {
	ID       int64
	Code     string
	Name     string
	IsActive bool
}

// JournalEntry captures a posted double-entry record.
type JournalEntry struct {
	ID            int64
	PeriodID      int64
	CompanyID     int64
	Date          time.Time
	Glosa         string
	Currency      string
	ExchangeRate  float64
	Origin        EntryOrigin
	SourceID      uuid.UUID
	Status        EntryStatus
	IntegrityHash string
	PostedBy      int64
	PostedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is non-zero.
type JournalLine struct {
	ID           int64
	EntryID      int64
	AccountCode  string
	ThirdPartyID *int64
	CostCenterID *int64
	Debit        float64
	Credit       float64
	Memo         string
}

// Amount returns the non-zero side of the line.
func (l JournalLine) Amount() float64 {
	if l.Debit != 0 {
		return l.Debit
	}
	return l.Credit
}

var (
	// ErrTooFewLines is returned when a draft has fewer than two lines.
	ErrTooFewLines = fmt.Errorf("ledger: journal requires at least two lines: %w", shared.ErrValidation)
	// ErrUnbalanced indicates the debit and credit totals differ beyond tolerance.
	ErrUnbalanced = fmt.Errorf("ledger: journal lines must balance: %w", shared.ErrValidation)
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = fmt.Errorf("ledger: journal entry not found: %w", shared.ErrNotFound)
	// ErrAlreadyVoided indicates the entry was voided before.
	ErrAlreadyVoided = fmt.Errorf("ledger: journal entry already voided: %w", shared.ErrState)
	// ErrSourceAlreadyLinked indicates an upstream draft was posted before.
	ErrSourceAlreadyLinked = fmt.Errorf("ledger: source document already posted: %w", shared.ErrConflict)
)

// UnbalancedError reports how far apart the totals are.
type UnbalancedError struct {
	Difference float64
}

func (e UnbalancedError) Error() string {
	return fmt.Sprintf("ledger: journal lines must balance, difference %.2f", e.Difference)
}

func (e UnbalancedError) Unwrap() error { return ErrUnbalanced }

// DraftValidationError accumulates every structural problem found in a
// draft's lines so the caller can fix them in one pass.
type DraftValidationError struct {
	Issues []string
}

func (e DraftValidationError) Error() string {
	return "ledger: invalid draft: " + strings.Join(e.Issues, "; ")
}

func (e DraftValidationError) Unwrap() error { return shared.ErrValidation }

// AccountValidationError lists every referenced account code that is missing
// or inactive.
type AccountValidationError struct {
	Codes []string
}

func (e AccountValidationError) Error() string {
	return "ledger: unknown or inactive accounts: " + strings.Join(e.Codes, ", ")
}

func (e AccountValidationError) Unwrap() error { return shared.ErrValidation }

// IntegrityError reports a stored hash that no longer matches the entry's
// content. The hash is a checksum against accidental corruption, not a
// security control.
type IntegrityError struct {
	EntryID  int64
	Stored   string
	Computed string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("ledger: integrity hash mismatch on entry %d", e.EntryID)
}

func (e IntegrityError) Unwrap() error { return shared.ErrIntegrity }
