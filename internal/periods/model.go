package periods

import (
	"fmt"
	"strings"
	"time"

	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// Status enumerates fiscal period lifecycle states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
	// StatusReopened marks a period that was closed and made editable again.
	// It is kept distinct from OPEN so the audit trail shows the period went
	// through a close.
	StatusReopened Status = "REOPENED"
)

// Period represents one calendar month's accounting window for a company.
type Period struct {
	ID           int64
	CompanyID    int64
	Year         int
	Month        int
	Status       Status
	ClosedAt     *time.Time
	ClosedBy     *int64
	CloseReason  string
	ReopenedAt   *time.Time
	ReopenedBy   *int64
	ReopenReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Start returns the first instant of the period window.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the period window.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// Contains reports whether a date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	return date.Year() == p.Year && int(date.Month()) == p.Month
}

// CanPost reports whether journal mutations are permitted. Posting permission
// derives purely from the current state: OPEN and REOPENED allow it, CLOSED
// denies it.
func CanPost(status Status) bool {
	return status == StatusOpen || status == StatusReopened
}

// CloseInput carries the close request metadata.
type CloseInput struct {
	ActorID int64
	Reason  string
}

// ReopenInput carries the reopen request metadata.
type ReopenInput struct {
	ActorID int64
	Reason  string
}

// UnbalancedEntry identifies a posted entry whose lines do not balance.
type UnbalancedEntry struct {
	EntryID    int64   `json:"entryId"`
	Difference float64 `json:"difference"`
}

// CloseValidationReport is the advisory result of pre-close analysis. The
// validator never mutates state; committing the transition is the service's
// exclusive responsibility.
type CloseValidationReport struct {
	Valid             bool              `json:"valid"`
	Errors            []string          `json:"errors"`
	Warnings          []string          `json:"warnings"`
	UnbalancedEntries []UnbalancedEntry `json:"unbalancedEntries"`
	EntryCount        int               `json:"entryCount"`
}

// CloseValidationError carries the full report when a close is rejected, so
// callers can surface every blocking violation at once.
type CloseValidationError struct {
	Report CloseValidationReport
}

func (e CloseValidationError) Error() string {
	return fmt.Sprintf("periods: close validation failed: %s", strings.Join(e.Report.Errors, "; "))
}

func (e CloseValidationError) Unwrap() error { return shared.ErrValidation }

var (
	// ErrPeriodClosed is returned when a mutation targets a closed period
	// without the closed-period override capability.
	ErrPeriodClosed = fmt.Errorf("periods: period is closed: %w", shared.ErrState)
	// ErrAlreadyClosed is returned when closing a period that is already closed.
	ErrAlreadyClosed = fmt.Errorf("periods: period already closed: %w", shared.ErrState)
	// ErrNotClosed is returned when reopening a period that is not closed.
	ErrNotClosed = fmt.Errorf("periods: only closed periods can be reopened: %w", shared.ErrState)
	// ErrPeriodNotFound indicates a missing period row.
	ErrPeriodNotFound = fmt.Errorf("periods: period not found: %w", shared.ErrNotFound)
	// ErrCloseInProgress indicates another close attempt holds the advisory lock.
	ErrCloseInProgress = fmt.Errorf("periods: close already in progress: %w", shared.ErrConflict)
)
