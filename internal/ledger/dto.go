package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quipu-erp/quipu-erp/internal/money"
)

// DraftLine describes one journal line in a posting request.
type DraftLine struct {
	AccountCode  string
	ThirdPartyID *int64
	CostCenterID *int64
	Debit        float64
	Credit       float64
	Memo         string
}

// DraftEntry groups fields required to post a journal entry. Upstream
// posting services (purchases, sales, inventory) build drafts and tag them
// with their origin and a source id for idempotency.
type DraftEntry struct {
	CompanyID    int64
	Date         time.Time
	Glosa        string
	Currency     string
	ExchangeRate float64
	Origin       EntryOrigin
	SourceID     uuid.UUID
	PostedBy     int64
	Lines        []DraftLine
}

// Normalize applies banker's rounding to every line amount so all later
// comparisons work on two-decimal values. The lines are copied first; the
// caller's slice keeps its original amounts.
func (d *DraftEntry) Normalize() {
	lines := make([]DraftLine, len(d.Lines))
	copy(lines, d.Lines)
	for i := range lines {
		lines[i].Debit = money.Round2(lines[i].Debit)
		lines[i].Credit = money.Round2(lines[i].Credit)
	}
	d.Lines = lines
}

// Validate checks the draft structurally, before any I/O. Line-level
// problems are accumulated so one pass reports them all; the headline
// failure modes keep their own error types.
func (d DraftEntry) Validate() error {
	if len(d.Lines) < 2 {
		return ErrTooFewLines
	}

	var issues []string
	if d.CompanyID == 0 {
		issues = append(issues, "company required")
	}
	if d.Date.IsZero() {
		issues = append(issues, "date required")
	}
	if strings.TrimSpace(d.Glosa) == "" {
		issues = append(issues, "glosa required")
	}
	if d.Currency == "" {
		issues = append(issues, "currency required")
	}
	if d.ExchangeRate <= 0 {
		issues = append(issues, "exchange rate must be positive")
	}
	if !ValidOrigin(d.Origin) {
		issues = append(issues, fmt.Sprintf("unknown origin %q", d.Origin))
	}

	var debit, credit float64
	for idx, line := range d.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			issues = append(issues, fmt.Sprintf("line %d missing account code", idx+1))
		}
		if line.Debit < 0 || line.Credit < 0 {
			issues = append(issues, fmt.Sprintf("line %d has a negative amount", idx+1))
		}
		if line.Debit != 0 && line.Credit != 0 {
			issues = append(issues, fmt.Sprintf("line %d cannot carry both debit and credit", idx+1))
		}
		if line.Debit == 0 && line.Credit == 0 {
			issues = append(issues, fmt.Sprintf("line %d has no amount", idx+1))
		}
		debit = money.Sum(debit, money.Round2(line.Debit))
		credit = money.Sum(credit, money.Round2(line.Credit))
	}
	if len(issues) > 0 {
		return DraftValidationError{Issues: issues}
	}

	if !money.WithinTolerance(debit, credit) {
		return UnbalancedError{Difference: money.Difference(debit, credit)}
	}
	return nil
}

// PostOptions carries per-call capabilities supplied by the excluded
// authorization layer. The engine never evaluates roles itself.
type PostOptions struct {
	AllowClosedPeriod bool
}

// VoidOptions carries void request metadata; voiding is a mutation and is
// subject to the same period-state rule as posting.
type VoidOptions struct {
	ActorID           int64
	Reason            string
	AllowClosedPeriod bool
}

// ListFilter narrows entry listings for the read-only query interface.
type ListFilter struct {
	CompanyID int64
	PeriodID  int64
	Status    EntryStatus
	Origin    EntryOrigin
	Limit     int
	Offset    int
}
