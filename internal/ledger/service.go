package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/quipu-erp/quipu-erp/internal/money"
	"github.com/quipu-erp/quipu-erp/internal/periods"
	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the posting engine: it validates and commits journal entries
// against an open period and owns void semantics. It never evaluates roles;
// override capabilities arrive as flags from the excluded authorization layer.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the posting engine.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates a draft and persists it as a POSTED entry. The owning
// period is resolved from the draft date and created OPEN when absent, so a
// posted entry's date always falls inside its period window.
func (s *Service) Post(ctx context.Context, draft DraftEntry, opts PostOptions) (JournalEntry, error) {
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return JournalEntry{}, err
	}

	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.ResolvePeriodForUpdate(ctx, draft.CompanyID, draft.Date.Year(), int(draft.Date.Month()))
		if err != nil {
			return err
		}
		if !periods.CanPost(period.Status) && !opts.AllowClosedPeriod {
			return periods.ErrPeriodClosed
		}

		missing, err := tx.MissingOrInactiveAccounts(ctx, accountCodes(draft.Lines))
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return AccountValidationError{Codes: missing}
		}

		hash := IntegrityHash(draft.Date.Format("2006-01-02"), draft.Glosa, draft.Currency, draft.ExchangeRate, draft.Origin, previewLines(draft.Lines))
		inserted, err := tx.InsertEntry(ctx, period.ID, draft, hash)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, draft.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  draft.PostedBy,
			Action:   shared.ActionJournalPost,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"origin":    string(entry.Origin),
				"period_id": entry.PeriodID,
				"total":     entryTotal(entry.Lines),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// Void marks an entry VOIDED. Lines are retained for audit and excluded from
// every balance computation elsewhere; the entry is immutable afterwards.
func (s *Service) Void(ctx context.Context, entryID int64, opts VoidOptions) (JournalEntry, error) {
	if entryID == 0 {
		return JournalEntry{}, fmt.Errorf("ledger: entry id required: %w", shared.ErrValidation)
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if current.Status == EntryStatusVoided {
			return ErrAlreadyVoided
		}
		period, err := tx.GetPeriodForUpdate(ctx, current.PeriodID)
		if err != nil {
			return err
		}
		if !periods.CanPost(period.Status) && !opts.AllowClosedPeriod {
			return periods.ErrPeriodClosed
		}
		if err := tx.UpdateEntryStatus(ctx, current.ID, EntryStatusVoided); err != nil {
			return err
		}
		current.Status = EntryStatusVoided
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  opts.ActorID,
			Action:   shared.ActionJournalVoid,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta:     map[string]any{"reason": opts.Reason},
			At:       s.now(),
		})
	}
	return entry, nil
}

// Get returns a single entry with lines.
func (s *Service) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// List returns entries matching the filter, for the read-only query interface
// consumed by reporting collaborators.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	return s.repo.ListEntries(ctx, filter)
}

// VerifyIntegrity recomputes an entry's hash and compares it to the stored
// value. Called on demand, not on every read.
func (s *Service) VerifyIntegrity(ctx context.Context, entryID int64) error {
	entry, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	computed := EntryHash(entry)
	if computed != entry.IntegrityHash {
		return IntegrityError{EntryID: entry.ID, Stored: entry.IntegrityHash, Computed: computed}
	}
	return nil
}

// VerifyPeriodIntegrity recomputes hashes for every posted entry in a period
// and returns the mismatches. Used by the scheduled integrity scan.
func (s *Service) VerifyPeriodIntegrity(ctx context.Context, periodID int64) ([]IntegrityError, error) {
	entries, err := s.repo.ListPostedByPeriod(ctx, periodID)
	if err != nil {
		return nil, err
	}
	var mismatches []IntegrityError
	for _, entry := range entries {
		if computed := EntryHash(entry); computed != entry.IntegrityHash {
			mismatches = append(mismatches, IntegrityError{EntryID: entry.ID, Stored: entry.IntegrityHash, Computed: computed})
		}
	}
	return mismatches, nil
}

func accountCodes(lines []DraftLine) []string {
	seen := make(map[string]bool, len(lines))
	codes := make([]string, 0, len(lines))
	for _, line := range lines {
		if !seen[line.AccountCode] {
			seen[line.AccountCode] = true
			codes = append(codes, line.AccountCode)
		}
	}
	return codes
}

func previewLines(lines []DraftLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return out
}

func entryTotal(lines []JournalLine) float64 {
	var total float64
	for _, line := range lines {
		total = money.Sum(total, line.Debit)
	}
	return total
}
