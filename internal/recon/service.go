package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quipu-erp/quipu-erp/internal/money"
	"github.com/quipu-erp/quipu-erp/internal/periods"
	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// AuditPort records reconciliation events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PeriodPort resolves period windows for balance cutoffs.
type PeriodPort interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// Service is the reconciliation matcher. Matching and unmatching are audit
// actions, permitted regardless of period state.
type Service struct {
	repo    Repository
	audit   AuditPort
	periods PeriodPort
	cfg     SuggestConfig
	now     func() time.Time
}

// NewService constructs the matcher with the given suggestion tuning.
func NewService(repo Repository, audit AuditPort, periodPort PeriodPort, cfg SuggestConfig) *Service {
	return &Service{repo: repo, audit: audit, periods: periodPort, cfg: cfg.normalized(), now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListUnreconciled returns bank transactions with no active match and entry
// lines on the account's GL code with no active match, both scoped to the
// period. The two reads are independent and run concurrently.
func (s *Service) ListUnreconciled(ctx context.Context, bankAccountID, periodID int64) ([]BankTransaction, []EntryLine, error) {
	acct, err := s.repo.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return nil, nil, err
	}

	var (
		txns  []BankTransaction
		lines []EntryLine
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, err = s.repo.ListUnmatchedTransactions(gctx, bankAccountID, periodID)
		return err
	})
	g.Go(func() error {
		var err error
		lines, err = s.repo.ListUnmatchedLines(gctx, acct.GLAccountCode, acct.CompanyID, periodID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return txns, lines, nil
}

// Suggest computes auto-match candidates for the period. It is read-only and
// deterministic: repeated calls over the same unreconciled sets return
// identical ordering and confidences.
func (s *Service) Suggest(ctx context.Context, bankAccountID, periodID int64) ([]Suggestion, error) {
	txns, lines, err := s.ListUnreconciled(ctx, bankAccountID, periodID)
	if err != nil {
		return nil, err
	}
	return BuildSuggestions(txns, lines, s.cfg), nil
}

// MatchPair records a manual match between one transaction and one line.
// Differences beyond tolerance require explicit acknowledgement through
// AllowMismatch.
func (s *Service) MatchPair(ctx context.Context, in MatchInput) (Match, error) {
	if in.TransactionID == 0 || in.LineID == 0 {
		return Match{}, fmt.Errorf("recon: transaction and line ids required: %w", shared.ErrValidation)
	}
	var match Match
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		match, err = s.matchInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Match{}, err
	}
	s.recordMatchAudit(ctx, in.ActorID, match)
	return match, nil
}

// BulkMatch applies suggestions inside one transaction. Pairs claimed by a
// concurrent writer since suggestion time are skipped and reported, not
// fatal; this partial-failure policy is deliberate and differs from Post.
func (s *Service) BulkMatch(ctx context.Context, in BulkMatchInput) (BulkMatchResult, error) {
	result := BulkMatchResult{Matched: []Match{}, Skipped: []SkippedPair{}}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, pair := range in.Pairs {
			match, err := s.matchInTx(ctx, tx, MatchInput{
				TransactionID: pair.TransactionID,
				LineID:        pair.LineID,
				ActorID:       in.ActorID,
				AllowMismatch: in.AllowMismatch,
			})
			if err != nil {
				if skippable(err) {
					result.Skipped = append(result.Skipped, SkippedPair{Pair: pair, Reason: err.Error()})
					continue
				}
				return err
			}
			result.Matched = append(result.Matched, match)
		}
		return nil
	})
	if err != nil {
		return BulkMatchResult{}, err
	}
	for _, match := range result.Matched {
		s.recordMatchAudit(ctx, in.ActorID, match)
	}
	return result, nil
}

// Unmatch deletes the active match for a transaction, freeing both sides.
// Reversal is always permitted, in any period state.
func (s *Service) Unmatch(ctx context.Context, transactionID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeleteMatchByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrMatchNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   shared.ActionReconUnmatch,
			Entity:   "bank_transaction",
			EntityID: fmt.Sprintf("%d", transactionID),
			At:       s.now(),
		})
	}
	return nil
}

// Finalize records a reconciliation checkpoint. An out-of-balance result
// still finalizes; it only raises the warning flag. The balance reads and
// the checkpoint insert share one transaction holding the period row lock,
// so the stored summary reflects the ledger state it was computed from.
func (s *Service) Finalize(ctx context.Context, in FinalizeInput) (Summary, error) {
	acct, err := s.repo.GetBankAccount(ctx, in.BankAccountID)
	if err != nil {
		return Summary{}, err
	}
	period, err := s.periods.Get(ctx, in.PeriodID)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockPeriod(ctx, period.ID); err != nil {
			return err
		}
		bookBalance, err := tx.BookBalance(ctx, acct.GLAccountCode, acct.CompanyID, period.End())
		if err != nil {
			return err
		}
		bankBalance, found, err := tx.LatestClosingBalance(ctx, in.BankAccountID, in.PeriodID)
		if err != nil {
			return err
		}
		if !found {
			return ErrNoStatement
		}
		summary = buildSummary(bookBalance, bankBalance, true, in.PendingDebits, in.PendingCredits)
		return tx.InsertFinalization(ctx, in, summary, s.now())
	})
	if err != nil {
		return Summary{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   shared.ActionReconFinalize,
			Entity:   "bank_account",
			EntityID: fmt.Sprintf("%d", in.BankAccountID),
			Meta: map[string]any{
				"period_id":          in.PeriodID,
				"reconciled_balance": summary.ReconciledBalance,
				"warning":            summary.Warning,
			},
			At: s.now(),
		})
	}
	return summary, nil
}

// GetSummary recomputes the derived reconciliation position at read time,
// reusing the pending amounts of the latest finalization when one exists.
func (s *Service) GetSummary(ctx context.Context, bankAccountID, periodID int64) (Summary, error) {
	var pendingDebits, pendingCredits float64
	if final, found, err := s.repo.GetLatestFinalization(ctx, bankAccountID, periodID); err != nil {
		return Summary{}, err
	} else if found {
		pendingDebits = final.Summary.PendingDebits
		pendingCredits = final.Summary.PendingCredits
	}
	return s.computeSummary(ctx, bankAccountID, periodID, pendingDebits, pendingCredits)
}

func (s *Service) computeSummary(ctx context.Context, bankAccountID, periodID int64, pendingDebits, pendingCredits float64) (Summary, error) {
	acct, err := s.repo.GetBankAccount(ctx, bankAccountID)
	if err != nil {
		return Summary{}, err
	}
	period, err := s.periods.Get(ctx, periodID)
	if err != nil {
		return Summary{}, err
	}
	bookBalance, err := s.repo.BookBalance(ctx, acct.GLAccountCode, acct.CompanyID, period.End())
	if err != nil {
		return Summary{}, err
	}
	bankBalance, found, err := s.repo.LatestClosingBalance(ctx, bankAccountID, periodID)
	if err != nil {
		return Summary{}, err
	}
	return buildSummary(bookBalance, bankBalance, found, pendingDebits, pendingCredits), nil
}

func buildSummary(bookBalance, bankBalance float64, hasStatement bool, pendingDebits, pendingCredits float64) Summary {
	reconciled := money.Round2(money.Sum(bookBalance, pendingCredits, -pendingDebits))
	return Summary{
		BookBalance:       money.Round2(bookBalance),
		BankBalance:       money.Round2(bankBalance),
		PendingDebits:     money.Round2(pendingDebits),
		PendingCredits:    money.Round2(pendingCredits),
		ReconciledBalance: reconciled,
		HasStatement:      hasStatement,
		Warning:           !money.WithinTolerance(reconciled, bankBalance),
	}
}

func (s *Service) matchInTx(ctx context.Context, tx TxRepository, in MatchInput) (Match, error) {
	txn, err := tx.GetTransactionForUpdate(ctx, in.TransactionID)
	if err != nil {
		return Match{}, err
	}
	line, err := tx.GetLineForUpdate(ctx, in.LineID)
	if err != nil {
		return Match{}, err
	}
	if taken, err := tx.MatchExistsForTransaction(ctx, txn.ID); err != nil {
		return Match{}, err
	} else if taken {
		return Match{}, ErrAlreadyMatched
	}
	if taken, err := tx.MatchExistsForLine(ctx, line.ID); err != nil {
		return Match{}, err
	} else if taken {
		return Match{}, ErrAlreadyMatched
	}
	difference := money.Difference(txn.Amount(), line.Amount())
	if difference > money.Tolerance && !in.AllowMismatch {
		return Match{}, AmountMismatchError{Difference: difference}
	}
	return tx.InsertMatch(ctx, txn.ID, line.ID, in.ActorID, difference, s.now())
}

func (s *Service) recordMatchAudit(ctx context.Context, actorID int64, match Match) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   shared.ActionReconMatch,
		Entity:   "reconciliation_match",
		EntityID: fmt.Sprintf("%d", match.ID),
		Meta: map[string]any{
			"bank_transaction_id": match.BankTransactionID,
			"entry_line_id":       match.EntryLineID,
			"amount_difference":   match.AmountDifference,
		},
		At: s.now(),
	})
}

// skippable reports whether a bulk member failure is tolerated rather than
// aborting the batch.
func skippable(err error) bool {
	var mismatch AmountMismatchError
	return errors.Is(err, ErrAlreadyMatched) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrLineNotFound) ||
		errors.As(err, &mismatch)
}
