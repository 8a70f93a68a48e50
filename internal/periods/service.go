package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quipu-erp/quipu-erp/internal/shared"
)

// AuditPort records period lifecycle events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Locker provides a cross-instance advisory lock on period transitions.
type Locker interface {
	Acquire(ctx context.Context, periodID int64) (bool, error)
	Release(ctx context.Context, periodID int64)
}

// Service owns the period state machine. It is the single writer for period
// transitions: the validator only reports, Close and Reopen commit.
type Service struct {
	repo   Repository
	audit  AuditPort
	locker Locker
	now    func() time.Time
}

// NewService constructs the lifecycle manager.
func NewService(repo Repository, audit AuditPort, locker Locker) *Service {
	return &Service{repo: repo, audit: audit, locker: locker, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, id)
}

// List returns every period for a company, newest first.
func (s *Service) List(ctx context.Context, companyID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, companyID)
}

// Validate runs the closing checks and returns the advisory report. It never
// mutates state and never returns a report-level failure as an error.
func (s *Service) Validate(ctx context.Context, periodID int64) (CloseValidationReport, error) {
	period, err := s.repo.GetPeriod(ctx, periodID)
	if err != nil {
		return CloseValidationReport{}, err
	}
	data, err := s.repo.CollectValidationData(ctx, periodID)
	if err != nil {
		return CloseValidationReport{}, err
	}
	return BuildCloseReport(period, data), nil
}

// Close transitions OPEN or REOPENED to CLOSED after a passing validation.
// A failing report aborts with CloseValidationError carrying every blocking
// violation; there is no partial close.
func (s *Service) Close(ctx context.Context, periodID int64, in CloseInput) (Period, error) {
	if in.ActorID == 0 {
		return Period{}, fmt.Errorf("periods: actor required: %w", shared.ErrValidation)
	}
	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx, periodID)
		if err != nil {
			return Period{}, err
		}
		if !acquired {
			return Period{}, ErrCloseInProgress
		}
		defer s.locker.Release(ctx, periodID)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		data, err := tx.CollectValidationData(ctx, periodID)
		if err != nil {
			return err
		}
		report := BuildCloseReport(period, data)
		if !report.Valid {
			return CloseValidationError{Report: report}
		}
		return tx.MarkClosed(ctx, periodID, in, s.now())
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   shared.ActionPeriodClose,
			Entity:   "period",
			EntityID: fmt.Sprintf("%d", periodID),
			Meta:     map[string]any{"reason": in.Reason},
			At:       s.now(),
		})
	}
	return s.repo.GetPeriod(ctx, periodID)
}

// Reopen transitions CLOSED to REOPENED without re-validation. Restricting
// the call to elevated users is the authorization layer's job; this core
// only records who did it and why.
func (s *Service) Reopen(ctx context.Context, periodID int64, in ReopenInput) (Period, error) {
	if in.ActorID == 0 {
		return Period{}, fmt.Errorf("periods: actor required: %w", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		if period.Status != StatusClosed {
			return ErrNotClosed
		}
		return tx.MarkReopened(ctx, periodID, in, s.now())
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   shared.ActionPeriodReopen,
			Entity:   "period",
			EntityID: fmt.Sprintf("%d", periodID),
			Meta:     map[string]any{"reason": in.Reason},
			At:       s.now(),
		})
	}
	return s.repo.GetPeriod(ctx, periodID)
}

// IsValidationError reports whether err is a rejected close carrying a report.
func IsValidationError(err error) (CloseValidationError, bool) {
	var ve CloseValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}
