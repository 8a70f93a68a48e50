package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	periods map[int64]*Period
	data    map[int64]ValidationData
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: make(map[int64]*Period), data: make(map[int64]ValidationData)}
}

func (r *memoryRepo) addPeriod(id int64, status Status) {
	r.periods[id] = &Period{ID: id, CompanyID: 1, Year: 2025, Month: 3, Status: status}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetPeriod(ctx context.Context, id int64) (Period, error) {
	p, ok := r.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return *p, nil
}

func (r *memoryRepo) ListPeriods(ctx context.Context, companyID int64) ([]Period, error) {
	var out []Period
	for _, p := range r.periods {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) CollectValidationData(ctx context.Context, periodID int64) (ValidationData, error) {
	return r.data[periodID], nil
}

func (tx *memoryTx) GetPeriodForUpdate(ctx context.Context, id int64) (Period, error) {
	return tx.repo.GetPeriod(ctx, id)
}

func (tx *memoryTx) CollectValidationData(ctx context.Context, periodID int64) (ValidationData, error) {
	return tx.repo.data[periodID], nil
}

func (tx *memoryTx) MarkClosed(ctx context.Context, id int64, in CloseInput, at time.Time) error {
	p := tx.repo.periods[id]
	p.Status = StatusClosed
	p.ClosedAt = &at
	p.ClosedBy = &in.ActorID
	p.CloseReason = in.Reason
	return nil
}

func (tx *memoryTx) MarkReopened(ctx context.Context, id int64, in ReopenInput, at time.Time) error {
	p := tx.repo.periods[id]
	p.Status = StatusReopened
	p.ReopenedAt = &at
	p.ReopenedBy = &in.ActorID
	p.ReopenReason = in.Reason
	return nil
}

type stubLocker struct {
	held     bool
	acquired int
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, periodID int64) (bool, error) {
	l.acquired++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *stubLocker) Release(ctx context.Context, periodID int64) {
	l.released++
	l.held = false
}

func balancedData() ValidationData {
	march := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return ValidationData{Entries: []EntryCheckRow{{EntryID: 10, Date: march, Glosa: "Venta F001-100", Debit: 1180, Credit: 1180}}}
}

func TestClosePeriod(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusOpen)
	repo.data[1] = balancedData()
	locker := &stubLocker{}
	svc := NewService(repo, nil, locker)
	closedAt := time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return closedAt })

	period, err := svc.Close(context.Background(), 1, CloseInput{ActorID: 7, Reason: "fin de mes"})
	require.NoError(t, err)
	require.Equal(t, StatusClosed, period.Status)
	require.Equal(t, closedAt, *period.ClosedAt)
	require.Equal(t, int64(7), *period.ClosedBy)
	require.Equal(t, "fin de mes", period.CloseReason)
	require.Equal(t, 1, locker.acquired)
	require.Equal(t, 1, locker.released)
}

func TestCloseRequiresActor(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusOpen)
	svc := NewService(repo, nil, nil)

	_, err := svc.Close(context.Background(), 1, CloseInput{Reason: "sin actor"})
	require.Error(t, err)
	require.Equal(t, StatusOpen, repo.periods[1].Status)
}

func TestCloseAlreadyClosed(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusClosed)
	svc := NewService(repo, nil, nil)

	_, err := svc.Close(context.Background(), 1, CloseInput{ActorID: 7})
	require.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestCloseRejectedByValidation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusOpen)
	repo.data[1] = ValidationData{
		Entries:         []EntryCheckRow{{EntryID: 10, Date: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), Glosa: "Venta", Debit: 1180, Credit: 1170}},
		BadAccountCodes: []string{"9999"},
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.Close(context.Background(), 1, CloseInput{ActorID: 7, Reason: "intento"})
	ve, ok := IsValidationError(err)
	require.True(t, ok)
	require.False(t, ve.Report.Valid)
	require.Len(t, ve.Report.Errors, 2)
	require.Len(t, ve.Report.UnbalancedEntries, 1)

	// A rejected close leaves the period untouched.
	require.Equal(t, StatusOpen, repo.periods[1].Status)
}

func TestCloseContention(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusOpen)
	repo.data[1] = balancedData()
	locker := &stubLocker{held: true}
	svc := NewService(repo, nil, locker)

	_, err := svc.Close(context.Background(), 1, CloseInput{ActorID: 7})
	require.ErrorIs(t, err, ErrCloseInProgress)
	require.Equal(t, StatusOpen, repo.periods[1].Status)
}

func TestReopenCycle(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusOpen)
	repo.data[1] = balancedData()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	// Reopen before any close is rejected.
	_, err := svc.Reopen(ctx, 1, ReopenInput{ActorID: 9, Reason: "ajuste"})
	require.ErrorIs(t, err, ErrNotClosed)

	_, err = svc.Close(ctx, 1, CloseInput{ActorID: 7, Reason: "fin de mes"})
	require.NoError(t, err)

	period, err := svc.Reopen(ctx, 1, ReopenInput{ActorID: 9, Reason: "ajuste tardío"})
	require.NoError(t, err)
	require.Equal(t, StatusReopened, period.Status)
	require.Equal(t, int64(9), *period.ReopenedBy)
	require.Equal(t, "ajuste tardío", period.ReopenReason)
	// The close audit fields survive the reopen.
	require.NotNil(t, period.ClosedAt)
	require.Equal(t, "fin de mes", period.CloseReason)

	// REOPENED can be closed again.
	period, err = svc.Close(ctx, 1, CloseInput{ActorID: 7, Reason: "segundo cierre"})
	require.NoError(t, err)
	require.Equal(t, StatusClosed, period.Status)
}

func TestValidateIsReadOnly(t *testing.T) {
	repo := newMemoryRepo()
	repo.addPeriod(1, StatusOpen)
	repo.data[1] = ValidationData{
		Entries: []EntryCheckRow{{EntryID: 10, Date: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), Glosa: "", Debit: 100, Credit: 100}},
	}
	svc := NewService(repo, nil, nil)

	report, err := svc.Validate(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, StatusOpen, repo.periods[1].Status)
}

func TestCanPost(t *testing.T) {
	require.True(t, CanPost(StatusOpen))
	require.True(t, CanPost(StatusReopened))
	require.False(t, CanPost(StatusClosed))
}
