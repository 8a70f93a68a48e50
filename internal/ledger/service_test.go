package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/quipu-erp/quipu-erp/internal/periods"
)

type memoryRepo struct {
	periods      map[string]*periods.Period
	accounts     map[string]bool
	entries      map[int64]*JournalEntry
	sources      map[string]bool
	nextPeriodID int64
	nextEntryID  int64
	nextLineID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		periods:  make(map[string]*periods.Period),
		accounts: map[string]bool{"1041": true, "4011": true, "6011": true, "7012": true},
		entries:  make(map[int64]*JournalEntry),
		sources:  make(map[string]bool),
	}
}

func periodKey(companyID int64, year, month int) string {
	return fmt.Sprintf("%d:%d:%d", companyID, year, month)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return *entry, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter ListFilter) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, entry := range r.entries {
		if entry.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && entry.Status != filter.Status {
			continue
		}
		out = append(out, *entry)
	}
	return out, nil
}

func (r *memoryRepo) ListPostedByPeriod(ctx context.Context, periodID int64) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, entry := range r.entries {
		if entry.PeriodID == periodID && entry.Status == EntryStatusPosted {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (tx *memoryTx) ResolvePeriodForUpdate(ctx context.Context, companyID int64, year, month int) (periods.Period, error) {
	key := periodKey(companyID, year, month)
	if p, ok := tx.repo.periods[key]; ok {
		return *p, nil
	}
	tx.repo.nextPeriodID++
	p := &periods.Period{ID: tx.repo.nextPeriodID, CompanyID: companyID, Year: year, Month: month, Status: periods.StatusOpen}
	tx.repo.periods[key] = p
	return *p, nil
}

func (tx *memoryTx) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	for _, p := range tx.repo.periods {
		if p.ID == periodID {
			return *p, nil
		}
	}
	return periods.Period{}, periods.ErrPeriodNotFound
}

func (tx *memoryTx) MissingOrInactiveAccounts(ctx context.Context, codes []string) ([]string, error) {
	var missing []string
	for _, code := range codes {
		if !tx.repo.accounts[code] {
			missing = append(missing, code)
		}
	}
	return missing, nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, periodID int64, draft DraftEntry, hash string) (JournalEntry, error) {
	if draft.SourceID != uuid.Nil {
		key := string(draft.Origin) + ":" + draft.SourceID.String()
		if tx.repo.sources[key] {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		tx.repo.sources[key] = true
	}
	tx.repo.nextEntryID++
	entry := &JournalEntry{
		ID:            tx.repo.nextEntryID,
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
		PostedAt:      time.Now(),
	}
	tx.repo.entries[entry.ID] = entry
	return *entry, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, entryID int64, lines []DraftLine) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		tx.repo.nextLineID++
		out = append(out, JournalLine{
			ID:          tx.repo.nextLineID,
			EntryID:     entryID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Memo:        line.Memo,
		})
	}
	tx.repo.entries[entryID].Lines = out
	return out, nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	return tx.repo.GetEntry(ctx, id)
}

func (tx *memoryTx) UpdateEntryStatus(ctx context.Context, id int64, status EntryStatus) error {
	entry, ok := tx.repo.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	entry.Status = status
	return nil
}

func (r *memoryRepo) closePeriod(companyID int64, year, month int) {
	key := periodKey(companyID, year, month)
	if p, ok := r.periods[key]; ok {
		p.Status = periods.StatusClosed
		return
	}
	r.nextPeriodID++
	r.periods[key] = &periods.Period{ID: r.nextPeriodID, CompanyID: companyID, Year: year, Month: month, Status: periods.StatusClosed}
}

func purchaseDraft() DraftEntry {
	return DraftEntry{
		CompanyID:    1,
		Date:         time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Glosa:        "Compra de mercaderías F001-1234",
		Currency:     "PEN",
		ExchangeRate: 1,
		Origin:       OriginPurchases,
		PostedBy:     7,
		Lines: []DraftLine{
			{AccountCode: "6011", Debit: 1000},
			{AccountCode: "4011", Debit: 180},
			{AccountCode: "4212", Credit: 1180},
		},
	}
}

func TestPostBalancedEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, purchaseDraft(), PostOptions{})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, entry.Status)
	require.Len(t, entry.Lines, 3)
	require.NotEmpty(t, entry.IntegrityHash)
	require.NotZero(t, entry.PeriodID)

	// The owning period was created OPEN from the draft date.
	p := repo.periods[periodKey(1, 2025, 3)]
	require.NotNil(t, p)
	require.Equal(t, periods.StatusOpen, p.Status)
}

func TestPostLeavesCallerLinesUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)

	draft := purchaseDraft()
	draft.Lines[0].Debit = 1000.005
	draft.Lines[2].Credit = 1180.005

	entry, err := svc.Post(context.Background(), draft, PostOptions{})
	require.NoError(t, err)

	// Rounding happened on a copy; the caller's draft still carries the
	// raw amounts while the stored lines are two-decimal.
	require.InDelta(t, 1000.005, draft.Lines[0].Debit, 1e-9)
	require.InDelta(t, 1180.005, draft.Lines[2].Credit, 1e-9)
	require.InDelta(t, 1000.00, entry.Lines[0].Debit, 0.001)
	require.InDelta(t, 1180.00, entry.Lines[2].Credit, 0.001)
}

func TestPostUnbalanced(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	draft := purchaseDraft()
	draft.Lines[2].Credit = 1170

	_, err := svc.Post(context.Background(), draft, PostOptions{})
	require.ErrorIs(t, err, ErrUnbalanced)

	var unbalanced UnbalancedError
	require.ErrorAs(t, err, &unbalanced)
	require.InDelta(t, 10.00, unbalanced.Difference, 0.001)
	require.Empty(t, repo.entries)
}

func TestPostTooFewLines(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	draft := purchaseDraft()
	draft.Lines = draft.Lines[:1]

	_, err := svc.Post(context.Background(), draft, PostOptions{})
	require.ErrorIs(t, err, ErrTooFewLines)
}

func TestPostAccumulatesLineIssues(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	draft := purchaseDraft()
	draft.Glosa = "  "
	draft.Lines[0].AccountCode = ""
	draft.Lines[1].Credit = 180 // both sides set

	_, err := svc.Post(context.Background(), draft, PostOptions{})
	var invalid DraftValidationError
	require.ErrorAs(t, err, &invalid)
	require.Len(t, invalid.Issues, 3)
}

func TestPostClosedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	repo.closePeriod(1, 2025, 3)
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, purchaseDraft(), PostOptions{})
	require.ErrorIs(t, err, periods.ErrPeriodClosed)

	// The override capability lets an authorized caller post anyway.
	entry, err := svc.Post(ctx, purchaseDraft(), PostOptions{AllowClosedPeriod: true})
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, entry.Status)
}

func TestPostUnknownAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Post(context.Background(), purchaseDraft(), PostOptions{})
	var bad AccountValidationError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, []string{"4212"}, bad.Codes)
}

func TestPostSourceIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	draft := purchaseDraft()
	draft.SourceID = uuid.New()

	_, err := svc.Post(ctx, draft, PostOptions{})
	require.NoError(t, err)

	_, err = svc.Post(ctx, draft, PostOptions{})
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
}

func TestVoidEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, purchaseDraft(), PostOptions{})
	require.NoError(t, err)

	voided, err := svc.Void(ctx, entry.ID, VoidOptions{ActorID: 7, Reason: "duplicate invoice"})
	require.NoError(t, err)
	require.Equal(t, EntryStatusVoided, voided.Status)
	require.Len(t, voided.Lines, 3)

	_, err = svc.Void(ctx, entry.ID, VoidOptions{ActorID: 7, Reason: "again"})
	require.ErrorIs(t, err, ErrAlreadyVoided)
}

func TestVoidInClosedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, purchaseDraft(), PostOptions{})
	require.NoError(t, err)

	repo.closePeriod(1, 2025, 3)

	_, err = svc.Void(ctx, entry.ID, VoidOptions{ActorID: 7, Reason: "late fix"})
	require.ErrorIs(t, err, periods.ErrPeriodClosed)

	voided, err := svc.Void(ctx, entry.ID, VoidOptions{ActorID: 7, Reason: "late fix", AllowClosedPeriod: true})
	require.NoError(t, err)
	require.Equal(t, EntryStatusVoided, voided.Status)
}

func TestVerifyIntegrity(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, purchaseDraft(), PostOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.VerifyIntegrity(ctx, entry.ID))

	repo.entries[entry.ID].Glosa = "tampered"

	err = svc.VerifyIntegrity(ctx, entry.ID)
	var mismatch IntegrityError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, entry.ID, mismatch.EntryID)

	found, err := svc.VerifyPeriodIntegrity(ctx, entry.PeriodID)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, entry.ID, found[0].EntryID)
}

func TestVoidKeepsIntegrityHash(t *testing.T) {
	repo := newMemoryRepo()
	repo.accounts["4212"] = true
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, purchaseDraft(), PostOptions{})
	require.NoError(t, err)

	_, err = svc.Void(ctx, entry.ID, VoidOptions{ActorID: 7, Reason: "dup"})
	require.NoError(t, err)

	// Status is outside the hashed content, so a voided entry still verifies.
	require.NoError(t, svc.VerifyIntegrity(ctx, entry.ID))
}
