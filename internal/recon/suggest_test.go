package recon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestSuggestSameDayExactAmount(t *testing.T) {
	txns := []BankTransaction{{ID: 1, Date: day(10), Debit: 500.00}}
	lines := []EntryLine{{ID: 21, Date: day(10), AccountCode: "1041", Credit: 500.00}}

	got := BuildSuggestions(txns, lines, DefaultSuggestConfig())
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].TransactionID)
	require.Equal(t, int64(21), got[0].LineID)
	require.InDelta(t, 1.0, got[0].Confidence, 0.0001)
	require.Equal(t, "exact amount, same day", got[0].Reason)
}

func TestSuggestConfidenceDecay(t *testing.T) {
	cfg := DefaultSuggestConfig()
	txns := []BankTransaction{{ID: 1, Date: day(10), Debit: 500.00}}

	// 2 days apart out of a 5-day window: 1 - 2/5*0.5 = 0.8.
	got := BuildSuggestions(txns, []EntryLine{{ID: 21, Date: day(12), Credit: 500.00}}, cfg)
	require.Len(t, got, 1)
	require.InDelta(t, 0.8, got[0].Confidence, 0.0001)

	// At the window edge confidence bottoms out at the floor.
	got = BuildSuggestions(txns, []EntryLine{{ID: 21, Date: day(15), Credit: 500.00}}, cfg)
	require.Len(t, got, 1)
	require.InDelta(t, 0.5, got[0].Confidence, 0.0001)

	// Beyond the window nothing is suggested.
	got = BuildSuggestions(txns, []EntryLine{{ID: 21, Date: day(16), Credit: 500.00}}, cfg)
	require.Empty(t, got)
}

func TestSuggestRequiresOppositePolarity(t *testing.T) {
	txns := []BankTransaction{{ID: 1, Date: day(10), Debit: 500.00}}
	// A book debit does not pair with a bank debit.
	lines := []EntryLine{{ID: 21, Date: day(10), Debit: 500.00}}

	require.Empty(t, BuildSuggestions(txns, lines, DefaultSuggestConfig()))
}

func TestSuggestAmountTolerance(t *testing.T) {
	txns := []BankTransaction{{ID: 1, Date: day(10), Debit: 500.00}}

	got := BuildSuggestions(txns, []EntryLine{{ID: 21, Date: day(10), Credit: 500.01}}, DefaultSuggestConfig())
	require.Len(t, got, 1)

	got = BuildSuggestions(txns, []EntryLine{{ID: 21, Date: day(10), Credit: 500.02}}, DefaultSuggestConfig())
	require.Empty(t, got)
}

func TestSuggestAmbiguityPenalty(t *testing.T) {
	txns := []BankTransaction{{ID: 1, Date: day(10), Debit: 500.00}}
	lines := []EntryLine{
		{ID: 21, Date: day(10), Credit: 500.00},
		{ID: 22, Date: day(12), Credit: 500.00},
	}

	got := BuildSuggestions(txns, lines, DefaultSuggestConfig())
	// One-to-one: the transaction is claimed by its best candidate only.
	require.Len(t, got, 1)
	require.Equal(t, int64(21), got[0].LineID)
	require.InDelta(t, 0.9, got[0].Confidence, 0.0001) // 1.0 - 0.1 penalty
	require.Contains(t, got[0].Reason, "2 lines tie on amount")
}

func TestSuggestGreedyOneToOne(t *testing.T) {
	// Two transactions compete for the same line; the closer date wins and
	// the loser falls back to its remaining candidate.
	txns := []BankTransaction{
		{ID: 1, Date: day(10), Debit: 500.00},
		{ID: 2, Date: day(11), Debit: 500.00},
	}
	lines := []EntryLine{
		{ID: 21, Date: day(10), Credit: 500.00},
		{ID: 22, Date: day(14), Credit: 500.00},
	}

	got := BuildSuggestions(txns, lines, DefaultSuggestConfig())
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].TransactionID)
	require.Equal(t, int64(21), got[0].LineID)
	require.Equal(t, int64(2), got[1].TransactionID)
	require.Equal(t, int64(22), got[1].LineID)
}

func TestSuggestDeterministicTieBreak(t *testing.T) {
	// Both transactions are equidistant from the same line: the lower
	// transaction id claims it, every time.
	txns := []BankTransaction{
		{ID: 2, Date: day(11), Debit: 500.00},
		{ID: 1, Date: day(9), Debit: 500.00},
	}
	lines := []EntryLine{{ID: 21, Date: day(10), Credit: 500.00}}

	for i := 0; i < 10; i++ {
		got := BuildSuggestions(txns, lines, DefaultSuggestConfig())
		require.Len(t, got, 1)
		require.Equal(t, int64(1), got[0].TransactionID)
	}
}

func TestSuggestEmptyInputs(t *testing.T) {
	require.Empty(t, BuildSuggestions(nil, nil, DefaultSuggestConfig()))
	require.Empty(t, BuildSuggestions([]BankTransaction{{ID: 1, Date: day(1), Debit: 10}}, nil, DefaultSuggestConfig()))
}
