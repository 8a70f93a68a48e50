package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func hashFixtureEntry() JournalEntry {
	return JournalEntry{
		ID:           1,
		Date:         time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Glosa:        "Compra de mercaderías",
		Currency:     "PEN",
		ExchangeRate: 1,
		Origin:       OriginPurchases,
		Status:       EntryStatusPosted,
		Lines: []JournalLine{
			{AccountCode: "6011", Debit: 1000},
			{AccountCode: "4011", Debit: 180},
			{AccountCode: "4212", Credit: 1180},
		},
	}
}

func TestEntryHashDeterministic(t *testing.T) {
	entry := hashFixtureEntry()
	first := EntryHash(entry)
	require.Len(t, first, 64)
	require.Equal(t, first, EntryHash(entry))
}

func TestEntryHashCoversContent(t *testing.T) {
	base := EntryHash(hashFixtureEntry())

	changed := hashFixtureEntry()
	changed.Glosa = "otra glosa"
	require.NotEqual(t, base, EntryHash(changed))

	changed = hashFixtureEntry()
	changed.Lines[0].Debit = 999
	require.NotEqual(t, base, EntryHash(changed))

	changed = hashFixtureEntry()
	changed.Lines[0].AccountCode = "6012"
	require.NotEqual(t, base, EntryHash(changed))

	changed = hashFixtureEntry()
	changed.Date = changed.Date.AddDate(0, 0, 1)
	require.NotEqual(t, base, EntryHash(changed))
}

func TestEntryHashIgnoresStatus(t *testing.T) {
	entry := hashFixtureEntry()
	base := EntryHash(entry)
	entry.Status = EntryStatusVoided
	require.Equal(t, base, EntryHash(entry))
}
