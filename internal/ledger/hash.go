package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/quipu-erp/quipu-erp/internal/money"
)

// IntegrityHash computes the deterministic digest stored alongside a posted
// entry and recomputed on demand to detect accidental corruption. It covers
// the date, glosa, currency, rate, origin, every line and the totals; status
// is excluded so voiding does not invalidate the checksum.
func IntegrityHash(date string, glosa, currency string, rate float64, origin EntryOrigin, lines []JournalLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%.6f|%s", date, glosa, currency, rate, origin)
	var debit, credit float64
	for _, line := range lines {
		fmt.Fprintf(&b, "|%s,%.2f,%.2f", line.AccountCode, line.Debit, line.Credit)
		debit = money.Sum(debit, line.Debit)
		credit = money.Sum(credit, line.Credit)
	}
	fmt.Fprintf(&b, "|%.2f|%.2f", debit, credit)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// EntryHash computes the integrity hash for a loaded entry.
func EntryHash(entry JournalEntry) string {
	return IntegrityHash(entry.Date.Format("2006-01-02"), entry.Glosa, entry.Currency, entry.ExchangeRate, entry.Origin, entry.Lines)
}
