package periods

import (
	"fmt"
	"sort"
	"time"

	"github.com/quipu-erp/quipu-erp/internal/money"
)

// EntryCheckRow is the per-entry aggregate the repository feeds the close
// validator: totals over a posted entry's lines plus its date and glosa.
type EntryCheckRow struct {
	EntryID int64
	Date    time.Time
	Glosa   string
	Debit   float64
	Credit  float64
}

// ValidationData bundles everything the close validator inspects. It is
// collected in one repository pass so the report reflects a single snapshot.
type ValidationData struct {
	Entries []EntryCheckRow
	// BadAccountCodes lists referenced account codes that are missing from
	// the chart of accounts or marked inactive.
	BadAccountCodes []string
}

// BuildCloseReport runs every closing check in order, accumulating rather
// than short-circuiting, and never mutates anything.
func BuildCloseReport(period Period, data ValidationData) CloseValidationReport {
	report := CloseValidationReport{
		Errors:            []string{},
		Warnings:          []string{},
		UnbalancedEntries: []UnbalancedEntry{},
		EntryCount:        len(data.Entries),
	}

	for _, entry := range data.Entries {
		if !money.WithinTolerance(entry.Debit, entry.Credit) {
			diff := money.Difference(entry.Debit, entry.Credit)
			report.UnbalancedEntries = append(report.UnbalancedEntries, UnbalancedEntry{
				EntryID:    entry.EntryID,
				Difference: diff,
			})
			report.Errors = append(report.Errors, fmt.Sprintf("entry %d is unbalanced by %.2f", entry.EntryID, diff))
		}
	}

	for _, entry := range data.Entries {
		if entry.Glosa == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("entry %d has no glosa", entry.EntryID))
		}
	}

	// Posting keeps entry dates inside the owning period; an entry that
	// drifted outside the window points at direct data manipulation and
	// blocks the close.
	for _, entry := range data.Entries {
		if !period.Contains(entry.Date) {
			report.Errors = append(report.Errors, fmt.Sprintf("entry %d is dated %s, outside the period window", entry.EntryID, entry.Date.Format("2006-01-02")))
		}
	}

	codes := append([]string(nil), data.BadAccountCodes...)
	sort.Strings(codes)
	for _, code := range codes {
		report.Errors = append(report.Errors, fmt.Sprintf("account %s is missing or inactive", code))
	}

	if len(data.Entries) == 0 {
		report.Warnings = append(report.Warnings, "period has no journal entries")
	}

	report.Valid = len(report.Errors) == 0
	return report
}
