package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func marchPeriod() Period {
	return Period{ID: 1, CompanyID: 1, Year: 2025, Month: 3, Status: StatusOpen}
}

func marchDay(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestBuildCloseReportClean(t *testing.T) {
	report := BuildCloseReport(marchPeriod(), ValidationData{
		Entries: []EntryCheckRow{
			{EntryID: 1, Date: marchDay(5), Glosa: "Venta F001-100", Debit: 1180, Credit: 1180},
			{EntryID: 2, Date: marchDay(12), Glosa: "Compra F002-55", Debit: 500, Credit: 500},
		},
	})
	require.True(t, report.Valid)
	require.Empty(t, report.Errors)
	require.Empty(t, report.Warnings)
	require.Equal(t, 2, report.EntryCount)
}

func TestBuildCloseReportAccumulates(t *testing.T) {
	report := BuildCloseReport(marchPeriod(), ValidationData{
		Entries: []EntryCheckRow{
			{EntryID: 1, Date: marchDay(5), Glosa: "Venta", Debit: 1180, Credit: 1170},
			{EntryID: 2, Date: marchDay(6), Glosa: "", Debit: 500, Credit: 500},
		},
		BadAccountCodes: []string{"9999", "1234"},
	})
	require.False(t, report.Valid)
	// One unbalanced, one missing glosa, two bad accounts: all reported at once.
	require.Len(t, report.Errors, 4)
	require.Len(t, report.UnbalancedEntries, 1)
	require.Equal(t, int64(1), report.UnbalancedEntries[0].EntryID)
	require.InDelta(t, 10.00, report.UnbalancedEntries[0].Difference, 0.001)
	// Bad account codes are reported in sorted order.
	require.Contains(t, report.Errors[2], "1234")
	require.Contains(t, report.Errors[3], "9999")
}

func TestBuildCloseReportToleratesRounding(t *testing.T) {
	report := BuildCloseReport(marchPeriod(), ValidationData{
		Entries: []EntryCheckRow{{EntryID: 1, Date: marchDay(31), Glosa: "FX entry", Debit: 100.00, Credit: 100.01}},
	})
	require.True(t, report.Valid)
	require.Empty(t, report.UnbalancedEntries)
}

func TestBuildCloseReportFlagsDateOutsideWindow(t *testing.T) {
	report := BuildCloseReport(marchPeriod(), ValidationData{
		Entries: []EntryCheckRow{
			{EntryID: 1, Date: marchDay(31), Glosa: "Venta F001-100", Debit: 100, Credit: 100},
			{EntryID: 2, Date: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Glosa: "Venta F001-101", Debit: 100, Credit: 100},
		},
	})
	require.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0], "entry 2")
	require.Contains(t, report.Errors[0], "2025-04-01")
}

func TestBuildCloseReportEmptyPeriodWarns(t *testing.T) {
	report := BuildCloseReport(marchPeriod(), ValidationData{})
	require.True(t, report.Valid)
	require.Equal(t, []string{"period has no journal entries"}, report.Warnings)
	require.Zero(t, report.EntryCount)
}
