package export

import (
	"time"

	"mensile/internal/services"
)

// Header is the first row of the report sheet.
var Header = []any{
	"exported_at", "month", "section",
	"expected", "actual", "remaining",
	"leftover", "leftover_valid", "missing_balances",
}

// RowsFromReport flattens a month report into sheet rows: one row per
// section plus one leftover row. Amounts are written in whole currency
// units with two decimals; the sheet is for humans.
func RowsFromReport(report services.MonthReport, now time.Time) [][]any {
	stamp := now.Format("2006-01-02 15:04:05")
	month := report.Month.String()

	rows := [][]any{
		{stamp, month, "bills",
			report.Bills.Tally.Expected.Dollars(),
			report.Bills.Tally.Actual.Dollars(),
			report.Bills.Tally.Remaining.Dollars(),
			"", "", ""},
		{stamp, month, "income",
			report.Income.Tally.Expected.Dollars(),
			report.Income.Tally.Actual.Dollars(),
			report.Income.Tally.Remaining.Dollars(),
			"", "", ""},
	}

	missing := ""
	if !report.Leftover.IsValid {
		missing = report.Leftover.MissingSummary
	}
	rows = append(rows, []any{stamp, month, "leftover",
		"", "", "",
		report.Leftover.Leftover.Dollars(),
		report.Leftover.IsValid,
		missing})
	return rows
}
