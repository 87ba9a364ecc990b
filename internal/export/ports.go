// Package export writes month reports to external destinations. The only
// shipped destination is a Google Sheets spreadsheet the household already
// uses for review; the port keeps the worker testable without it.
package export

import (
	"context"

	"mensile/internal/services"
)

// ReportWriter is the outbound port for month report export.
type ReportWriter interface {
	// AppendMonthReport appends one snapshot of the month report.
	AppendMonthReport(ctx context.Context, report services.MonthReport) error
}
