package export

import (
	"testing"
	"time"

	"mensile/internal/core"
	"mensile/internal/services"
	"mensile/internal/tally"
)

func TestRowsFromReport(t *testing.T) {
	month, err := core.ParseMonth("2025-03")
	if err != nil {
		t.Fatalf("parse month: %v", err)
	}
	now := time.Date(2025, 3, 20, 8, 30, 0, 0, time.UTC)

	report := services.MonthReport{
		Month: month,
		Bills: services.SectionReport{Tally: tally.SectionTally{
			Expected:  core.Money{Cents: 128000},
			Actual:    core.Money{Cents: 8000},
			Remaining: core.Money{Cents: 120000},
		}},
		Income: services.SectionReport{Tally: tally.SectionTally{
			Expected:  core.Money{Cents: 500000},
			Actual:    core.Money{Cents: 500000},
			Remaining: core.Money{Cents: 0},
		}},
		Leftover: tally.LeftoverResult{
			Leftover: core.Money{Cents: 505000},
			IsValid:  true,
		},
	}

	rows := RowsFromReport(report, now)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	if len(rows[0]) != len(Header) {
		t.Errorf("row width = %d, want %d (header)", len(rows[0]), len(Header))
	}

	bills := rows[0]
	if bills[1] != "2025-03" || bills[2] != "bills" {
		t.Errorf("bills row = %v", bills)
	}
	if bills[3] != 1280.0 || bills[4] != 80.0 || bills[5] != 1200.0 {
		t.Errorf("bills amounts = %v %v %v", bills[3], bills[4], bills[5])
	}

	leftover := rows[2]
	if leftover[2] != "leftover" || leftover[6] != 5050.0 || leftover[7] != true {
		t.Errorf("leftover row = %v", leftover)
	}
	if leftover[8] != "" {
		t.Errorf("missing summary = %v, want empty for valid leftover", leftover[8])
	}
}

func TestRowsFromReport_InvalidLeftoverCarriesSummary(t *testing.T) {
	month, _ := core.ParseMonth("2025-03")
	report := services.MonthReport{
		Month: month,
		Leftover: tally.LeftoverResult{
			IsValid:         false,
			MissingBalances: []string{"src-1"},
			MissingSummary:  "missing balances for: Checking",
		},
	}

	rows := RowsFromReport(report, time.Now())
	leftover := rows[len(rows)-1]
	if leftover[7] != false {
		t.Errorf("leftover_valid = %v, want false", leftover[7])
	}
	if leftover[8] != "missing balances for: Checking" {
		t.Errorf("missing summary = %v", leftover[8])
	}
}
