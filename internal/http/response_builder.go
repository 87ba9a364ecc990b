package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mensile/internal/core"
	"mensile/internal/ledger"
	"mensile/internal/services"
	"mensile/internal/storage"
	"mensile/internal/tally"
)

// View types returned to API clients. Amounts are integer cents; dates and
// months are the wire strings the rest of the system uses.

type occurrenceView struct {
	ID              string `json:"id"`
	Sequence        int    `json:"sequence"`
	ExpectedDate    string `json:"expected_date"`
	ExpectedCents   int64  `json:"expected_cents"`
	IsClosed        bool   `json:"is_closed"`
	ClosedDate      string `json:"closed_date,omitempty"`
	PaymentSourceID string `json:"payment_source_id,omitempty"`
	IsAdhoc         bool   `json:"is_adhoc"`
	Notes           string `json:"notes,omitempty"`
}

type instanceView struct {
	ID              string           `json:"id"`
	TemplateID      string           `json:"template_id,omitempty"`
	Name            string           `json:"name"`
	Kind            string           `json:"kind"`
	Month           string           `json:"month"`
	BillingPeriod   string           `json:"billing_period"`
	ExpectedCents   int64            `json:"expected_cents"`
	Closed          bool             `json:"closed"`
	IsAdhoc         bool             `json:"is_adhoc"`
	IsPayoff        bool             `json:"is_payoff"`
	CategoryID      string           `json:"category_id,omitempty"`
	PaymentSourceID string           `json:"payment_source_id,omitempty"`
	Occurrences     []occurrenceView `json:"occurrences"`
}

type tallyView struct {
	ExpectedCents  int64 `json:"expected_cents"`
	ActualCents    int64 `json:"actual_cents"`
	RemainingCents int64 `json:"remaining_cents"`
}

type categoryView struct {
	ExpectedCents int64 `json:"expected_cents"`
	ActualCents   int64 `json:"actual_cents"`
}

type sectionView struct {
	Tally      tallyView               `json:"tally"`
	Adhoc      tallyView               `json:"adhoc"`
	ByCategory map[string]categoryView `json:"by_category,omitempty"`
	ExtraOccur []string                `json:"extra_occurrences,omitempty"`
}

type leftoverView struct {
	BankBalancesCents      int64    `json:"bank_balances_cents"`
	RemainingIncomeCents   int64    `json:"remaining_income_cents"`
	RemainingExpensesCents int64    `json:"remaining_expenses_cents"`
	LeftoverCents          int64    `json:"leftover_cents"`
	IsValid                bool     `json:"is_valid"`
	MissingBalances        []string `json:"missing_balances,omitempty"`
	MissingSummary         string   `json:"missing_summary,omitempty"`
}

type reportView struct {
	Month    string       `json:"month"`
	Bills    sectionView  `json:"bills"`
	Income   sectionView  `json:"income"`
	Leftover leftoverView `json:"leftover"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toOccurrenceView(o core.Occurrence) occurrenceView {
	v := occurrenceView{
		ID:              o.ID,
		Sequence:        o.Sequence,
		ExpectedDate:    o.ExpectedDate.String(),
		ExpectedCents:   o.ExpectedAmount.Cents,
		IsClosed:        o.IsClosed,
		PaymentSourceID: o.PaymentSourceID,
		IsAdhoc:         o.IsAdhoc,
		Notes:           o.Notes,
	}
	if o.IsClosed {
		v.ClosedDate = o.ClosedDate.String()
	}
	return v
}

func toInstanceView(inst core.Instance) instanceView {
	occs := make([]occurrenceView, 0, len(inst.Occurrences))
	for _, o := range inst.Occurrences {
		occs = append(occs, toOccurrenceView(o))
	}
	return instanceView{
		ID:              inst.ID,
		TemplateID:      inst.TemplateID,
		Name:            inst.Name,
		Kind:            string(inst.Kind),
		Month:           inst.Month.String(),
		BillingPeriod:   string(inst.BillingPeriod),
		ExpectedCents:   inst.ExpectedAmount.Cents,
		Closed:          inst.Closed(),
		IsAdhoc:         inst.IsAdhoc,
		IsPayoff:        inst.IsPayoff,
		CategoryID:      inst.CategoryID,
		PaymentSourceID: inst.PaymentSourceID,
		Occurrences:     occs,
	}
}

func toTallyView(t tally.SectionTally) tallyView {
	return tallyView{
		ExpectedCents:  t.Expected.Cents,
		ActualCents:    t.Actual.Cents,
		RemainingCents: t.Remaining.Cents,
	}
}

func toSectionView(s services.SectionReport) sectionView {
	view := sectionView{
		Tally:      toTallyView(s.Tally),
		Adhoc:      toTallyView(s.Adhoc),
		ExtraOccur: s.ExtraOccur,
	}
	if len(s.ByCategory) > 0 {
		view.ByCategory = make(map[string]categoryView, len(s.ByCategory))
		for name, totals := range s.ByCategory {
			view.ByCategory[name] = categoryView{
				ExpectedCents: totals.Expected.Cents,
				ActualCents:   totals.Actual.Cents,
			}
		}
	}
	return view
}

func toReportView(r services.MonthReport) reportView {
	return reportView{
		Month:  r.Month.String(),
		Bills:  toSectionView(r.Bills),
		Income: toSectionView(r.Income),
		Leftover: leftoverView{
			BankBalancesCents:      r.Leftover.BankBalances.Cents,
			RemainingIncomeCents:   r.Leftover.RemainingIncome.Cents,
			RemainingExpensesCents: r.Leftover.RemainingExpenses.Cents,
			LeftoverCents:          r.Leftover.Leftover.Cents,
			IsValid:                r.Leftover.IsValid,
			MissingBalances:        r.Leftover.MissingBalances,
			MissingSummary:         r.Leftover.MissingSummary,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps domain errors to HTTP status codes. Unrecognized
// errors are treated as internal and their detail is not leaked.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrAlreadyClosed),
		errors.Is(err, ledger.ErrNotClosed),
		errors.Is(err, ledger.ErrSplitClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrSplitAmount),
		errors.Is(err, ledger.ErrPartialClose),
		errors.Is(err, ledger.ErrNegativeClose),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
