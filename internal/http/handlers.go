package http

import (
	"net/http"

	"github.com/google/uuid"

	"mensile/internal/core"
)

func reportCacheKey(month core.Month) string {
	return month.String() + ":report"
}

// invalidateMonth drops every cached view of the month after a write.
func (s *Server) invalidateMonth(month core.Month) {
	s.reportCache.DeletePrefix(month.String() + ":")
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	created, err := s.months.MaterializeMonth(r.Context(), month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateMonth(month)

	writeJSON(w, http.StatusOK, map[string]any{
		"month":   month.String(),
		"created": created,
	})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	instances, err := s.dir.ListInstances(r.Context(), month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]instanceView, 0, len(instances))
	for _, inst := range instances {
		views = append(views, toInstanceView(inst))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if report, ok := s.reportCache.Get(reportCacheKey(month)); ok {
		writeJSON(w, http.StatusOK, toReportView(report))
		return
	}

	report, err := s.months.Report(r.Context(), month)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.reportCache.Set(reportCacheKey(month), report)

	writeJSON(w, http.StatusOK, toReportView(report))
}

type balanceRequest struct {
	AmountCents *int64 `json:"amount_cents,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

func (s *Server) handleUpsertBalance(w http.ResponseWriter, r *http.Request) {
	month, err := pathMonth(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	sourceID := r.PathValue("sourceID")

	var req balanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := s.dir.UpsertBalance(r.Context(), month, sourceID, amount); err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateMonth(month)

	writeJSON(w, http.StatusOK, map[string]any{
		"month":        month.String(),
		"source_id":    sourceID,
		"amount_cents": amount.Cents,
	})
}

type closeRequest struct {
	AmountCents     *int64 `json:"amount_cents,omitempty"`
	Amount          string `json:"amount,omitempty"`
	ClosedDate      string `json:"closed_date,omitempty"`
	PaymentSourceID string `json:"payment_source_id,omitempty"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	closedDate, err := parseOptionalDate(req.ClosedDate, s.today)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	inst, err := s.months.CloseOccurrence(r.Context(),
		r.PathValue("instanceID"), r.PathValue("occurrenceID"),
		amount, closedDate, req.PaymentSourceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateMonth(inst.Month)

	writeJSON(w, http.StatusOK, toInstanceView(inst))
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paid, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	closedDate, err := parseOptionalDate(req.ClosedDate, s.today)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	inst, err := s.months.SplitOccurrence(r.Context(),
		r.PathValue("instanceID"), r.PathValue("occurrenceID"),
		paid, closedDate, req.PaymentSourceID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateMonth(inst.Month)

	writeJSON(w, http.StatusOK, toInstanceView(inst))
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	inst, err := s.months.ReopenOccurrence(r.Context(),
		r.PathValue("instanceID"), r.PathValue("occurrenceID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateMonth(inst.Month)

	writeJSON(w, http.StatusOK, toInstanceView(inst))
}

type adhocRequest struct {
	Date        string `json:"date,omitempty"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

func (s *Server) handleAddAdhoc(w http.ResponseWriter, r *http.Request) {
	var req adhocRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	date, err := parseOptionalDate(req.Date, s.today)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	inst, err := s.months.AddAdhocOccurrence(r.Context(), r.PathValue("instanceID"), date, amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.invalidateMonth(inst.Month)

	writeJSON(w, http.StatusCreated, toInstanceView(inst))
}

type templateRequest struct {
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	BillingPeriod   string `json:"billing_period"`
	AmountCents     *int64 `json:"amount_cents,omitempty"`
	Amount          string `json:"amount,omitempty"`
	StartDate       string `json:"start_date,omitempty"`
	DayOfMonth      int    `json:"day_of_month,omitempty"`
	IsPayoff        bool   `json:"is_payoff,omitempty"`
	CategoryID      string `json:"category_id,omitempty"`
	PaymentSourceID string `json:"payment_source_id,omitempty"`
}

type templateView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	BillingPeriod   string `json:"billing_period"`
	AmountCents     int64  `json:"amount_cents"`
	StartDate       string `json:"start_date,omitempty"`
	DayOfMonth      int    `json:"day_of_month,omitempty"`
	IsPayoff        bool   `json:"is_payoff"`
	IsActive        bool   `json:"is_active"`
	CategoryID      string `json:"category_id,omitempty"`
	PaymentSourceID string `json:"payment_source_id,omitempty"`
}

func toTemplateView(t core.Template) templateView {
	v := templateView{
		ID:              t.ID,
		Name:            t.Name,
		Kind:            string(t.Kind),
		BillingPeriod:   string(t.BillingPeriod),
		AmountCents:     t.Amount.Cents,
		DayOfMonth:      t.DayOfMonth,
		IsPayoff:        t.IsPayoff,
		IsActive:        t.IsActive,
		CategoryID:      t.CategoryID,
		PaymentSourceID: t.PaymentSourceID,
	}
	if !t.StartDate.IsZero() {
		v.StartDate = t.StartDate.String()
	}
	return v
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	amount, err := parseAmount(req.AmountCents, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var startDate core.Date
	if req.StartDate != "" {
		startDate, err = core.ParseDate(req.StartDate)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
	}

	tpl := core.Template{
		ID:              uuid.NewString(),
		Name:            sanitizeName(req.Name),
		Kind:            core.InstanceKind(req.Kind),
		BillingPeriod:   core.BillingPeriod(req.BillingPeriod),
		Amount:          amount,
		StartDate:       startDate,
		DayOfMonth:      req.DayOfMonth,
		IsPayoff:        req.IsPayoff,
		IsActive:        true,
		CategoryID:      req.CategoryID,
		PaymentSourceID: req.PaymentSourceID,
	}
	if err := tpl.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.dir.CreateTemplate(r.Context(), tpl); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTemplateView(tpl))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.dir.ListActiveTemplates(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]templateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, toTemplateView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

type paymentSourceRequest struct {
	Name                string `json:"name"`
	Type                string `json:"type,omitempty"`
	PayOffMonthly       bool   `json:"pay_off_monthly,omitempty"`
	ExcludeFromLeftover bool   `json:"exclude_from_leftover,omitempty"`
}

type paymentSourceView struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Type                string `json:"type,omitempty"`
	PayOffMonthly       bool   `json:"pay_off_monthly"`
	ExcludeFromLeftover bool   `json:"exclude_from_leftover"`
	IsActive            bool   `json:"is_active"`
}

func (s *Server) handleCreatePaymentSource(w http.ResponseWriter, r *http.Request) {
	var req paymentSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	src := core.PaymentSource{
		ID:                  uuid.NewString(),
		Name:                sanitizeName(req.Name),
		Type:                req.Type,
		PayOffMonthly:       req.PayOffMonthly,
		ExcludeFromLeftover: req.ExcludeFromLeftover,
		IsActive:            true,
	}
	if src.Name == "" {
		writeError(w, http.StatusBadRequest, core.ErrEmptyName.Error())
		return
	}

	if err := s.dir.CreatePaymentSource(r.Context(), src); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentSourceView{
		ID:                  src.ID,
		Name:                src.Name,
		Type:                src.Type,
		PayOffMonthly:       src.PayOffMonthly,
		ExcludeFromLeftover: src.ExcludeFromLeftover,
		IsActive:            src.IsActive,
	})
}

func (s *Server) handleListPaymentSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.dir.ListPaymentSources(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]paymentSourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, paymentSourceView{
			ID:                  src.ID,
			Name:                src.Name,
			Type:                src.Type,
			PayOffMonthly:       src.PayOffMonthly,
			ExcludeFromLeftover: src.ExcludeFromLeftover,
			IsActive:            src.IsActive,
		})
	}
	writeJSON(w, http.StatusOK, views)
}
