package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mensile/internal/core"
	"mensile/internal/ledger"
	"mensile/internal/services"
	"mensile/internal/storage"
)

type fakeMonthService struct {
	created        int
	materializeErr error
	transitionErr  error
	instance       core.Instance
	reportCalls    int
	report         services.MonthReport
}

func (f *fakeMonthService) MaterializeMonth(_ context.Context, _ core.Month) (int, error) {
	return f.created, f.materializeErr
}

func (f *fakeMonthService) CloseOccurrence(_ context.Context, _, _ string, _ core.Money, _ core.Date, _ string) (core.Instance, error) {
	if f.transitionErr != nil {
		return core.Instance{}, f.transitionErr
	}
	return f.instance, nil
}

func (f *fakeMonthService) SplitOccurrence(_ context.Context, _, _ string, _ core.Money, _ core.Date, _ string) (core.Instance, error) {
	if f.transitionErr != nil {
		return core.Instance{}, f.transitionErr
	}
	return f.instance, nil
}

func (f *fakeMonthService) ReopenOccurrence(_ context.Context, _, _ string) (core.Instance, error) {
	if f.transitionErr != nil {
		return core.Instance{}, f.transitionErr
	}
	return f.instance, nil
}

func (f *fakeMonthService) AddAdhocOccurrence(_ context.Context, _ string, _ core.Date, _ core.Money) (core.Instance, error) {
	if f.transitionErr != nil {
		return core.Instance{}, f.transitionErr
	}
	return f.instance, nil
}

func (f *fakeMonthService) Report(_ context.Context, month core.Month) (services.MonthReport, error) {
	f.reportCalls++
	report := f.report
	report.Month = month
	return report, nil
}

type fakeDirectory struct {
	templates []core.Template
	sources   []core.PaymentSource
	instances []core.Instance
	balances  map[string]core.Money
}

func (f *fakeDirectory) CreateTemplate(_ context.Context, t core.Template) error {
	f.templates = append(f.templates, t)
	return nil
}

func (f *fakeDirectory) ListActiveTemplates(_ context.Context) ([]core.Template, error) {
	return f.templates, nil
}

func (f *fakeDirectory) CreatePaymentSource(_ context.Context, s core.PaymentSource) error {
	f.sources = append(f.sources, s)
	return nil
}

func (f *fakeDirectory) ListPaymentSources(_ context.Context) ([]core.PaymentSource, error) {
	return f.sources, nil
}

func (f *fakeDirectory) UpsertBalance(_ context.Context, _ core.Month, sourceID string, amount core.Money) error {
	if f.balances == nil {
		f.balances = make(map[string]core.Money)
	}
	f.balances[sourceID] = amount
	return nil
}

func (f *fakeDirectory) ListInstances(_ context.Context, _ core.Month) ([]core.Instance, error) {
	return f.instances, nil
}

func newTestServer(svc *fakeMonthService, dir *fakeDirectory) *Server {
	s := NewServer(":0", svc, dir)
	s.today = func() core.Date { return core.NewDate(2025, 3, 15) }
	return s
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleMaterialize(t *testing.T) {
	svc := &fakeMonthService{created: 3}
	s := newTestServer(svc, &fakeDirectory{})

	rec := doRequest(t, s, http.MethodPost, "/months/2025-03/materialize", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["month"] != "2025-03" || resp["created"] != float64(3) {
		t.Errorf("response = %v", resp)
	}
}

func TestHandleMaterialize_BadMonth(t *testing.T) {
	s := newTestServer(&fakeMonthService{}, &fakeDirectory{})

	rec := doRequest(t, s, http.MethodPost, "/months/march/materialize", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleClose_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"already closed maps to conflict", ledger.ErrAlreadyClosed, http.StatusConflict},
		{"partial close maps to bad request", ledger.ErrPartialClose, http.StatusBadRequest},
		{"unknown occurrence maps to not found", ledger.ErrNotFound, http.StatusNotFound},
		{"unknown instance maps to not found", storage.ErrNotFound, http.StatusNotFound},
		{"unexpected error maps to internal", fmt.Errorf("db locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeMonthService{transitionErr: tt.err}
			s := newTestServer(svc, &fakeDirectory{})

			rec := doRequest(t, s, http.MethodPost,
				"/instances/inst-1/occurrences/occ-1/close",
				`{"amount_cents": 5000}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHandleClose_ReturnsInstance(t *testing.T) {
	month, _ := core.ParseMonth("2025-03")
	svc := &fakeMonthService{instance: core.Instance{
		ID:    "inst-1",
		Name:  "Rent",
		Kind:  core.KindBill,
		Month: month,
		Occurrences: []core.Occurrence{{
			ID:             "occ-1",
			Sequence:       1,
			ExpectedDate:   core.NewDate(2025, 3, 1),
			ExpectedAmount: core.Money{Cents: 120000},
			IsClosed:       true,
			ClosedDate:     core.NewDate(2025, 3, 2),
		}},
	}}
	s := newTestServer(svc, &fakeDirectory{})

	rec := doRequest(t, s, http.MethodPost,
		"/instances/inst-1/occurrences/occ-1/close",
		`{"amount_cents": 120000, "closed_date": "2025-03-02"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}

	var view instanceView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !view.Closed {
		t.Error("instance not reported closed")
	}
	if view.Occurrences[0].ClosedDate != "2025-03-02" {
		t.Errorf("closed_date = %s, want 2025-03-02", view.Occurrences[0].ClosedDate)
	}
}

func TestHandleClose_RejectsMissingAmount(t *testing.T) {
	s := newTestServer(&fakeMonthService{}, &fakeDirectory{})

	rec := doRequest(t, s, http.MethodPost,
		"/instances/inst-1/occurrences/occ-1/close", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSplit_AcceptsDecimalAmount(t *testing.T) {
	svc := &fakeMonthService{instance: core.Instance{Name: "Rent", Month: mustMonth(t, "2025-03")}}
	s := newTestServer(svc, &fakeDirectory{})

	rec := doRequest(t, s, http.MethodPost,
		"/instances/inst-1/occurrences/occ-1/split",
		`{"amount": "450,50"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleMonthReport_Caching(t *testing.T) {
	svc := &fakeMonthService{}
	s := newTestServer(svc, &fakeDirectory{})

	for range 3 {
		rec := doRequest(t, s, http.MethodGet, "/months/2025-03/report", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	if svc.reportCalls != 1 {
		t.Errorf("report built %d times, want 1 (cached afterwards)", svc.reportCalls)
	}

	// A write to the month invalidates the cached report.
	svc.instance = core.Instance{Name: "Rent", Month: mustMonth(t, "2025-03"),
		Occurrences: []core.Occurrence{{ID: "occ-1", IsClosed: true, ClosedDate: core.NewDate(2025, 3, 2)}}}
	doRequest(t, s, http.MethodPost,
		"/instances/inst-1/occurrences/occ-1/close", `{"amount_cents": 0}`)

	doRequest(t, s, http.MethodGet, "/months/2025-03/report", "")
	if svc.reportCalls != 2 {
		t.Errorf("report built %d times after invalidation, want 2", svc.reportCalls)
	}
}

func TestHandleCreateTemplate(t *testing.T) {
	dir := &fakeDirectory{}
	s := newTestServer(&fakeMonthService{}, dir)

	rec := doRequest(t, s, http.MethodPost, "/templates",
		`{"name": "  Rent ", "kind": "bill", "billing_period": "monthly", "amount_cents": 120000, "day_of_month": 1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}

	if len(dir.templates) != 1 {
		t.Fatalf("templates stored = %d, want 1", len(dir.templates))
	}
	tpl := dir.templates[0]
	if tpl.Name != "Rent" {
		t.Errorf("name = %q, want sanitized %q", tpl.Name, "Rent")
	}
	if tpl.ID == "" || !tpl.IsActive {
		t.Errorf("template not initialized: id=%q active=%v", tpl.ID, tpl.IsActive)
	}
}

func TestHandleCreateTemplate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"name": "", "kind": "bill", "billing_period": "monthly", "amount_cents": 100}`},
		{"bad kind", `{"name": "Rent", "kind": "loan", "billing_period": "monthly", "amount_cents": 100}`},
		{"negative amount", `{"name": "Rent", "kind": "bill", "billing_period": "monthly", "amount_cents": -1}`},
		{"unknown field", `{"name": "Rent", "kind": "bill", "billing_period": "monthly", "amount_cents": 100, "color": "red"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeMonthService{}, &fakeDirectory{})
			rec := doRequest(t, s, http.MethodPost, "/templates", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleUpsertBalance(t *testing.T) {
	dir := &fakeDirectory{}
	s := newTestServer(&fakeMonthService{}, dir)

	rec := doRequest(t, s, http.MethodPut, "/months/2025-03/balances/src-1",
		`{"amount": "1500.00"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}

	if got := dir.balances["src-1"].Cents; got != 150000 {
		t.Errorf("stored balance = %d cents, want 150000", got)
	}
}

func TestHandleCreatePaymentSource(t *testing.T) {
	dir := &fakeDirectory{}
	s := newTestServer(&fakeMonthService{}, dir)

	rec := doRequest(t, s, http.MethodPost, "/payment-sources",
		`{"name": "Checking", "type": "bank", "exclude_from_leftover": false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; body %s", rec.Code, rec.Body.String())
	}
	if len(dir.sources) != 1 || !dir.sources[0].IsActive {
		t.Fatalf("source not stored active: %+v", dir.sources)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeMonthService{}, &fakeDirectory{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doRequest(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func mustMonth(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	if err != nil {
		t.Fatalf("parse month %q: %v", s, err)
	}
	return m
}
