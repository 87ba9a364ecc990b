package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"mensile/internal/core"
	"mensile/internal/ledger"
	"mensile/internal/tally"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	templates []core.Template
	instances map[string]core.Instance
	sources   []core.PaymentSource
	balances  map[string]map[string]core.Money // month -> source -> amount
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		instances: make(map[string]core.Instance),
		balances:  make(map[string]map[string]core.Money),
	}
}

func (f *fakeStore) ListActiveTemplates(context.Context) ([]core.Template, error) {
	var out []core.Template
	for _, t := range f.templates {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) HasInstanceForTemplate(_ context.Context, templateID string, month core.Month) (bool, error) {
	for _, inst := range f.instances {
		if inst.TemplateID == templateID && inst.Month == month {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateInstance(_ context.Context, inst core.Instance) error {
	f.instances[inst.ID] = inst
	return nil
}

func (f *fakeStore) GetInstance(_ context.Context, id string) (core.Instance, error) {
	inst, ok := f.instances[id]
	if !ok {
		return core.Instance{}, fmt.Errorf("instance %s: not found", id)
	}
	return inst, nil
}

func (f *fakeStore) ListInstances(_ context.Context, month core.Month) ([]core.Instance, error) {
	var out []core.Instance
	for _, inst := range f.instances {
		if inst.Month == month {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplaceOccurrences(_ context.Context, instanceID string, occs []core.Occurrence) error {
	inst, ok := f.instances[instanceID]
	if !ok {
		return fmt.Errorf("instance %s: not found", instanceID)
	}
	inst.Occurrences = occs
	f.instances[instanceID] = inst
	return nil
}

func (f *fakeStore) ListPaymentSources(context.Context) ([]core.PaymentSource, error) {
	return f.sources, nil
}

func (f *fakeStore) GetBalances(_ context.Context, month core.Month) (map[string]core.Money, error) {
	if m, ok := f.balances[month.String()]; ok {
		return m, nil
	}
	return map[string]core.Money{}, nil
}

type fakePublisher struct {
	published []string // "month/reason"
	fail      bool
}

func (p *fakePublisher) PublishMonthSync(_ context.Context, month, reason string) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, month+"/"+reason)
	return nil
}

func month(t *testing.T, s string) core.Month {
	t.Helper()
	m, err := core.ParseMonth(s)
	if err != nil {
		t.Fatalf("parse month: %v", err)
	}
	return m
}

func TestMaterializeMonth(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.Template{
		{ID: "rent", Name: "Rent", Kind: core.KindBill, BillingPeriod: core.Monthly,
			Amount: core.Money{Cents: 120000}, DayOfMonth: 1, IsActive: true},
		{ID: "pay", Name: "Paycheck", Kind: core.KindIncome, BillingPeriod: core.BiWeekly,
			Amount: core.Money{Cents: 250000}, StartDate: core.NewDate(2025, 1, 3), IsActive: true},
		{ID: "ins", Name: "Insurance", Kind: core.KindBill, BillingPeriod: core.SemiAnnually,
			Amount: core.Money{Cents: 60000}, StartDate: core.NewDate(2025, 1, 15), IsActive: true},
		{ID: "old", Name: "Cancelled", Kind: core.KindBill, BillingPeriod: core.Monthly,
			Amount: core.Money{Cents: 1000}, IsActive: false},
	}
	pub := &fakePublisher{}
	svc := NewMonthService(store, pub)

	created, err := svc.MaterializeMonth(context.Background(), month(t, "2025-02"))
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	// Rent and paycheck; insurance has no february date, cancelled is inactive.
	if created != 2 {
		t.Fatalf("created %d, want 2", created)
	}

	byTemplate := map[string]core.Instance{}
	for _, inst := range store.instances {
		byTemplate[inst.TemplateID] = inst
	}

	rent := byTemplate["rent"]
	if len(rent.Occurrences) != 1 || rent.Occurrences[0].ExpectedDate.String() != "2025-02-01" {
		t.Fatalf("rent occurrences %+v", rent.Occurrences)
	}
	if rent.ExpectedAmount.Cents != 120000 {
		t.Fatalf("rent expected %d", rent.ExpectedAmount.Cents)
	}
	if !rent.IsDefault || rent.IsAdhoc {
		t.Fatalf("rent flags %+v", rent)
	}

	pay := byTemplate["pay"]
	if len(pay.Occurrences) != 2 {
		t.Fatalf("paycheck occurrences %d, want 2", len(pay.Occurrences))
	}
	if pay.ExpectedAmount.Cents != 500000 {
		t.Fatalf("paycheck expected %d", pay.ExpectedAmount.Cents)
	}

	if len(pub.published) != 1 || pub.published[0] != "2025-02/materialize" {
		t.Fatalf("published %v", pub.published)
	}
}

func TestMaterializeMonth_Idempotent(t *testing.T) {
	store := newFakeStore()
	store.templates = []core.Template{
		{ID: "rent", Name: "Rent", Kind: core.KindBill, BillingPeriod: core.Monthly,
			Amount: core.Money{Cents: 120000}, IsActive: true},
	}
	svc := NewMonthService(store, nil)
	ctx := context.Background()
	m := month(t, "2025-02")

	if created, err := svc.MaterializeMonth(ctx, m); err != nil || created != 1 {
		t.Fatalf("first run: %d, %v", created, err)
	}
	if created, err := svc.MaterializeMonth(ctx, m); err != nil || created != 0 {
		t.Fatalf("second run: %d, %v", created, err)
	}
	if len(store.instances) != 1 {
		t.Fatalf("instances %d", len(store.instances))
	}
}

func seedInstance(store *fakeStore, id string, kind core.InstanceKind, expected int64, occs []core.Occurrence) {
	store.instances[id] = core.Instance{
		ID:             id,
		Name:           id,
		Kind:           kind,
		Month:          core.Month{Year: 2025, Mon: 2},
		BillingPeriod:  core.Monthly,
		ExpectedAmount: core.Money{Cents: expected},
		Occurrences:    occs,
	}
}

func TestCloseSplitReopenWorkflow(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	svc := NewMonthService(store, pub)
	ctx := context.Background()

	occs := ledger.Generate([]core.Date{core.NewDate(2025, 2, 10)}, core.Money{Cents: 30000})
	seedInstance(store, "util", core.KindBill, 30000, occs)
	occID := occs[0].ID

	// Partial payment: split.
	inst, err := svc.SplitOccurrence(ctx, "util", occID, core.Money{Cents: 10000}, core.NewDate(2025, 2, 11), "chk")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(inst.Occurrences) != 2 {
		t.Fatalf("occurrences %d", len(inst.Occurrences))
	}
	var remainderID string
	var total int64
	for _, o := range inst.Occurrences {
		total += o.ExpectedAmount.Cents
		if o.ID != occID {
			remainderID = o.ID
		}
	}
	if total != 30000 {
		t.Fatalf("conservation violated: %d", total)
	}

	// Settle the remainder in full.
	inst, err = svc.CloseOccurrence(ctx, "util", remainderID, core.Money{Cents: 20000}, core.NewDate(2025, 2, 20), "chk")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !inst.Closed() {
		t.Fatal("instance should be closed")
	}

	// Change of heart.
	inst, err = svc.ReopenOccurrence(ctx, "util", remainderID)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if inst.Closed() {
		t.Fatal("instance should be open again")
	}

	// All three transitions published.
	want := []string{"2025-02/split", "2025-02/close", "2025-02/reopen"}
	if len(pub.published) != len(want) {
		t.Fatalf("published %v", pub.published)
	}
	for i, w := range want {
		if pub.published[i] != w {
			t.Fatalf("published[%d] = %s, want %s", i, pub.published[i], w)
		}
	}
}

func TestTransition_PublishFailureDoesNotFailWrite(t *testing.T) {
	store := newFakeStore()
	svc := NewMonthService(store, &fakePublisher{fail: true})

	occs := ledger.Generate([]core.Date{core.NewDate(2025, 2, 10)}, core.Money{Cents: 5000})
	seedInstance(store, "net", core.KindBill, 5000, occs)

	inst, err := svc.CloseOccurrence(context.Background(), "net", occs[0].ID,
		core.Money{Cents: 5000}, core.NewDate(2025, 2, 10), "")
	if err != nil {
		t.Fatalf("close must survive a broker failure: %v", err)
	}
	if !inst.Closed() {
		t.Fatal("instance should be closed")
	}
}

func TestAddAdhocOccurrence(t *testing.T) {
	store := newFakeStore()
	svc := NewMonthService(store, nil)

	occs := ledger.Generate([]core.Date{core.NewDate(2025, 2, 20)}, core.Money{Cents: 5000})
	seedInstance(store, "misc", core.KindBill, 5000, occs)

	inst, err := svc.AddAdhocOccurrence(context.Background(), "misc", core.NewDate(2025, 2, 5), core.Money{Cents: 1500})
	if err != nil {
		t.Fatalf("adhoc: %v", err)
	}
	if len(inst.Occurrences) != 2 {
		t.Fatalf("occurrences %d", len(inst.Occurrences))
	}
	// Resequenced: the earlier ad-hoc date comes first.
	if !inst.Occurrences[0].IsAdhoc || inst.Occurrences[0].Sequence != 1 {
		t.Fatalf("first occurrence %+v", inst.Occurrences[0])
	}
}

func TestReport(t *testing.T) {
	store := newFakeStore()
	svc := NewMonthService(store, nil)
	ctx := context.Background()
	m := month(t, "2025-02")

	// Two bills: one paid in part, one untouched.
	occsA := ledger.Generate([]core.Date{core.NewDate(2025, 2, 1)}, core.Money{Cents: 120000})
	seedInstance(store, "rent", core.KindBill, 120000, occsA)
	occsB := ledger.Generate([]core.Date{core.NewDate(2025, 2, 15)}, core.Money{Cents: 8000})
	closedB, err := ledger.Close(occsB, occsB[0].ID, core.Money{Cents: 8000}, core.NewDate(2025, 2, 15), "chk")
	if err != nil {
		t.Fatalf("setup close: %v", err)
	}
	seedInstance(store, "util", core.KindBill, 8000, closedB)

	// One income, half received.
	occsI := ledger.Generate([]core.Date{core.NewDate(2025, 2, 7), core.NewDate(2025, 2, 21)}, core.Money{Cents: 125000})
	closedI, err := ledger.Close(occsI, occsI[0].ID, core.Money{Cents: 125000}, core.NewDate(2025, 2, 7), "chk")
	if err != nil {
		t.Fatalf("setup close: %v", err)
	}
	seedInstance(store, "salary", core.KindIncome, 250000, closedI)

	store.sources = []core.PaymentSource{
		{ID: "chk", Name: "Checking", IsActive: true},
		{ID: "sav", Name: "Savings", IsActive: true},
	}
	store.balances["2025-02"] = map[string]core.Money{
		"chk": {Cents: 200000},
		"sav": {Cents: 300000},
	}

	report, err := svc.Report(ctx, m)
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if report.Bills.Tally.Expected.Cents != 128000 {
		t.Errorf("bills expected %d", report.Bills.Tally.Expected.Cents)
	}
	if report.Bills.Tally.Actual.Cents != 8000 {
		t.Errorf("bills actual %d", report.Bills.Tally.Actual.Cents)
	}
	if report.Bills.Tally.Remaining.Cents != 120000 {
		t.Errorf("bills remaining %d", report.Bills.Tally.Remaining.Cents)
	}
	if report.Income.Tally.Remaining.Cents != 125000 {
		t.Errorf("income remaining %d", report.Income.Tally.Remaining.Cents)
	}

	if !report.Leftover.IsValid {
		t.Fatalf("leftover invalid: %v", report.Leftover.MissingBalances)
	}
	// 500000 + 125000 - 120000, hand-computed.
	if report.Leftover.Leftover.Cents != 505000 {
		t.Errorf("leftover %d", report.Leftover.Leftover.Cents)
	}
}

func TestReport_MissingBalance(t *testing.T) {
	store := newFakeStore()
	store.sources = []core.PaymentSource{{ID: "chk", Name: "Checking", IsActive: true}}
	svc := NewMonthService(store, nil)

	report, err := svc.Report(context.Background(), month(t, "2025-03"))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Leftover.IsValid {
		t.Fatal("expected invalid leftover")
	}
	if len(report.Leftover.MissingBalances) != 1 || report.Leftover.MissingBalances[0] != "chk" {
		t.Fatalf("missing %v", report.Leftover.MissingBalances)
	}
	if report.Bills.Tally != (tally.SectionTally{}) {
		t.Fatalf("bills tally %+v, want zero", report.Bills.Tally)
	}
}
