// Package services orchestrates the core calculators over storage: month
// materialization, the close/split/reopen workflow, and the month report
// read model. Persistence writes happen here; the calculators stay pure.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"mensile/internal/core"
	"mensile/internal/ledger"
	"mensile/internal/log"
	"mensile/internal/schedule"
	"mensile/internal/tally"
)

// Store is the persistence surface the month service needs. Implemented by
// storage.SQLiteRepository.
type Store interface {
	ListActiveTemplates(ctx context.Context) ([]core.Template, error)
	HasInstanceForTemplate(ctx context.Context, templateID string, month core.Month) (bool, error)
	CreateInstance(ctx context.Context, inst core.Instance) error
	GetInstance(ctx context.Context, id string) (core.Instance, error)
	ListInstances(ctx context.Context, month core.Month) ([]core.Instance, error)
	ReplaceOccurrences(ctx context.Context, instanceID string, occs []core.Occurrence) error
	ListPaymentSources(ctx context.Context) ([]core.PaymentSource, error)
	GetBalances(ctx context.Context, month core.Month) (map[string]core.Money, error)
}

// SyncPublisher notifies the sync pipeline that a month changed. Optional;
// a nil publisher disables sync.
type SyncPublisher interface {
	PublishMonthSync(ctx context.Context, month, reason string) error
}

// MonthService drives one month's instances.
type MonthService struct {
	store Store
	sync  SyncPublisher
}

func NewMonthService(store Store, sync SyncPublisher) *MonthService {
	return &MonthService{store: store, sync: sync}
}

// SectionReport is one section of the month report.
type SectionReport struct {
	Tally      tally.SectionTally
	Adhoc      tally.SectionTally
	ByCategory map[string]tally.CategoryTotal
	ExtraOccur []string // instance ids with more occurrences than the cadence's usual count
}

// MonthReport is the full read model for a month.
type MonthReport struct {
	Month    core.Month
	Bills    SectionReport
	Income   SectionReport
	Leftover tally.LeftoverResult
}

// MaterializeMonth creates an instance for every active template that does
// not yet have one in the month. Idempotent: templates already materialized
// are skipped, so the worker can run it on a timer.
func (s *MonthService) MaterializeMonth(ctx context.Context, month core.Month) (int, error) {
	templates, err := s.store.ListActiveTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}

	created := 0
	for _, tpl := range templates {
		exists, err := s.store.HasInstanceForTemplate(ctx, tpl.ID, month)
		if err != nil {
			return created, fmt.Errorf("check template %s: %w", tpl.ID, err)
		}
		if exists {
			continue
		}

		inst := materializeTemplate(tpl, month)
		if len(inst.Occurrences) == 0 {
			// Semi-annual templates land in most months with no dates;
			// nothing to track, so no instance either.
			continue
		}
		if err := s.store.CreateInstance(ctx, inst); err != nil {
			return created, fmt.Errorf("create instance for template %s: %w", tpl.ID, err)
		}
		created++

		slog.InfoContext(ctx, "Materialized instance",
			log.FieldTemplateID, tpl.ID,
			log.FieldInstanceID, inst.ID,
			log.FieldMonth, month.String(),
			log.FieldCount, len(inst.Occurrences))
	}

	if created > 0 {
		s.publish(ctx, month, "materialize")
	}
	return created, nil
}

// materializeTemplate runs the recurrence calculator and occurrence factory
// for one template and month.
func materializeTemplate(tpl core.Template, month core.Month) core.Instance {
	dates := schedule.DatesIn(tpl.BillingPeriod, month, tpl.StartDate, tpl.DayOfMonth)
	occs := ledger.Generate(dates, tpl.Amount)
	return core.Instance{
		ID:              uuid.NewString(),
		TemplateID:      tpl.ID,
		Name:            tpl.Name,
		Kind:            tpl.Kind,
		Month:           month,
		BillingPeriod:   tpl.BillingPeriod,
		ExpectedAmount:  core.Money{Cents: tpl.Amount.Cents * int64(len(occs))},
		Occurrences:     occs,
		IsDefault:       true,
		IsPayoff:        tpl.IsPayoff,
		CategoryID:      tpl.CategoryID,
		PaymentSourceID: tpl.PaymentSourceID,
	}
}

// CloseOccurrence settles an occurrence and persists the updated sequence.
func (s *MonthService) CloseOccurrence(ctx context.Context, instanceID, occurrenceID string, amount core.Money, closedDate core.Date, paymentSourceID string) (core.Instance, error) {
	return s.transition(ctx, instanceID, "close", func(occs []core.Occurrence) ([]core.Occurrence, error) {
		return ledger.Close(occs, occurrenceID, amount, closedDate, paymentSourceID)
	})
}

// SplitOccurrence records a partial payment, closing the paid portion and
// carrying the remainder as a new open occurrence.
func (s *MonthService) SplitOccurrence(ctx context.Context, instanceID, occurrenceID string, paid core.Money, closedDate core.Date, paymentSourceID string) (core.Instance, error) {
	return s.transition(ctx, instanceID, "split", func(occs []core.Occurrence) ([]core.Occurrence, error) {
		return ledger.Split(occs, occurrenceID, paid, closedDate, paymentSourceID)
	})
}

// ReopenOccurrence reverses a close.
func (s *MonthService) ReopenOccurrence(ctx context.Context, instanceID, occurrenceID string) (core.Instance, error) {
	return s.transition(ctx, instanceID, "reopen", func(occs []core.Occurrence) ([]core.Occurrence, error) {
		return ledger.Reopen(occs, occurrenceID)
	})
}

// AddAdhocOccurrence appends a manually created occurrence to an instance
// and resequences.
func (s *MonthService) AddAdhocOccurrence(ctx context.Context, instanceID string, date core.Date, amount core.Money) (core.Instance, error) {
	return s.transition(ctx, instanceID, "adhoc", func(occs []core.Occurrence) ([]core.Occurrence, error) {
		return ledger.Resequence(append(occs, ledger.NewAdhoc(date, amount))), nil
	})
}

func (s *MonthService) transition(ctx context.Context, instanceID, reason string, apply func([]core.Occurrence) ([]core.Occurrence, error)) (core.Instance, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return core.Instance{}, err
	}

	occs, err := apply(inst.Occurrences)
	if err != nil {
		return core.Instance{}, err
	}

	if err := s.store.ReplaceOccurrences(ctx, instanceID, occs); err != nil {
		return core.Instance{}, fmt.Errorf("persist occurrences: %w", err)
	}
	inst.Occurrences = occs

	s.publish(ctx, inst.Month, reason)
	return inst, nil
}

// Report assembles the month read model: per-section tallies with the
// ad-hoc partition, category subtotals, extra-occurrence flags, and the
// leftover projection.
func (s *MonthService) Report(ctx context.Context, month core.Month) (MonthReport, error) {
	instances, err := s.store.ListInstances(ctx, month)
	if err != nil {
		return MonthReport{}, fmt.Errorf("list instances: %w", err)
	}

	var bills, incomes []core.Instance
	for _, inst := range instances {
		switch inst.Kind {
		case core.KindIncome:
			incomes = append(incomes, inst)
		default:
			bills = append(bills, inst)
		}
	}

	sources, err := s.store.ListPaymentSources(ctx)
	if err != nil {
		return MonthReport{}, fmt.Errorf("list payment sources: %w", err)
	}
	balances, err := s.store.GetBalances(ctx, month)
	if err != nil {
		return MonthReport{}, fmt.Errorf("get balances: %w", err)
	}

	report := MonthReport{
		Month:    month,
		Bills:    sectionReport(bills),
		Income:   sectionReport(incomes),
		Leftover: tally.Leftover(sources, balances, bills, incomes),
	}
	if !report.Leftover.IsValid {
		slog.WarnContext(ctx, "Leftover incomplete",
			log.FieldMonth, month.String(),
			"missing", report.Leftover.MissingBalances)
	}
	return report, nil
}

func sectionReport(insts []core.Instance) SectionReport {
	var scheduled, adhoc []core.Instance
	var extra []string
	for _, inst := range insts {
		if inst.IsAdhoc {
			adhoc = append(adhoc, inst)
		} else {
			scheduled = append(scheduled, inst)
		}
		if schedule.HasExtraOccurrences(inst.BillingPeriod, len(inst.Occurrences)) {
			extra = append(extra, inst.ID)
		}
	}
	return SectionReport{
		Tally:      tally.Combine(tally.Section(scheduled), tally.Section(adhoc)),
		Adhoc:      tally.Section(adhoc),
		ByCategory: tally.ByCategory(insts),
		ExtraOccur: extra,
	}
}

func (s *MonthService) publish(ctx context.Context, month core.Month, reason string) {
	if s.sync == nil {
		return
	}
	if err := s.sync.PublishMonthSync(ctx, month.String(), reason); err != nil {
		// The write already succeeded; sync is best effort.
		slog.ErrorContext(ctx, "Failed to publish month sync message",
			log.FieldMonth, month.String(),
			"reason", reason,
			log.FieldError, err)
	}
}
