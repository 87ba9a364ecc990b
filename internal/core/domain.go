package core

import (
	"errors"
	"strings"
)

// Billing periods supported by the recurrence calculator. Anything else is
// treated as monthly; see schedule.DatesIn.
const (
	Monthly      BillingPeriod = "monthly"
	Weekly       BillingPeriod = "weekly"
	BiWeekly     BillingPeriod = "bi_weekly"
	SemiAnnually BillingPeriod = "semi_annually"
)

// Instance kinds.
const (
	KindBill   InstanceKind = "bill"
	KindIncome InstanceKind = "income"
)

type (
	BillingPeriod string

	InstanceKind string

	// Occurrence is a single scheduled or ad-hoc money movement belonging
	// to one monthly Instance. A closed occurrence's ExpectedAmount is the
	// amount treated as settled.
	Occurrence struct {
		ID              string
		Sequence        int // 1..N within the owning instance; 0 = pending resequence
		ExpectedDate    Date
		ExpectedAmount  Money
		IsClosed        bool
		ClosedDate      Date // set iff IsClosed
		PaymentSourceID string
		IsAdhoc         bool
		Notes           string
	}

	// Instance is the materialization of a recurring Bill or Income
	// template for one calendar month. It owns its occurrence sequence
	// exclusively.
	Instance struct {
		ID              string
		TemplateID      string
		Name            string
		Kind            InstanceKind
		Month           Month
		BillingPeriod   BillingPeriod
		ExpectedAmount  Money
		Occurrences     []Occurrence
		IsAdhoc         bool
		IsDefault       bool
		IsPayoff        bool
		CategoryID      string
		PaymentSourceID string
	}

	// Template is a recurring obligation definition from which monthly
	// instances are materialized.
	Template struct {
		ID              string
		Name            string
		Kind            InstanceKind
		BillingPeriod   BillingPeriod
		Amount          Money
		StartDate       Date // optional anchor; zero when unset
		DayOfMonth      int  // optional; 0 when unset
		IsPayoff        bool
		IsActive        bool
		CategoryID      string
		PaymentSourceID string
	}

	// PaymentSource is an account money moves through. Owned externally;
	// the core only reads its flags.
	PaymentSource struct {
		ID                  string
		Name                string
		Type                string
		PayOffMonthly       bool
		ExcludeFromLeftover bool
		IsActive            bool
	}
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrMissingClosedDay = errors.New("closed occurrence must have a closed date")
)

// Validate checks the structural invariants of an occurrence: a closed one
// always carries a closed date, and the expected amount is never negative.
func (o Occurrence) Validate() error {
	if o.IsClosed && o.ClosedDate.IsZero() {
		return ErrMissingClosedDay
	}
	return o.ExpectedAmount.Validate()
}

// Closed reports whether the instance is fully settled: every occurrence of
// a non-empty occurrence set is closed.
func (i Instance) Closed() bool {
	if len(i.Occurrences) == 0 {
		return false
	}
	for _, o := range i.Occurrences {
		if !o.IsClosed {
			return false
		}
	}
	return true
}

// FindOccurrence returns the index of the occurrence with the given id, or
// -1 when absent.
func (i Instance) FindOccurrence(id string) int {
	for idx, o := range i.Occurrences {
		if o.ID == id {
			return idx
		}
	}
	return -1
}

// Validate checks an instance and all of its occurrences.
func (i Instance) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return ErrEmptyName
	}
	if err := i.ExpectedAmount.Validate(); err != nil {
		return err
	}
	for _, o := range i.Occurrences {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a template definition.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if t.Kind != KindBill && t.Kind != KindIncome {
		return errors.New("kind must be bill or income")
	}
	if t.DayOfMonth < 0 || t.DayOfMonth > 31 {
		return errors.New("day of month out of range")
	}
	return t.Amount.Validate()
}
