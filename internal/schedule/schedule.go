// Package schedule turns a billing cadence plus an optional anchor date into
// the concrete calendar dates an obligation falls on within a target month.
//
// Each billing period has its own scheduler strategy. The registry maps
// period values to strategies; unknown periods deliberately fall back to the
// monthly scheduler rather than failing (legacy data carries free-form
// period strings).
package schedule

import (
	"time"

	"mensile/internal/core"
)

const (
	weeklyStride   = 7
	biWeeklyStride = 14
)

// DateScheduler is the strategy interface for one billing period. anchor is
// the zero Date when the template has no start date; dayOfMonth is 0 when
// unset. Implementations return ascending dates, all inside month.
type DateScheduler interface {
	DatesIn(month core.Month, anchor core.Date, dayOfMonth int) []core.Date
}

// MonthlyScheduler yields a single date per month.
type MonthlyScheduler struct{}

// DatesIn returns the one monthly due date: the requested day of month,
// else the anchor's day, else the 1st, clamped to the month's last day.
func (MonthlyScheduler) DatesIn(month core.Month, anchor core.Date, dayOfMonth int) []core.Date {
	return []core.Date{month.ClampDay(resolveMonthlyDay(dayOfMonth, anchor))}
}

// WeeklyScheduler yields every 7-day stride from the anchor that lands in
// the month; without an anchor, every Monday.
type WeeklyScheduler struct{}

func (WeeklyScheduler) DatesIn(month core.Month, anchor core.Date, _ int) []core.Date {
	if anchor.IsZero() {
		return mondaysOf(month)
	}
	return strideDates(month, anchor, weeklyStride)
}

// BiWeeklyScheduler yields every 14-day stride from the anchor; without an
// anchor, the 1st and the 15th.
type BiWeeklyScheduler struct{}

func (BiWeeklyScheduler) DatesIn(month core.Month, anchor core.Date, _ int) []core.Date {
	if anchor.IsZero() {
		return []core.Date{month.ClampDay(1), month.ClampDay(15)}
	}
	return strideDates(month, anchor, biWeeklyStride)
}

// SemiAnnualScheduler yields at most one date, in months a whole number of
// 6-month strides after the anchor; without an anchor, January and July on
// the 1st.
type SemiAnnualScheduler struct{}

func (SemiAnnualScheduler) DatesIn(month core.Month, anchor core.Date, _ int) []core.Date {
	if anchor.IsZero() {
		if month.Mon == 1 || month.Mon == 7 {
			return []core.Date{month.ClampDay(1)}
		}
		return nil
	}
	diff := monthsBetween(anchor.MonthOf(), month)
	if diff < 0 || diff%6 != 0 {
		return nil
	}
	return []core.Date{month.ClampDay(anchor.Day())}
}

// schedulers maps billing periods to their strategies.
var schedulers = map[core.BillingPeriod]DateScheduler{
	core.Monthly:      MonthlyScheduler{},
	core.Weekly:       WeeklyScheduler{},
	core.BiWeekly:     BiWeeklyScheduler{},
	core.SemiAnnually: SemiAnnualScheduler{},
}

// ForPeriod returns the scheduler for a billing period. Unrecognized values
// fall back to monthly; this is a documented quirk, not a silent failure,
// and DatesIn never errors because of it.
func ForPeriod(period core.BillingPeriod) DateScheduler {
	if s, ok := schedulers[period]; ok {
		return s
	}
	return MonthlyScheduler{}
}

// Register adds a scheduler for a custom billing period.
func Register(period core.BillingPeriod, s DateScheduler) {
	schedulers[period] = s
}

// DatesIn is the package entry point: the ascending in-month due dates for
// one template cadence.
func DatesIn(period core.BillingPeriod, month core.Month, anchor core.Date, dayOfMonth int) []core.Date {
	return ForPeriod(period).DatesIn(month, anchor, dayOfMonth)
}

// HasExtraOccurrences reports whether a month carries more due dates than
// the cadence's typical count: a 5-Monday month for weekly, a third stride
// for bi-weekly. Informational only.
func HasExtraOccurrences(period core.BillingPeriod, count int) bool {
	switch period {
	case core.Weekly:
		return count > 4
	case core.BiWeekly:
		return count > 2
	default:
		return false
	}
}

// resolveMonthlyDay is the single place the monthly day-of-month fallback
// chain lives: explicit day, else the anchor's day, else the 1st.
func resolveMonthlyDay(dayOfMonth int, anchor core.Date) int {
	if dayOfMonth > 0 {
		return dayOfMonth
	}
	if !anchor.IsZero() {
		return anchor.Day()
	}
	return 1
}

// strideDates walks a fixed-day stride from the anchor and collects every
// date landing inside the month. An anchor past the month is walked back to
// alignment first, so past and future anchors behave identically.
func strideDates(month core.Month, anchor core.Date, stride int) []core.Date {
	first := month.FirstDay()
	last := month.LastDay()

	cur := anchor
	for cur.After(last) {
		cur = cur.AddDays(-stride)
	}
	for !cur.Before(first) {
		cur = cur.AddDays(-stride)
	}
	for cur.Before(first) {
		cur = cur.AddDays(stride)
	}

	var dates []core.Date
	for !cur.After(last) {
		dates = append(dates, cur)
		cur = cur.AddDays(stride)
	}
	return dates
}

// mondaysOf returns every Monday of the month in order.
func mondaysOf(month core.Month) []core.Date {
	cur := month.FirstDay()
	for cur.Weekday() != time.Monday {
		cur = cur.AddDays(1)
	}
	var dates []core.Date
	last := month.LastDay()
	for !cur.After(last) {
		dates = append(dates, cur)
		cur = cur.AddDays(weeklyStride)
	}
	return dates
}

// monthsBetween returns the signed number of calendar months from a to b.
func monthsBetween(a, b core.Month) int {
	return (b.Year-a.Year)*12 + (b.Mon - a.Mon)
}
