// Package core holds the domain types shared by every other package:
// calendar dates and months, integer-cent money, billing periods,
// occurrences and their monthly instances.
//
// Everything in core is a plain value. Nothing here touches the clock,
// the filesystem or the network; callers that need "today" pass it in.
package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidDate  = errors.New("invalid date, want YYYY-MM-DD")
	ErrInvalidMonth = errors.New("invalid month, want YYYY-MM")
)

type (
	// Date is a calendar date at UTC midnight.
	Date struct {
		time.Time
	}

	// Month is a calendar month ("YYYY-MM").
	Month struct {
		Year int
		Mon  int // 1-12
	}
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Day returns the day of the month.
func (d Date) Day() int {
	return d.Time.Day()
}

// AddDays returns the date n calendar days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// MonthOf returns the month the date falls in.
func (d Date) MonthOf() Month {
	return Month{Year: d.Time.Year(), Mon: int(d.Time.Month())}
}

// ParseMonth parses a "YYYY-MM" string.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: t.Year(), Mon: int(t.Month())}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Mon)
}

// IsZero reports whether the month is the zero value.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Mon == 0
}

// FirstDay returns the first calendar day of the month.
func (m Month) FirstDay() Date {
	return NewDate(m.Year, m.Mon, 1)
}

// LastDay returns the last calendar day of the month, leap years included.
func (m Month) LastDay() Date {
	// Day zero of the following month.
	return Date{Time: time.Date(m.Year, time.Month(m.Mon)+1, 0, 0, 0, 0, 0, time.UTC)}
}

// Days returns the number of days in the month.
func (m Month) Days() int {
	return m.LastDay().Day()
}

// Contains reports whether the date falls inside the month.
func (m Month) Contains(d Date) bool {
	return d.Time.Year() == m.Year && int(d.Time.Month()) == m.Mon
}

// ClampDay returns the date in this month whose day is day, clamped to the
// month's last day when the month is shorter (Feb 31 -> Feb 28/29).
func (m Month) ClampDay(day int) Date {
	if day < 1 {
		day = 1
	}
	if last := m.Days(); day > last {
		day = last
	}
	return NewDate(m.Year, m.Mon, day)
}

// AddMonths returns the month n calendar months later (earlier for negative n).
func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, time.Month(m.Mon+n), 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Mon: int(t.Month())}
}

// Before reports whether m is strictly before other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Mon < other.Mon
}
