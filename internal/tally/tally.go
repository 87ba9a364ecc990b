// Package tally aggregates occurrence state into expected/actual/remaining
// totals and the projected end-of-month cash position. Everything here is a
// read model: recomputed on demand, never persisted, never mutating input.
package tally

import (
	"mensile/internal/core"
)

// SectionTally is the aggregate over a section of instances. Combine makes
// it a commutative monoid with the zero value as identity, so section
// totals can be merged in any order.
type SectionTally struct {
	Expected  core.Money
	Actual    core.Money
	Remaining core.Money
}

// CategoryTotal is the presentation aggregate per category. No remaining;
// category rows only compare planned against paid.
type CategoryTotal struct {
	Expected core.Money
	Actual   core.Money
}

// Effective returns the amount treated as settled for an instance: the sum
// of closed occurrences' expected amounts. Open occurrences contribute
// nothing.
func Effective(inst core.Instance) core.Money {
	var sum core.Money
	for _, o := range inst.Occurrences {
		if o.IsClosed {
			sum = sum.Add(o.ExpectedAmount)
		}
	}
	return sum
}

// Remaining returns what is still owed on an instance: zero once the
// instance is closed, otherwise expected minus effective clamped at zero.
// Overpayment is never reported as negative remaining.
func Remaining(inst core.Instance) core.Money {
	if inst.Closed() {
		return core.Money{}
	}
	rem := inst.ExpectedAmount.Sub(Effective(inst))
	if rem.Cents < 0 {
		return core.Money{}
	}
	return rem
}

// Section tallies a list of instances. Ad-hoc instances carry no scheduled
// expectation: they contribute zero expected and zero remaining while their
// closed occurrences still count toward actual.
func Section(insts []core.Instance) SectionTally {
	var t SectionTally
	for _, inst := range insts {
		t.Actual = t.Actual.Add(Effective(inst))
		if inst.IsAdhoc {
			continue
		}
		t.Expected = t.Expected.Add(inst.ExpectedAmount)
		t.Remaining = t.Remaining.Add(Remaining(inst))
	}
	return t
}

// ByCategory groups instances into per-category expected/actual subtotals.
// Ad-hoc instances contribute actual only, mirroring Section.
func ByCategory(insts []core.Instance) map[string]CategoryTotal {
	totals := make(map[string]CategoryTotal)
	for _, inst := range insts {
		ct := totals[inst.CategoryID]
		ct.Actual = ct.Actual.Add(Effective(inst))
		if !inst.IsAdhoc {
			ct.Expected = ct.Expected.Add(inst.ExpectedAmount)
		}
		totals[inst.CategoryID] = ct
	}
	return totals
}

// Combine sums two tallies componentwise. Commutative and associative, with
// the zero SectionTally as identity.
func Combine(a, b SectionTally) SectionTally {
	return SectionTally{
		Expected:  a.Expected.Add(b.Expected),
		Actual:    a.Actual.Add(b.Actual),
		Remaining: a.Remaining.Add(b.Remaining),
	}
}
