package tally

import (
	"strings"

	"mensile/internal/core"
)

// LeftoverResult is the projected end-of-month cash position. When IsValid
// is false the numeric Leftover is still filled in as a best effort with
// missing balances treated as zero, but callers must not trust it.
type LeftoverResult struct {
	BankBalances      core.Money
	RemainingIncome   core.Money
	RemainingExpenses core.Money
	Leftover          core.Money
	IsValid           bool
	MissingBalances   []string
	MissingSummary    string
}

// includedInLeftover decides whether a payment source's balance counts
// toward leftover: active, not paid off monthly, not explicitly excluded.
// This is the one place that rule lives.
func includedInLeftover(src core.PaymentSource) bool {
	return src.IsActive && !src.PayOffMonthly && !src.ExcludeFromLeftover
}

// instanceRemaining returns the open amount for leftover purposes. A payoff
// bill represents paydown of a revolving balance: its remaining is the
// expected amount of its single open occurrence, the current balance, not
// an expected-minus-paid subtraction.
func instanceRemaining(inst core.Instance) core.Money {
	if inst.IsPayoff {
		var sum core.Money
		for _, o := range inst.Occurrences {
			if !o.IsClosed {
				sum = sum.Add(o.ExpectedAmount)
			}
		}
		return sum
	}
	return Remaining(inst)
}

// Leftover computes included balances plus remaining income minus remaining
// expenses for one month.
//
// The completeness check runs first: every included active payment source
// must have a balance entry for the month. Any that do not are reported in
// MissingBalances (ids) and MissingSummary (names), and IsValid is false.
func Leftover(sources []core.PaymentSource, balances map[string]core.Money, bills, incomes []core.Instance) LeftoverResult {
	res := LeftoverResult{IsValid: true}

	var missingNames []string
	for _, src := range sources {
		if !includedInLeftover(src) {
			continue
		}
		bal, ok := balances[src.ID]
		if !ok {
			res.IsValid = false
			res.MissingBalances = append(res.MissingBalances, src.ID)
			missingNames = append(missingNames, src.Name)
			continue
		}
		res.BankBalances = res.BankBalances.Add(bal)
	}
	if len(missingNames) > 0 {
		res.MissingSummary = "missing balances for: " + strings.Join(missingNames, ", ")
	}

	for _, inst := range incomes {
		res.RemainingIncome = res.RemainingIncome.Add(instanceRemaining(inst))
	}
	for _, inst := range bills {
		res.RemainingExpenses = res.RemainingExpenses.Add(instanceRemaining(inst))
	}

	res.Leftover = res.BankBalances.Add(res.RemainingIncome).Sub(res.RemainingExpenses)
	return res
}
