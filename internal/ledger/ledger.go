package ledger

import (
	"errors"
	"fmt"

	"mensile/internal/core"
)

var (
	ErrNotFound      = errors.New("occurrence not found")
	ErrAlreadyClosed = errors.New("occurrence already closed")
	ErrNotClosed     = errors.New("occurrence is not closed")
	ErrSplitClosed   = errors.New("cannot split a closed occurrence")
	ErrSplitAmount   = errors.New("split amount must be greater than zero and less than the expected amount")
	ErrPartialClose  = errors.New("amount below the expected amount must be split, not closed")
	ErrNegativeClose = errors.New("close amount cannot be negative")
)

// Close settles an occurrence: OPEN -> CLOSED. The occurrence's expected
// amount becomes the settled amount, so the paid sum over closed occurrences
// is always Σ ExpectedAmount:
//
//   - amount equal to the expected amount is a plain full close;
//   - amount zero waives the occurrence and zeroes its expected amount;
//   - amount above the expected amount records the overpayment (tallies
//     clamp remaining at zero);
//   - amount strictly between zero and expected is rejected, that is a
//     partial payment and must go through Split.
//
// Returns a new occurrence slice; the input is not modified.
func Close(occs []core.Occurrence, id string, amount core.Money, closedDate core.Date, paymentSourceID string) ([]core.Occurrence, error) {
	idx, err := find(occs, id)
	if err != nil {
		return nil, err
	}
	if occs[idx].IsClosed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyClosed, id)
	}
	if amount.Cents < 0 {
		return nil, ErrNegativeClose
	}
	if amount.Cents > 0 && amount.Cents < occs[idx].ExpectedAmount.Cents {
		return nil, fmt.Errorf("%w: got %d of %d cents", ErrPartialClose, amount.Cents, occs[idx].ExpectedAmount.Cents)
	}

	out := clone(occs)
	out[idx].ExpectedAmount = amount
	out[idx].IsClosed = true
	out[idx].ClosedDate = closedDate
	if paymentSourceID != "" {
		out[idx].PaymentSourceID = paymentSourceID
	}
	return out, nil
}

// Split settles part of an occurrence and carries the remainder forward.
// The original becomes closed at paid; a new open ad-hoc occurrence holds
// expected-paid on the same due date. The returned set is resequenced.
//
// Conservation: the closed amount plus the remainder always equals the
// pre-split expected amount, exactly, in integer cents.
func Split(occs []core.Occurrence, id string, paid core.Money, closedDate core.Date, paymentSourceID string) ([]core.Occurrence, error) {
	idx, err := find(occs, id)
	if err != nil {
		return nil, err
	}
	if occs[idx].IsClosed {
		return nil, fmt.Errorf("%w: %s", ErrSplitClosed, id)
	}
	expected := occs[idx].ExpectedAmount
	if paid.Cents <= 0 || paid.Cents >= expected.Cents {
		return nil, fmt.Errorf("%w: got %d of %d cents", ErrSplitAmount, paid.Cents, expected.Cents)
	}

	out := clone(occs)
	out[idx].ExpectedAmount = paid
	out[idx].IsClosed = true
	out[idx].ClosedDate = closedDate
	if paymentSourceID != "" {
		out[idx].PaymentSourceID = paymentSourceID
	}

	remainder := NewAdhoc(occs[idx].ExpectedDate, expected.Sub(paid))
	out = append(out, remainder)
	return Resequence(out), nil
}

// Reopen reverses a close: CLOSED -> OPEN. The closed date and payment
// source are cleared; the expected amount is kept as-is. Reopening never
// restores a pre-split amount, the remainder occurrence created by the
// split still exists and restoring would double-count it.
func Reopen(occs []core.Occurrence, id string) ([]core.Occurrence, error) {
	idx, err := find(occs, id)
	if err != nil {
		return nil, err
	}
	if !occs[idx].IsClosed {
		return nil, fmt.Errorf("%w: %s", ErrNotClosed, id)
	}

	out := clone(occs)
	out[idx].IsClosed = false
	out[idx].ClosedDate = core.Date{}
	out[idx].PaymentSourceID = ""
	return out, nil
}

func find(occs []core.Occurrence, id string) (int, error) {
	for i, o := range occs {
		if o.ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func clone(occs []core.Occurrence) []core.Occurrence {
	out := make([]core.Occurrence, len(occs))
	copy(out, occs)
	return out
}
