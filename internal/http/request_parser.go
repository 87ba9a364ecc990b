package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mensile/internal/core"
)

const maxBodyBytes = 64 << 10

var errEmptyBody = errors.New("empty request body")

// decodeJSON reads a JSON request body into dst, rejecting unknown fields
// and oversized bodies.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// pathMonth parses the {month} path segment.
func pathMonth(r *http.Request) (core.Month, error) {
	return core.ParseMonth(r.PathValue("month"))
}

// parseAmount accepts an amount either as integer cents or as a decimal
// string ("12.34" or "12,34"). Exactly one must be set.
func parseAmount(cents *int64, decimal string) (core.Money, error) {
	decimal = strings.TrimSpace(decimal)
	switch {
	case cents != nil && decimal != "":
		return core.Money{}, fmt.Errorf("%w: both amount_cents and amount set", core.ErrInvalidAmount)
	case cents != nil:
		m := core.Money{Cents: *cents}
		return m, m.Validate()
	case decimal != "":
		c, err := core.ParseDecimalToCents(decimal)
		if err != nil {
			return core.Money{}, err
		}
		return core.Money{Cents: c}, nil
	default:
		return core.Money{}, fmt.Errorf("%w: amount_cents or amount required", core.ErrInvalidAmount)
	}
}

// parseOptionalDate parses a date string, substituting today when empty.
func parseOptionalDate(s string, today func() core.Date) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return today(), nil
	}
	return core.ParseDate(s)
}

// sanitizeName trims whitespace and strips control characters from
// user-supplied names.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 {
			return -1
		}
		return r
	}, s)
}
