// Package services provides business logic for QualiTrack.
// This file implements the free-text tolerance expression parser used by
// the bulk specification import.
package services

import (
	"regexp"
	"strings"

	"github.com/hyg1997/qualitrack/internal/models"
)

// Recognized tolerance forms, tried in priority order.
var (
	// "240 +/- 5" (also accepts the ± sign)
	plusMinusPattern = regexp.MustCompile(`^(-?\d+(?:[.,]\d+)?)\s*(?:\+/-|±)\s*(\d+(?:[.,]\d+)?)$`)

	// "10 - 20"
	intervalPattern = regexp.MustCompile(`^(-?\d+(?:[.,]\d+)?)\s*-\s*(-?\d+(?:[.,]\d+)?)$`)

	// bare number "7"
	barePattern = regexp.MustCompile(`^-?\d+(?:[.,]\d+)?$`)
)

// Tolerance is the parsed outcome of a tolerance expression. All fields nil
// means "no specification" (blank input, skip the row).
type Tolerance struct {
	ExpectedValue *string  // Expected value text
	MinRange      *float64 // Lower bound
	MaxRange      *float64 // Upper bound
}

// Empty reports whether the expression yielded no specification at all.
func (t Tolerance) Empty() bool {
	return t.ExpectedValue == nil && t.MinRange == nil && t.MaxRange == nil
}

// ParseTolerance parses a free-text tolerance expression for a parameter of
// the given kind. Three structured forms are recognized, in priority order:
//
//  1. "<base> +/- <tolerance>"  → expected = base, bounds = base ∓ tolerance
//  2. "<low> - <high>"          → expected = midpoint, bounds = low..high
//  3. a bare number             → for range/numeric kinds, expected and both
//     bounds collapse to the number; for text kinds the raw text is kept
//
// Any other non-empty text is stored verbatim as the expected value with no
// bounds. Blank input yields an empty Tolerance.
func ParseTolerance(text, kind string) Tolerance {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Tolerance{}
	}

	if m := plusMinusPattern.FindStringSubmatch(trimmed); m != nil {
		base, errBase := ParseDecimal(m[1])
		tol, errTol := ParseDecimal(m[2])
		if errBase == nil && errTol == nil {
			expected := m[1]
			min := base - tol
			max := base + tol
			return Tolerance{ExpectedValue: &expected, MinRange: &min, MaxRange: &max}
		}
	}

	if m := intervalPattern.FindStringSubmatch(trimmed); m != nil {
		low, errLow := ParseDecimal(m[1])
		high, errHigh := ParseDecimal(m[2])
		if errLow == nil && errHigh == nil {
			expected := formatNumber((low + high) / 2)
			return Tolerance{ExpectedValue: &expected, MinRange: &low, MaxRange: &high}
		}
	}

	if barePattern.MatchString(trimmed) {
		if kind == models.KindRange || kind == models.KindNumeric {
			if number, err := ParseDecimal(trimmed); err == nil {
				expected := trimmed
				min := number
				max := number
				return Tolerance{ExpectedValue: &expected, MinRange: &min, MaxRange: &max}
			}
		}
		return Tolerance{ExpectedValue: &trimmed}
	}

	// Verbatim fallback: opaque expectation, no bounds.
	return Tolerance{ExpectedValue: &trimmed}
}
