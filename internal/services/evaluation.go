// Package services provides the business logic layer for the QualiTrack
// application. This file implements the control evaluation engine: the pure
// comparison rules that decide whether a submitted measurement satisfies a
// parameter specification.
package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/hyg1997/qualitrack/internal/models"
	"golang.org/x/text/unicode/norm"
)

// EvalSpec is the slice of a specification the evaluation engine needs.
// Built from a ProductSpecification or directly in tests.
type EvalSpec struct {
	Kind          string   // "range", "numeric" or "text"
	ExpectedValue *string  // Expected value (text kinds) or target
	MinRange      *float64 // Lower bound, inclusive
	MaxRange      *float64 // Upper bound, inclusive
	Unit          *string  // Display unit
}

// Evaluation is the normalized result of evaluating one measurement.
type Evaluation struct {
	IsValid bool   // Whether the measurement satisfies the specification
	Message string // Failure description, "" when valid
}

// SpecToEval converts a persisted specification into its evaluation slice.
func SpecToEval(spec models.ProductSpecification) EvalSpec {
	return EvalSpec{
		Kind:          spec.Kind,
		ExpectedValue: spec.ExpectedValue,
		MinRange:      spec.MinRange,
		MaxRange:      spec.MaxRange,
		Unit:          spec.Unit,
	}
}

// Evaluate applies the type-specific comparison rules to one submitted
// value. An empty submission is always valid: no measurement yet is not a
// failure state. Range bounds are inclusive on both ends.
func Evaluate(value string, spec EvalSpec) Evaluation {
	submitted := strings.TrimSpace(value)
	if submitted == "" {
		return Evaluation{IsValid: true}
	}

	switch spec.Kind {
	case models.KindRange, models.KindNumeric:
		number, err := ParseDecimal(submitted)
		if err != nil {
			return Evaluation{
				IsValid: false,
				Message: fmt.Sprintf("value %q is not numeric", submitted),
			}
		}

		// Bounds are checked whenever both are configured; a numeric
		// specification without bounds accepts any parsed number.
		if spec.MinRange != nil && spec.MaxRange != nil {
			if number < *spec.MinRange || number > *spec.MaxRange {
				return Evaluation{
					IsValid: false,
					Message: fmt.Sprintf("value %s outside range %s - %s",
						formatNumber(number), formatNumber(*spec.MinRange), formatNumber(*spec.MaxRange)),
				}
			}
		}
		return Evaluation{IsValid: true}

	default:
		// Text comparison. No configured expectation means any value passes.
		if spec.ExpectedValue == nil || strings.TrimSpace(*spec.ExpectedValue) == "" {
			return Evaluation{IsValid: true}
		}
		if NormalizeText(submitted) == NormalizeText(*spec.ExpectedValue) {
			return Evaluation{IsValid: true}
		}
		return Evaluation{
			IsValid: false,
			Message: fmt.Sprintf("value %q does not match expected %q", submitted, *spec.ExpectedValue),
		}
	}
}

// FormatFullRange produces the human-readable expected range/value text
// snapshotted into controls: "min - max unit" for range specifications, the
// raw expected value otherwise.
func FormatFullRange(spec EvalSpec) string {
	if spec.Kind == models.KindRange && spec.MinRange != nil && spec.MaxRange != nil {
		text := fmt.Sprintf("%s - %s", formatNumber(*spec.MinRange), formatNumber(*spec.MaxRange))
		if spec.Unit != nil && *spec.Unit != "" {
			text += " " + *spec.Unit
		}
		return text
	}
	if spec.ExpectedValue != nil {
		return *spec.ExpectedValue
	}
	return ""
}

// ParseDecimal parses a decimal number accepting both dot and comma decimal
// separators, since measurements arrive from forms in either convention.
func ParseDecimal(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return strconv.ParseFloat(s, 64)
}

// NormalizeText canonicalizes a text measurement for comparison:
// lower-casing, Unicode diacritic stripping, collapsing whitespace variants
// to single spaces, removing characters outside the accepted set, trimming.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = stripDiacritics(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case allowedTextRune(r):
			b.WriteRune(r)
		}
	}

	// Collapse runs of spaces introduced above and trim the ends.
	return strings.Join(strings.Fields(b.String()), " ")
}

// stripDiacritics removes combining marks after NFD decomposition, so
// "Tránsparente" and "transparente" compare equal. The tilde over n is not a
// diacritic here: ñ is its own letter in Spanish parameter values, so it is
// recomposed instead of stripped and "año" stays distinct from "ano".
func stripDiacritics(s string) string {
	decomposed := []rune(norm.NFD.String(s))
	var b strings.Builder
	b.Grow(len(decomposed))
	for i := 0; i < len(decomposed); i++ {
		r := decomposed[i]
		if (r == 'n' || r == 'N') && i+1 < len(decomposed) && decomposed[i+1] == '̃' {
			if r == 'n' {
				b.WriteRune('ñ')
			} else {
				b.WriteRune('Ñ')
			}
			i++
			continue
		}
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// allowedTextRune reports whether r survives text normalization.
func allowedTextRune(r rune) bool {
	if r >= 'a' && r <= 'z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case '.', ',', '-', '/', '°', '²', '³', 'ñ':
		return true
	}
	return false
}

// formatNumber renders a float without trailing zeros for display text.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
