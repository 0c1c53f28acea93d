// Package coerce turns raw source values (string, json.Number, bool, nil)
// into typed Go values. Parsing is loose where the inputs are known to be
// messy (layout lists for dates, decimal commas for amounts, symbol and
// casing variants for currencies) but never guesses: a value that matches
// no accepted form returns an error and the caller decides what that
// means.
package coerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// ErrNull marks a nil or blank input value.
var ErrNull = errors.New("null value")

// String returns the canonical string form of a raw value. ok is false
// for nil. Whitespace is trimmed; an all-whitespace string yields "".
func String(v any) (s string, ok bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// Int parses an integer value.
func Int(v any) (int64, error) {
	s, ok := String(v)
	if !ok || s == "" {
		return 0, ErrNull
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return n, nil
}

// Float parses a float value. A decimal comma is accepted when the value
// carries no decimal point ("12,50" -> 12.5).
func Float(v any) (float64, error) {
	s, ok := String(v)
	if !ok || s == "" {
		return 0, ErrNull
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			// Comma alongside a dot is a thousands separator.
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

// Time parses a date or timestamp value against layouts, in order. The
// first layout that parses wins. Results are normalized to UTC.
func Time(v any, layouts []string) (time.Time, error) {
	s, ok := String(v)
	if !ok || s == "" {
		return time.Time{}, ErrNull
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("matches no accepted layout: %q", s)
}

// CurrencyCode canonicalizes a currency value to its ISO 4217 code.
// Symbol spellings go through the configured map ("€" -> "EUR"), casing
// is normalized ("eur" -> "EUR"), and the result must be a recognized ISO
// code. A known code like USD passes through unchanged; nothing is ever
// reinterpreted as another currency.
func CurrencyCode(v any, symbols map[string]string) (string, error) {
	s, ok := String(v)
	if !ok || s == "" {
		return "", ErrNull
	}
	if mapped, found := symbols[s]; found {
		s = mapped
	}
	s = strings.ToUpper(s)
	unit, err := currency.ParseISO(s)
	if err != nil {
		return "", fmt.Errorf("unknown currency: %q", s)
	}
	return unit.String(), nil
}
