package coerce

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var dateLayouts = []string{"2006-01-02", "01/02/2006", "02 Jan 2006"}

var tsLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"01/02/2006",
	"02-Jan-2006",
}

func TestString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     any
		want   string
		wantOK bool
	}{
		{nil, "", false},
		{"  padded  ", "padded", true},
		{"   ", "", true},
		{json.Number("3.14"), "3.14", true},
		{true, "true", true},
	}
	for _, tt := range tests {
		got, ok := String(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("String(%v) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestInt(t *testing.T) {
	t.Parallel()
	if n, err := Int(" 42 "); err != nil || n != 42 {
		t.Fatalf("Int: %v, %v", n, err)
	}
	if n, err := Int(json.Number("7")); err != nil || n != 7 {
		t.Fatalf("Int(json.Number): %v, %v", n, err)
	}
	if _, err := Int(""); !errors.Is(err, ErrNull) {
		t.Fatalf("empty should be ErrNull, got %v", err)
	}
	if _, err := Int(nil); !errors.Is(err, ErrNull) {
		t.Fatalf("nil should be ErrNull, got %v", err)
	}
	if _, err := Int("thirty"); err == nil || errors.Is(err, ErrNull) {
		t.Fatalf("want parse error, got %v", err)
	}
}

func TestFloat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want float64
	}{
		{"12.50", 12.5},
		{"12,50", 12.5}, // decimal comma
		{"-45.9", -45.9},
		{json.Number("0.8"), 0.8},
	}
	for _, tt := range tests {
		got, err := Float(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Float(%v) = %v, %v want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := Float("1,234.56"); err != nil {
		t.Errorf("thousands-style value with dot should keep the dot: %v", err)
	}
	if _, err := Float("abc"); err == nil {
		t.Error("want parse error for non-number")
	}
}

func TestTimeLayoutOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		layouts []string
		want    string
	}{
		{"2024-03-15", dateLayouts, "2024-03-15T00:00:00Z"},
		{"03/15/2024", dateLayouts, "2024-03-15T00:00:00Z"},
		{"15 Mar 2024", dateLayouts, "2024-03-15T00:00:00Z"},
		{"2024-03-15T10:30:00Z", tsLayouts, "2024-03-15T10:30:00Z"},
		{"2024-03-15 10:30", tsLayouts, "2024-03-15T10:30:00Z"},
		{"15-Mar-2024", tsLayouts, "2024-03-15T00:00:00Z"},
	}
	for _, tt := range tests {
		got, err := Time(tt.in, tt.layouts)
		if err != nil {
			t.Errorf("Time(%q): %v", tt.in, err)
			continue
		}
		if got.Format(time.RFC3339) != tt.want {
			t.Errorf("Time(%q) = %s, want %s", tt.in, got.Format(time.RFC3339), tt.want)
		}
	}
	if _, err := Time("not a date", dateLayouts); err == nil {
		t.Error("want error for unparseable date")
	}
	if _, err := Time("", dateLayouts); !errors.Is(err, ErrNull) {
		t.Error("empty date should be ErrNull")
	}
}

func TestCurrencyCode(t *testing.T) {
	t.Parallel()
	symbols := map[string]string{"€": "EUR", "$": "USD"}
	tests := []struct {
		in   string
		want string
	}{
		{"EUR", "EUR"},
		{"eur", "EUR"},
		{"€", "EUR"},
		{"USD", "USD"}, // never reinterpreted
		{"$", "USD"},
	}
	for _, tt := range tests {
		got, err := CurrencyCode(tt.in, symbols)
		if err != nil || got != tt.want {
			t.Errorf("CurrencyCode(%q) = %q, %v want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := CurrencyCode("XYZ", symbols); err == nil {
		t.Error("want error for unknown currency")
	}
	if _, err := CurrencyCode(nil, symbols); !errors.Is(err, ErrNull) {
		t.Error("nil currency should be ErrNull")
	}
}
