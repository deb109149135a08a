package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"12.50", "12.5", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{".5", "0.5", true},
		{"5.", "5", true},
		{" 2500 ", "2500", true},
		{"-5", "", false},
		{"+5", "", false},
		{"0", "", false},
		{"0.00", "", false},
		{"abc", "", false},
		{"1e3", "", false},
		{"1.2.3", "", false},
		{"1,000.50", "", false},
		{"1,000", "", false},
		{"1,500", "", false},
		{"250,000", "", false},
		{"1,5", "1.5", true},
		{"1,2345", "1.2345", true},
		{".", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q unexpected error %v", tc.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestSumAmounts(t *testing.T) {
	ps := []Purchase{
		{Amount: decimal.RequireFromString("0.10")},
		{Amount: decimal.RequireFromString("0.20")},
		{Amount: decimal.RequireFromString("2500")},
	}
	if got := SumAmounts(ps); !got.Equal(decimal.RequireFromString("2500.30")) {
		t.Fatalf("expected 2500.30, got %s", got)
	}
	if got := SumAmounts(nil); !got.IsZero() {
		t.Fatalf("expected zero for empty input, got %s", got)
	}
}
