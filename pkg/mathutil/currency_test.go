package mathutil

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundup(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Round up at midpoint", "1.235", "1.24"},
		{"Round down below midpoint", "1.234", "1.23"},
		{"Midpoint with even digit rounds up", "1.225", "1.23"},
		{"No rounding needed", "1.23", "1.23"},
		{"Large number", "12345.678", "12345.68"},
		{"Negative number away from zero", "-1.235", "-1.24"},
		{"Negative number round down", "-1.234", "-1.23"},
		{"Zero", "0", "0"},
		{"Very small positive", "0.001", "0"},
		{"Nearly two cents", "0.019", "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Roundup(d(tt.input))
			if !result.Equal(d(tt.expected)) {
				t.Errorf("Roundup(%s) = %s, expected %s", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRoundupPtr(t *testing.T) {
	if RoundupPtr(nil) != nil {
		t.Error("RoundupPtr(nil) should return nil")
	}
	v := d("10.005")
	result := RoundupPtr(&v)
	if result == nil || !result.Equal(d("10.01")) {
		t.Errorf("RoundupPtr(10.005) = %v, expected 10.01", result)
	}
}

func TestRoundToInteger(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1041.6666", "1042"},
		{"0.5", "1"},
		{"2.5", "3"},
		{"2.4999", "2"},
		{"-0.5", "-1"},
	}

	for _, tt := range tests {
		result := RoundToInteger(d(tt.input))
		if !result.Equal(d(tt.expected)) {
			t.Errorf("RoundToInteger(%s) = %s, expected %s", tt.input, result, tt.expected)
		}
	}
}

func TestMax(t *testing.T) {
	if got := Max(d("1"), d("3"), d("2")); !got.Equal(d("3")) {
		t.Errorf("Max = %s, expected 3", got)
	}
	if got := Max(d("-1")); !got.Equal(d("-1")) {
		t.Errorf("Max of single value = %s, expected -1", got)
	}
}

func TestNonNegative(t *testing.T) {
	if got := NonNegative(d("-0.01")); !got.IsZero() {
		t.Errorf("NonNegative(-0.01) = %s, expected 0", got)
	}
	if got := NonNegative(d("5")); !got.Equal(d("5")) {
		t.Errorf("NonNegative(5) = %s, expected 5", got)
	}
}

func TestApplyPercentage(t *testing.T) {
	tests := []struct {
		value, percentage, expected string
	}{
		{"100", "50", "50"},
		{"200", "25", "50"},
		{"100", "2.5", "2.5"},
		{"0", "50", "0"},
	}

	for _, tt := range tests {
		result := ApplyPercentage(d(tt.value), d(tt.percentage))
		if !result.Equal(d(tt.expected)) {
			t.Errorf("ApplyPercentage(%s, %s) = %s, expected %s", tt.value, tt.percentage, result, tt.expected)
		}
	}
}

func TestIndexAdjust(t *testing.T) {
	if got := IndexAdjust(d("1000"), d("150"), d("100")); !got.Equal(d("1500")) {
		t.Errorf("IndexAdjust = %s, expected 1500", got)
	}
	if got := IndexAdjust(d("1000"), d("150"), decimal.Zero); !got.IsZero() {
		t.Errorf("IndexAdjust with zero base = %s, expected 0", got)
	}
}

func TestShare(t *testing.T) {
	if got := Share(d("25"), d("100")); !got.Equal(d("0.25")) {
		t.Errorf("Share = %s, expected 0.25", got)
	}
	if got := Share(d("25"), decimal.Zero); !got.IsZero() {
		t.Errorf("Share with zero total = %s, expected 0", got)
	}
}
