package datetime

import (
	"testing"

	"cloud.google.com/go/civil"
)

func TestMustParseDate(t *testing.T) {
	got := MustParseDate("2020-06-01")
	if got != (civil.Date{Year: 2020, Month: 6, Day: 1}) {
		t.Errorf("MustParseDate() = %v", got)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid date")
		}
	}()
	MustParseDate("2020-13-01")
}

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2023-02")
	if err != nil {
		t.Fatalf("ParseMonth() unexpected error: %v", err)
	}
	if got != MustParseDate("2023-02-01") {
		t.Errorf("ParseMonth() = %v, expected 2023-02-01", got)
	}
	if FormatMonth(got) != "2023-02" {
		t.Errorf("FormatMonth() = %s, expected 2023-02", FormatMonth(got))
	}

	if _, err := ParseMonth("2023-2-1"); err == nil {
		t.Error("expected error for malformed month")
	}
}

func TestMonthsBetweenDates(t *testing.T) {
	tests := []struct {
		name     string
		first    string
		second   string
		expected int
	}{
		{"Same day", "2020-01-15", "2020-01-15", 0},
		{"Exactly one month", "2020-01-15", "2020-02-15", 1},
		{"Day before full month", "2020-01-15", "2020-02-14", 0},
		{"Across years", "2018-03-01", "2020-06-01", 27},
		{"Last day of February counts full month", "2020-01-31", "2020-02-29", 1},
		{"Last day of non-leap February", "2021-01-31", "2021-02-28", 1},
		{"Day smaller but not month end", "2021-01-31", "2021-03-30", 1},
		{"End of April from 31st", "2021-01-31", "2021-04-30", 3},
		{"Ten years", "2010-05-20", "2020-05-20", 120},
		{"Ten years minus one day", "2010-05-20", "2020-05-19", 119},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthsBetweenDates(MustParseDate(tt.first), MustParseDate(tt.second))
			if got != tt.expected {
				t.Errorf("MonthsBetweenDates(%s, %s) = %d, expected %d", tt.first, tt.second, got, tt.expected)
			}
		})
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		date     string
		months   int
		expected string
	}{
		{"2020-01-31", 1, "2020-02-29"},
		{"2021-01-31", 1, "2021-02-28"},
		{"2021-01-31", 3, "2021-04-30"},
		{"2021-11-15", 3, "2022-02-15"},
		{"2021-03-31", -1, "2021-02-28"},
		{"2021-01-15", -1, "2020-12-15"},
		{"2020-02-29", 12, "2021-02-28"},
	}

	for _, tt := range tests {
		got := AddMonths(MustParseDate(tt.date), tt.months)
		if got != MustParseDate(tt.expected) {
			t.Errorf("AddMonths(%s, %d) = %s, expected %s", tt.date, tt.months, got, tt.expected)
		}
	}
}

func TestAddYears(t *testing.T) {
	if got := AddYears(MustParseDate("1993-02-15"), 30); got != MustParseDate("2023-02-15") {
		t.Errorf("AddYears() = %s", got)
	}
	if got := AddYears(MustParseDate("2023-02-01"), -30); got != MustParseDate("1993-02-01") {
		t.Errorf("AddYears() negative = %s", got)
	}
}

func TestIsLastDayOfMonth(t *testing.T) {
	tests := []struct {
		date     string
		expected bool
	}{
		{"2020-02-29", true},
		{"2021-02-28", true},
		{"2020-02-28", false},
		{"2021-04-30", true},
		{"2021-12-31", true},
		{"2021-12-30", false},
	}
	for _, tt := range tests {
		if got := IsLastDayOfMonth(MustParseDate(tt.date)); got != tt.expected {
			t.Errorf("IsLastDayOfMonth(%s) = %v, expected %v", tt.date, got, tt.expected)
		}
	}
}

func TestSplitMonths(t *testing.T) {
	years, months := SplitMonths(27)
	if years != 2 || months != 3 {
		t.Errorf("SplitMonths(27) = %d, %d, expected 2, 3", years, months)
	}
}
