// Package datetime provides date utility functions for the calculation
// engine: month arithmetic, validity windows and fiscal quarters.
package datetime

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
)

const (
	// DateLayout is the format of calendar dates in configuration and payloads.
	DateLayout = constants.DateLayout

	// MonthLayout is the format of index months.
	MonthLayout = constants.MonthLayout
)

// MustParseDate parses a YYYY-MM-DD date and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseDate(date string) civil.Date {
	d, err := civil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseMonth parses a YYYY-MM month into the first day of that month.
func ParseMonth(month string) (civil.Date, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid month %q: %w", month, err)
	}
	return civil.DateOf(t), nil
}

// FormatMonth formats the month of a date as YYYY-MM.
func FormatMonth(date civil.Date) string {
	return fmt.Sprintf("%04d-%02d", date.Year, int(date.Month))
}

// MonthOf returns the first day of the date's month.
func MonthOf(date civil.Date) civil.Date {
	return civil.Date{Year: date.Year, Month: date.Month, Day: 1}
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLastDayOfMonth reports whether the date is the last calendar day of its month.
func IsLastDayOfMonth(date civil.Date) bool {
	return date.Day == DaysInMonth(date.Year, date.Month)
}

// EndOfMonth returns the last day of the date's month.
func EndOfMonth(date civil.Date) civil.Date {
	return civil.Date{Year: date.Year, Month: date.Month, Day: DaysInMonth(date.Year, date.Month)}
}

// AddMonths moves the date by the given number of calendar months. The day
// is clamped to the length of the target month, so Jan 31 + 1 month is the
// last day of February.
func AddMonths(date civil.Date, months int) civil.Date {
	total := date.Year*constants.MonthsPerYear + int(date.Month) - 1 + months
	year := total / constants.MonthsPerYear
	month := time.Month(total%constants.MonthsPerYear + 1)
	if total < 0 && total%constants.MonthsPerYear != 0 {
		year--
		month = time.Month(total%constants.MonthsPerYear + constants.MonthsPerYear + 1)
	}
	day := date.Day
	if maxDay := DaysInMonth(year, month); day > maxDay {
		day = maxDay
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// AddYears moves the date by whole years, clamping Feb 29 to Feb 28.
func AddYears(date civil.Date, years int) civil.Date {
	return AddMonths(date, years*constants.MonthsPerYear)
}

// MonthsBetweenDates returns the number of whole months from first to second.
// One month is subtracted when the day of month of second is smaller than
// that of first, unless second is the last day of its month.
func MonthsBetweenDates(first, second civil.Date) int {
	months := (second.Year-first.Year)*constants.MonthsPerYear + int(second.Month) - int(first.Month)
	if second.Day < first.Day && !IsLastDayOfMonth(second) {
		months--
	}
	return months
}

// SplitMonths splits a month count into whole years and remaining months.
func SplitMonths(months int) (years int, remainder int) {
	return months / constants.MonthsPerYear, months % constants.MonthsPerYear
}
