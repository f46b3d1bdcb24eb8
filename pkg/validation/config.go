package validation

import (
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
)

// Supported database drivers.
var databaseDrivers = map[string]bool{"mysql": true, "postgres": true, "sqlite": true}

// ValidateDatabaseDriver checks the configured gorm driver name.
func ValidateDatabaseDriver(driver string) error {
	if !databaseDrivers[driver] {
		return fmt.Errorf("unsupported database driver %q, expected mysql, postgres or sqlite", driver)
	}
	return nil
}

// ValidateSchedule checks a standard five field cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateReplacementPostalCodes returns warnings for malformed entries,
// self references and chained replacements, ordered by postal code.
func ValidateReplacementPostalCodes(replacements map[string]string) []string {
	codes := make([]string, 0, len(replacements))
	for code := range replacements {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var warnings []string
	for _, code := range codes {
		replacement := replacements[code]
		if err := ValidatePostalCode(code); err != nil {
			warnings = append(warnings, fmt.Sprintf("replacement postal codes: %v", err))
			continue
		}
		if err := ValidatePostalCode(replacement); err != nil {
			warnings = append(warnings, fmt.Sprintf("replacement for %s: %v", code, err))
			continue
		}
		if replacement == code {
			warnings = append(warnings, fmt.Sprintf("postal code %s is replaced by itself", code))
			continue
		}
		if _, chained := replacements[replacement]; chained {
			warnings = append(warnings, fmt.Sprintf("replacement %s for %s has its own replacement, which is not followed", replacement, code))
		}
	}
	return warnings
}

// ValidateInterestRate warns about a construction interest rate outside 0..100 percent.
func ValidateInterestRate(name string, rate float64) string {
	if rate < 0 || rate > 100 {
		return fmt.Sprintf("%s interest rate %.2f is outside 0-100 percent", name, rate)
	}
	return ""
}
