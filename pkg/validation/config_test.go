package validation

import (
	"strings"
	"testing"
)

func TestValidateDatabaseDriver(t *testing.T) {
	for _, driver := range []string{"mysql", "postgres", "sqlite"} {
		if err := ValidateDatabaseDriver(driver); err != nil {
			t.Errorf("ValidateDatabaseDriver(%q) unexpected error: %v", driver, err)
		}
	}
	for _, driver := range []string{"", "oracle", "SQLite"} {
		if err := ValidateDatabaseDriver(driver); err == nil {
			t.Errorf("ValidateDatabaseDriver(%q) expected error", driver)
		}
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		schedule  string
		expectErr bool
	}{
		{schedule: "0 6 1 * *"},
		{schedule: "@monthly"},
		{schedule: "0 6 1 *", expectErr: true},
		{schedule: "every month", expectErr: true},
	}
	for _, tt := range tests {
		err := ValidateSchedule(tt.schedule)
		if (err != nil) != tt.expectErr {
			t.Errorf("ValidateSchedule(%q) error = %v, expectErr %v", tt.schedule, err, tt.expectErr)
		}
	}
}

func TestValidateReplacementPostalCodes(t *testing.T) {
	tests := []struct {
		name         string
		replacements map[string]string
		contains     []string
	}{
		{
			name:         "Valid replacements",
			replacements: map[string]string{"00910": "00100", "00920": "00200"},
		},
		{
			name:         "Malformed code",
			replacements: map[string]string{"0091": "00100"},
			contains:     []string{"five digits"},
		},
		{
			name:         "Malformed replacement",
			replacements: map[string]string{"00910": "x"},
			contains:     []string{"replacement for 00910"},
		},
		{
			name:         "Self reference",
			replacements: map[string]string{"00910": "00910"},
			contains:     []string{"replaced by itself"},
		},
		{
			name:         "Chained replacement",
			replacements: map[string]string{"00910": "00920", "00920": "00100"},
			contains:     []string{"has its own replacement"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := ValidateReplacementPostalCodes(tt.replacements)
			if len(warnings) != len(tt.contains) {
				t.Fatalf("got %d warnings %v, expected %d", len(warnings), warnings, len(tt.contains))
			}
			for i, fragment := range tt.contains {
				if !strings.Contains(warnings[i], fragment) {
					t.Errorf("warning %q does not contain %q", warnings[i], fragment)
				}
			}
		})
	}
}

func TestValidateInterestRate(t *testing.T) {
	if w := ValidateInterestRate("market price index", 6); w != "" {
		t.Errorf("unexpected warning: %s", w)
	}
	if w := ValidateInterestRate("market price index", 120); w == "" {
		t.Error("expected a warning for a rate above 100")
	}
	if w := ValidateInterestRate("construction price index", -1); w == "" {
		t.Error("expected a warning for a negative rate")
	}
}
