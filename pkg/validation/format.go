// Package validation provides common validation utilities.
package validation

import (
	"fmt"
	"regexp"

	"github.com/City-of-Helsinki/hitas-sub002/pkg/constants"
)

var postalCodePattern = regexp.MustCompile(`^[0-9]{5}$`)

// ValidateOutputFormat checks if the output format is one of the supported formats.
func ValidateOutputFormat(format string) error {
	if format != constants.OutputFormatPretty && format != constants.OutputFormatCSV {
		return fmt.Errorf("expected output format of %s or %s, got %q",
			constants.OutputFormatPretty, constants.OutputFormatCSV, format)
	}
	return nil
}

// ValidatePostalCode checks for a five digit Finnish postal code.
func ValidatePostalCode(code string) error {
	if !postalCodePattern.MatchString(code) {
		return fmt.Errorf("postal code must be five digits, got %q", code)
	}
	return nil
}
