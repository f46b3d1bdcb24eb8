package validation

import "testing"

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		expectErr bool
	}{
		{name: "Valid pretty format", format: "pretty"},
		{name: "Valid csv format", format: "csv"},
		{name: "Invalid format", format: "json", expectErr: true},
		{name: "Empty format", format: "", expectErr: true},
		{name: "Case sensitive - uppercase", format: "PRETTY", expectErr: true},
		{name: "Leading/trailing spaces", format: " pretty ", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format)
			if tt.expectErr && err == nil {
				t.Errorf("ValidateOutputFormat(%q) expected error, got nil", tt.format)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("ValidateOutputFormat(%q) unexpected error: %v", tt.format, err)
			}
		})
	}
}

func TestValidatePostalCode(t *testing.T) {
	tests := []struct {
		code      string
		expectErr bool
	}{
		{code: "00100"},
		{code: "99999"},
		{code: "0010", expectErr: true},
		{code: "001000", expectErr: true},
		{code: "0010a", expectErr: true},
		{code: "", expectErr: true},
	}

	for _, tt := range tests {
		err := ValidatePostalCode(tt.code)
		if (err != nil) != tt.expectErr {
			t.Errorf("ValidatePostalCode(%q) error = %v, expectErr %v", tt.code, err, tt.expectErr)
		}
	}
}
