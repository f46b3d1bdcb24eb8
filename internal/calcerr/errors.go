// Package calcerr defines the error taxonomy of the calculation engine.
//
// Missing data and invalid calculations are conflicts: they are
// deterministic, never retried, and surfaced to the caller with enough
// detail to fix the input. Validation errors reject input before any
// calculation runs.
package calcerr

import (
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
)

var (
	// ErrIndexMissing is matched by every IndexMissingError.
	ErrIndexMissing = errors.New("index missing for period")

	// ErrInvalidCalculation is matched by every InvalidCalculationError.
	ErrInvalidCalculation = errors.New("calculation could not be completed")

	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// IndexMissingError reports an index value absent for a required month.
type IndexMissingError struct {
	Index string
	Month civil.Date
}

func (e *IndexMissingError) Error() string {
	return fmt.Sprintf("%s: %s %04d-%02d", ErrIndexMissing, e.Index, e.Month.Year, int(e.Month.Month))
}

func (e *IndexMissingError) Unwrap() error {
	return ErrIndexMissing
}

// IndexMissing constructs an IndexMissingError.
func IndexMissing(index string, month civil.Date) error {
	return &IndexMissingError{Index: index, Month: month}
}

// InvalidCalculationError reports inconsistent or out-of-range input.
type InvalidCalculationError struct {
	Message string
}

func (e *InvalidCalculationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidCalculation, e.Message)
}

func (e *InvalidCalculationError) Unwrap() error {
	return ErrInvalidCalculation
}

// InvalidCalculation constructs an InvalidCalculationError with a formatted message.
func InvalidCalculation(format string, args ...interface{}) error {
	return &InvalidCalculationError{Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validation constructs a ValidationError.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a missing-data or invalid-calculation conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrIndexMissing) || errors.Is(err, ErrInvalidCalculation)
}
