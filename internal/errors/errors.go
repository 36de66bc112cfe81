package errors

import (
	"errors"
	"fmt"
)

// SDK error taxonomy. Configuration errors are fatal to the affected
// operation; resolution errors abort and leave prior state untouched;
// backend errors surface through failure lifecycle events; payment errors
// are retryable by resubmitting.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrProviderNotFound     = errors.New("payment provider not found")
	ErrPlacementNotFound    = errors.New("placement not found")
	ErrBundleIndex          = errors.New("bundle index out of range")
	ErrEmptyBundle          = errors.New("bundle has no products")
	ErrNoCompatibleProvider = errors.New("no compatible payment provider")
	ErrBackend              = errors.New("backend request failed")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrConfirmation         = errors.New("payment confirmation failed")
	ErrSheetCancelled       = errors.New("payment sheet cancelled")
	ErrPriceUnresolved      = errors.New("price could not be resolved")
	ErrNotReady             = errors.New("sdk not initialized")
	ErrFormBusy             = errors.New("form is already submitting")
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Configuration wraps err as a configuration-class failure
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Backend wraps a transport or API failure
func Backend(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
