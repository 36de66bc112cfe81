package errors

import (
	"fmt"
	"testing"
)

func TestConfigurationWrapping(t *testing.T) {
	err := Configuration("missing token for %s", "stripe")
	if !Is(err, ErrConfiguration) {
		t.Errorf("Expected error to match ErrConfiguration")
	}
	if got := err.Error(); got != "configuration error: missing token for stripe" {
		t.Errorf("Unexpected message: %s", got)
	}
}

func TestBackendWrapping(t *testing.T) {
	if Backend(nil) != nil {
		t.Errorf("Expected nil for nil cause")
	}

	cause := fmt.Errorf("connection refused")
	err := Backend(cause)
	if !Is(err, ErrBackend) {
		t.Errorf("Expected error to match ErrBackend")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError{Field: "bundleIndex", Message: "out of range"}
	want := "validation error on field 'bundleIndex': out of range"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}
