package stripegw

import (
	"errors"
	"testing"

	stripe "github.com/stripe/stripe-go/v76"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
)

func TestIntentID(t *testing.T) {
	tests := []struct {
		secret string
		id     string
		setup  bool
		ok     bool
	}{
		{"pi_123_secret_abc", "pi_123", false, true},
		{"seti_456_secret_def", "seti_456", true, true},
		{"cs_test_no_intent", "", false, false},
		{"garbage", "", false, false},
		{"", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.secret, func(t *testing.T) {
			id, setup, err := intentID(tt.secret)
			if tt.ok && err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !tt.ok {
				if !sdkerrors.Is(err, sdkerrors.ErrConfiguration) {
					t.Fatalf("Expected configuration error, got %v", err)
				}
				return
			}
			if id != tt.id || setup != tt.setup {
				t.Errorf("Expected (%s, %v), got (%s, %v)", tt.id, tt.setup, id, setup)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	cardErr := &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}
	if err := classify(cardErr); !sdkerrors.Is(err, sdkerrors.ErrPaymentDeclined) {
		t.Errorf("Expected decline for card error, got %v", err)
	}

	reqErr := &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such payment_intent"}
	if err := classify(reqErr); !sdkerrors.Is(err, sdkerrors.ErrConfiguration) {
		t.Errorf("Expected configuration error for invalid request, got %v", err)
	}

	if err := classify(errors.New("card declined by issuer")); !sdkerrors.Is(err, sdkerrors.ErrPaymentDeclined) {
		t.Errorf("Expected decline for decline-worded error, got %v", err)
	}

	if err := classify(errors.New("connection reset")); !sdkerrors.Is(err, sdkerrors.ErrConfirmation) {
		t.Errorf("Expected confirmation error fallback, got %v", err)
	}
}

func TestPaymentStatus(t *testing.T) {
	if err := paymentStatus(stripe.PaymentIntentStatusSucceeded); err != nil {
		t.Errorf("Expected succeeded to pass, got %v", err)
	}
	if err := paymentStatus(stripe.PaymentIntentStatusProcessing); err != nil {
		t.Errorf("Expected processing to pass, got %v", err)
	}
	if err := paymentStatus(stripe.PaymentIntentStatusRequiresAction); !sdkerrors.Is(err, sdkerrors.ErrConfirmation) {
		t.Errorf("Expected confirmation error for requires_action, got %v", err)
	}
	if err := paymentStatus(stripe.PaymentIntentStatusRequiresPaymentMethod); !sdkerrors.Is(err, sdkerrors.ErrPaymentDeclined) {
		t.Errorf("Expected decline for requires_payment_method, got %v", err)
	}
}

func TestSetupStatus(t *testing.T) {
	if err := setupStatus(stripe.SetupIntentStatusSucceeded); err != nil {
		t.Errorf("Expected succeeded to pass, got %v", err)
	}
	if err := setupStatus(stripe.SetupIntentStatusRequiresAction); !sdkerrors.Is(err, sdkerrors.ErrConfirmation) {
		t.Errorf("Expected confirmation error for requires_action, got %v", err)
	}
}
