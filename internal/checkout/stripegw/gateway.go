package stripegw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/setupintent"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/pkg/utils"
)

// Gateway confirms payment and setup intents against the Stripe API. The
// intent identifier is recovered from the client secret prefix.
type Gateway struct{}

// New configures the Stripe client with the publishable-side key used for
// confirmations and returns the gateway.
func New(key string) *Gateway {
	stripe.Key = key
	return &Gateway{}
}

// Confirm resolves the intent behind the client secret and confirms it,
// attaching the payment method when one was collected out of band.
func (g *Gateway) Confirm(ctx context.Context, clientSecret, paymentMethodID string) error {
	id, setup, err := intentID(clientSecret)
	if err != nil {
		return err
	}

	if setup {
		params := &stripe.SetupIntentConfirmParams{}
		params.Context = ctx
		if paymentMethodID != "" {
			params.PaymentMethod = stripe.String(paymentMethodID)
		}
		intent, err := setupintent.Confirm(id, params)
		if err != nil {
			return classify(err)
		}
		return setupStatus(intent.Status)
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	intent, err := paymentintent.Confirm(id, params)
	if err != nil {
		return classify(err)
	}
	return paymentStatus(intent.Status)
}

// intentID extracts the intent identifier from a client secret of the form
// "pi_xxx_secret_yyy" or "seti_xxx_secret_yyy"
func intentID(clientSecret string) (id string, setup bool, err error) {
	base, _, found := strings.Cut(clientSecret, "_secret")
	if !found || base == "" {
		return "", false, sdkerrors.Configuration("malformed client secret")
	}
	switch {
	case strings.HasPrefix(base, "seti_"):
		return base, true, nil
	case strings.HasPrefix(base, "pi_"):
		return base, false, nil
	}
	return "", false, sdkerrors.Configuration("unrecognized client secret prefix")
}

// classify maps Stripe errors onto the SDK failure taxonomy: card errors
// are retryable declines, request errors are configuration problems.
func classify(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		switch sErr.Type {
		case stripe.ErrorTypeCard:
			return fmt.Errorf("%w: %s", sdkerrors.ErrPaymentDeclined, sErr.Msg)
		case stripe.ErrorTypeInvalidRequest:
			return sdkerrors.Configuration("stripe rejected request: %s", sErr.Msg)
		}
	}
	if utils.ContainsAny(err.Error(), []string{"declined", "insufficient_funds"}) {
		return fmt.Errorf("%w: %v", sdkerrors.ErrPaymentDeclined, err)
	}
	return fmt.Errorf("%w: %v", sdkerrors.ErrConfirmation, err)
}

func paymentStatus(status stripe.PaymentIntentStatus) error {
	switch status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return nil
	case stripe.PaymentIntentStatusRequiresAction:
		return fmt.Errorf("%w: additional authentication not completed", sdkerrors.ErrConfirmation)
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return fmt.Errorf("%w: payment method rejected", sdkerrors.ErrPaymentDeclined)
	}
	return fmt.Errorf("%w: intent status %s", sdkerrors.ErrConfirmation, status)
}

func setupStatus(status stripe.SetupIntentStatus) error {
	switch status {
	case stripe.SetupIntentStatusSucceeded, stripe.SetupIntentStatusProcessing:
		return nil
	case stripe.SetupIntentStatusRequiresAction:
		return fmt.Errorf("%w: additional authentication not completed", sdkerrors.ErrConfirmation)
	}
	return fmt.Errorf("%w: intent status %s", sdkerrors.ErrConfirmation, status)
}
