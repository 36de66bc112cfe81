package checkout

import (
	"context"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/models"
)

// StripeForm drives a card checkout: provider customer, mounted elements,
// submit, server-side subscription, optional confirmation.
type StripeForm struct {
	machine
	surface Surface

	customerID string
	unbind     func()
}

// NewStripeForm constructs the default card form for a stripe provider
func NewStripeForm(deps Deps, params Params, surface Surface, token *Token) *StripeForm {
	return &StripeForm{
		machine: machine{
			deps:         deps,
			params:       params,
			token:        token,
			state:        StateIdle,
			successEvent: events.PaymentSuccess,
			failureEvent: events.PaymentFailure,
			variant:      VariantDefault,
		},
		surface: surface,
	}
}

// Show creates the provider customer, mounts the payment elements and arms
// the submit trigger. A customer-creation failure is terminal for this
// attempt but leaves the trigger usable for a fresh Show.
func (f *StripeForm) Show(ctx context.Context) error {
	methods := []string{"card"}
	if f.params.Options.ApplePay {
		methods = append(methods, "apple_pay")
	}

	session, err := f.deps.Backend.CreateCustomer(ctx, models.CreateCustomerRequest{
		UserID:         f.params.UserID,
		PaymentMethods: methods,
		Metadata:       map[string]string{"provider_id": f.params.Provider.ID},
	})
	if err != nil {
		f.fail(ctx, err)
		return err
	}
	if f.token.Cancelled() {
		return nil
	}
	f.customerID = session.ID
	f.setState(StateCustomerReady)

	if err := f.surface.MountElements(session.ClientSecret); err != nil {
		f.fail(ctx, err)
		return err
	}
	if f.token.Cancelled() {
		return nil
	}
	f.setState(StateElementsMounted)

	f.unbind = f.surface.BindSubmit(func() { f.submit(ctx) })
	f.surface.SetButton(ButtonReady)
	return nil
}

func (f *StripeForm) submit(ctx context.Context) {
	if f.token.Cancelled() {
		return
	}
	if !f.beginSubmit() {
		logger.Debug("Submit ignored while attempt in flight", "provider", f.params.Provider.Kind)
		return
	}
	f.surface.SetButton(ButtonProcessing)

	// The mounted elements collected the payment method; the subscription is
	// created against the customer record alone.
	f.createSubscription(ctx, f.customerID, "")
}

// createSubscription runs submitting then confirming then settled
func (f *StripeForm) createSubscription(ctx context.Context, customerID, paymentMethodID string) {
	sub, err := f.deps.Backend.CreateSubscription(ctx, f.subscriptionRequest(customerID, paymentMethodID))
	if err != nil {
		f.fail(ctx, err)
		return
	}
	if f.token.Cancelled() {
		return
	}

	if sub.ClientSecret != "" {
		f.setState(StateConfirming)
		if f.deps.Stripe == nil {
			f.fail(ctx, sdkerrors.Configuration("confirmation required but no gateway configured"))
			return
		}
		if err := f.deps.Stripe.Confirm(ctx, sub.ClientSecret, sub.PaymentMethod); err != nil {
			f.fail(ctx, err)
			return
		}
		if f.token.Cancelled() {
			return
		}
	}

	f.settleSuccess(ctx, *sub)
}

func (f *StripeForm) fail(ctx context.Context, err error) {
	f.settleFailure(ctx, err, f.surface.SetButton, f.surface.ShowError)
}

// Cleanup cancels the token and detaches the submit trigger
func (f *StripeForm) Cleanup() {
	f.token.Cancel()
	if f.unbind != nil {
		f.unbind()
		f.unbind = nil
	}
}
