package checkout

import (
	"context"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
)

// UpsellForm charges an existing customer's stored payment method in one
// step. Customer creation and element mounting are skipped; the trigger
// creates the subscription directly.
type UpsellForm struct {
	machine
	surface Surface

	customerID string
	unbind     func()
}

// NewUpsellForm constructs a one-tap form against an existing customer
func NewUpsellForm(deps Deps, params Params, surface Surface, token *Token, customerID string) *UpsellForm {
	return &UpsellForm{
		machine: machine{
			deps:         deps,
			params:       params,
			token:        token,
			state:        StateIdle,
			successEvent: events.UpsellSuccess,
			failureEvent: events.UpsellFailure,
			variant:      VariantDefault,
		},
		surface:    surface,
		customerID: customerID,
	}
}

// Show arms the trigger. The customer record is reused, so there is nothing
// to create or mount up front.
func (f *UpsellForm) Show(ctx context.Context) error {
	if f.customerID == "" {
		err := sdkerrors.Configuration("upsell requires an existing customer")
		f.fail(ctx, err)
		return err
	}
	f.setState(StateCustomerReady)

	f.unbind = f.surface.BindSubmit(func() { f.submit(ctx) })
	f.surface.SetButton(ButtonReady)
	f.setState(StateElementsMounted)
	return nil
}

func (f *UpsellForm) submit(ctx context.Context) {
	if f.token.Cancelled() {
		return
	}
	if !f.beginSubmit() {
		logger.Debug("Submit ignored while attempt in flight", "provider", f.params.Provider.Kind)
		return
	}
	f.surface.SetButton(ButtonProcessing)

	sub, err := f.deps.Backend.CreateSubscription(ctx, f.subscriptionRequest(f.customerID, ""))
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

func (f *UpsellForm) fail(ctx context.Context, err error) {
	f.settleFailure(ctx, err, f.surface.SetButton, f.surface.ShowError)
}

// Cleanup cancels the token and detaches the submit trigger
func (f *UpsellForm) Cleanup() {
	f.token.Cancel()
	if f.unbind != nil {
		f.unbind()
		f.unbind = nil
	}
}
