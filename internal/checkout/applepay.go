package checkout

import (
	"context"
	"fmt"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/pricing"
	"github.com/paywall-labs/paywall-go/pkg/utils"
)

// ApplePayForm drives the platform payment-sheet flow. The button is only
// revealed once the price is resolved and the platform confirms
// availability; either failing keeps the page untouched.
type ApplePayForm struct {
	machine
	surface ApplePaySurface
	sheet   PaymentSheet

	price      pricing.Price
	customerID string
	hide       func()
}

// NewApplePayForm constructs the payment-sheet form for a stripe provider
func NewApplePayForm(deps Deps, params Params, surface ApplePaySurface, token *Token) *ApplePayForm {
	return &ApplePayForm{
		machine: machine{
			deps:         deps,
			params:       params,
			token:        token,
			state:        StateIdle,
			successEvent: events.PaymentSuccess,
			failureEvent: events.PaymentFailure,
			variant:      VariantApplePay,
		},
		surface: surface,
		sheet:   deps.Sheet,
	}
}

// Show resolves the sheet amount, checks platform availability, creates the
// provider customer and reveals the button. Price resolution fails closed:
// no amount means no button and no payment-request object.
func (f *ApplePayForm) Show(ctx context.Context) error {
	if f.sheet == nil {
		logger.Debug("No payment sheet wired; skipping")
		return nil
	}

	label, err := f.resolveLabel()
	if err != nil {
		logger.Error("Sheet price unresolved; button stays hidden", "error", err)
		f.deps.Backend.ReportError(ctx, err.Error())
		return err
	}
	price, err := pricing.ParsePrice(label)
	if err != nil {
		logger.Error("Sheet price unparseable; button stays hidden", "label", label, "error", err)
		f.deps.Backend.ReportError(ctx, err.Error())
		return err
	}
	f.price = price

	available, err := f.sheet.Available(ctx)
	if err != nil {
		logger.Warn("Payment sheet availability check failed", "error", err)
		return nil
	}
	if !available {
		logger.Debug("Payment sheet unavailable on this platform")
		return nil
	}
	if f.token.Cancelled() {
		return nil
	}

	session, err := f.deps.Backend.CreateCustomer(ctx, models.CreateCustomerRequest{
		UserID:         f.params.UserID,
		PaymentMethods: []string{"apple_pay"},
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

	hide, err := f.surface.Reveal(func() { f.authorize(ctx) })
	if err != nil {
		f.fail(ctx, err)
		return err
	}
	f.hide = hide
	f.setState(StateElementsMounted)
	f.surface.SetButton(ButtonReady)
	return nil
}

// resolveLabel prefers a statically supplied price over macro lookup
func (f *ApplePayForm) resolveLabel() (string, error) {
	if f.params.Options.StaticPrice != "" {
		return f.params.Options.StaticPrice, nil
	}
	macro := utils.FirstNonEmpty(f.params.Options.PriceMacro, f.deps.Config.PriceMacro)
	if label, ok := pricing.Resolve(f.params.Bundle, macro); ok {
		return label, nil
	}
	return "", fmt.Errorf("%w: bundle missing %q", sdkerrors.ErrPriceUnresolved, macro)
}

func (f *ApplePayForm) authorize(ctx context.Context) {
	if f.token.Cancelled() {
		return
	}
	if !f.beginSubmit() {
		logger.Debug("Tap ignored while attempt in flight", "provider", f.params.Provider.Kind)
		return
	}
	f.surface.SetButton(ButtonProcessing)

	paymentMethodID, err := f.sheet.Present(ctx, f.sheetLabel(), f.price)
	if sdkerrors.Is(err, sdkerrors.ErrSheetCancelled) {
		logger.Debug("Payment sheet dismissed")
		f.setState(StateElementsMounted)
		f.surface.SetButton(ButtonReady)
		return
	}
	if err != nil {
		f.fail(ctx, err)
		return
	}
	if f.token.Cancelled() {
		return
	}

	sub, err := f.deps.Backend.CreateSubscription(ctx, f.subscriptionRequest(f.customerID, paymentMethodID))
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
		if err := f.deps.Stripe.Confirm(ctx, sub.ClientSecret, paymentMethodID); err != nil {
			f.fail(ctx, err)
			return
		}
		if f.token.Cancelled() {
			return
		}
	}

	f.settleSuccess(ctx, *sub)
}

func (f *ApplePayForm) sheetLabel() string {
	if f.params.Bundle != nil && f.params.Bundle.Name != "" {
		return f.params.Bundle.Name
	}
	return f.params.Product.ProductID
}

func (f *ApplePayForm) fail(ctx context.Context, err error) {
	f.settleFailure(ctx, err, f.surface.SetButton, f.surface.ShowError)
}

// Cleanup cancels the token and hides the button if it was revealed
func (f *ApplePayForm) Cleanup() {
	f.token.Cancel()
	if f.hide != nil {
		f.hide()
		f.hide = nil
	}
}
