package checkout

import (
	"context"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/models"
)

// PaddleForm drives a hosted-overlay checkout. Configuration is synchronous
// and there is no separate mount step; submit opens the overlay and waits
// for it to settle.
type PaddleForm struct {
	machine
	surface Surface
	overlay PaddleOverlay

	customerID string
	unbind     func()
}

// NewPaddleForm constructs the overlay form for a paddle provider
func NewPaddleForm(deps Deps, params Params, surface Surface, token *Token) *PaddleForm {
	return &PaddleForm{
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
		overlay: deps.Overlay,
	}
}

// Show validates seller credentials, creates the provider customer and
// configures the overlay. Credential problems are terminal.
func (f *PaddleForm) Show(ctx context.Context) error {
	if f.overlay == nil {
		err := sdkerrors.Configuration("paddle overlay not configured")
		f.fail(ctx, err)
		return err
	}
	if f.params.Provider.Token == "" || f.params.Provider.Identifier == "" {
		err := sdkerrors.Configuration("paddle provider %s missing seller credentials", f.params.Provider.ID)
		f.fail(ctx, err)
		return err
	}

	session, err := f.deps.Backend.CreateCustomer(ctx, models.CreateCustomerRequest{
		UserID:   f.params.UserID,
		Metadata: map[string]string{"provider_id": f.params.Provider.ID},
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

	if err := f.overlay.Configure(f.params.Provider.Identifier, f.params.Provider.Token); err != nil {
		err = sdkerrors.Configuration("paddle overlay setup failed: %v", err)
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

func (f *PaddleForm) submit(ctx context.Context) {
	if f.token.Cancelled() {
		return
	}
	if !f.beginSubmit() {
		logger.Debug("Submit ignored while attempt in flight", "provider", f.params.Provider.Kind)
		return
	}
	f.surface.SetButton(ButtonProcessing)

	paymentMethodID, err := f.overlay.Open(ctx, f.params.Product.BasePlanID, map[string]string{
		"user_id":     f.params.UserID,
		"customer_id": f.customerID,
	})
	if sdkerrors.Is(err, sdkerrors.ErrSheetCancelled) {
		logger.Debug("Overlay dismissed", "provider", f.params.Provider.Kind)
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

	// The overlay already authenticated the payment, so there is no
	// confirming step on this path.
	sub, err := f.deps.Backend.CreateSubscription(ctx, f.subscriptionRequest(f.customerID, paymentMethodID))
	if err != nil {
		f.fail(ctx, err)
		return
	}
	if f.token.Cancelled() {
		return
	}
	f.settleSuccess(ctx, *sub)
}

func (f *PaddleForm) fail(ctx context.Context, err error) {
	f.settleFailure(ctx, err, f.surface.SetButton, f.surface.ShowError)
}

// Cleanup cancels the token and detaches the submit trigger
func (f *PaddleForm) Cleanup() {
	f.token.Cancel()
	if f.unbind != nil {
		f.unbind()
		f.unbind = nil
	}
}
