package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/backend"
	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/metrics"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/pricing"
	"github.com/paywall-labs/paywall-go/internal/storage"
)

// State is the linear checkout progression. Settled states are terminal for
// the attempt; a retryable failure returns the trigger to ready without
// rewinding the machine past customer creation.
type State string

const (
	StateIdle            State = "idle"
	StateCustomerReady   State = "customer_ready"
	StateElementsMounted State = "elements_mounted"
	StateSubmitting      State = "submitting"
	StateConfirming      State = "confirming"
	StateSettledSuccess  State = "settled_success"
	StateSettledFailure  State = "settled_failure"
)

// ButtonState mirrors the trigger element's visual state
type ButtonState string

const (
	ButtonReady      ButtonState = "ready"
	ButtonProcessing ButtonState = "processing"
	ButtonError      ButtonState = "error"
)

// Variant distinguishes form flavors under one provider
type Variant string

const (
	VariantDefault  Variant = "default"
	VariantApplePay Variant = "apple_pay"
)

// Token is the cancellation token handed to a form at construction. Every
// asynchronous continuation checks it before mutating shared state or
// attaching listeners, so a superseded instance's late responses are inert.
type Token struct {
	mu        sync.Mutex
	cancelled bool
}

// NewToken creates a live token
func NewToken() *Token {
	return &Token{}
}

// Cancel marks the token; it cannot be revived
func (t *Token) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

// Cancelled reports whether the owning form has been superseded
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Surface is the host-page contract for card forms: a mount point for the
// provider's elements, a submit trigger, a button and an error slot.
type Surface interface {
	MountElements(clientSecret string) error
	BindSubmit(fn func()) (unbind func())
	SetButton(state ButtonState)
	ShowError(message string)
}

// ApplePaySurface is the host-page contract for the platform pay button
type ApplePaySurface interface {
	Reveal(onTap func()) (hide func(), err error)
	SetButton(state ButtonState)
	ShowError(message string)
}

// PaymentSheet is the platform payment-request capability. Present returns
// ErrSheetCancelled when the user dismisses the sheet.
type PaymentSheet interface {
	Available(ctx context.Context) (bool, error)
	Present(ctx context.Context, label string, price pricing.Price) (paymentMethodID string, err error)
}

// StripeGateway performs the additional-authentication confirmation step
type StripeGateway interface {
	Confirm(ctx context.Context, clientSecret, paymentMethodID string) error
}

// PaddleOverlay is the hosted checkout contract. Open blocks until the
// overlay settles and returns ErrSheetCancelled when the user closes it.
type PaddleOverlay interface {
	Configure(sellerID, token string) error
	Open(ctx context.Context, planID string, passthrough map[string]string) (paymentMethodID string, err error)
}

// Emitter publishes lifecycle events; the orchestrator is a transparent relay
type Emitter interface {
	Emit(ev events.Event)
}

// Form is a live checkout state machine
type Form interface {
	Show(ctx context.Context) error
	Cleanup()
	State() State
}

// Options are per-show caller options
type Options struct {
	ApplePay bool
	// StaticPrice overrides macro lookup for the payment sheet amount
	StaticPrice string
	// PriceMacro names the bundle property holding the sheet amount;
	// empty falls back to the configured default.
	PriceMacro string
	// SuccessURL overrides the configured success destination
	SuccessURL string
	// OnSuccess, when set, is invoked after the success delay instead of a
	// redirect.
	OnSuccess func(models.Subscription)
	// Navigate performs the redirect; nil means the destination is only
	// logged (the SDK never drives a browser itself).
	Navigate func(url string)
}

// Params identify what is being sold through which provider
type Params struct {
	UserID      string
	Product     models.Product
	Provider    models.PaymentProvider
	Bundle      *models.ProductBundle
	PaywallID   string
	PlacementID string
	Options     Options
}

// Deps are the collaborators shared by all machines
type Deps struct {
	Backend backend.Client
	Store   storage.Store
	Emitter Emitter
	Config  config.CheckoutConfig
	// StoreTTL covers the deep-link and last-provider cookies
	StoreTTL time.Duration
	Stripe   StripeGateway
	Sheet    PaymentSheet
	Overlay  PaddleOverlay
	// After schedules fn once d elapses; nil uses time.AfterFunc. Tests
	// substitute a synchronous version.
	After func(d time.Duration, fn func())
}

func (d Deps) after(delay time.Duration, fn func()) {
	if d.After != nil {
		d.After(delay, fn)
		return
	}
	time.AfterFunc(delay, fn)
}

// machine carries the state shared by every provider form
type machine struct {
	deps   Deps
	params Params
	token  *Token

	mu    sync.Mutex
	state State

	successEvent string
	failureEvent string
	variant      Variant
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// beginSubmit moves the machine into submitting. Re-entrant submits and taps
// on a settled form are rejected; a settled attempt never creates a second
// subscription.
func (m *machine) beginSubmit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateSubmitting, StateConfirming, StateSettledSuccess, StateSettledFailure:
		return false
	}
	m.state = StateSubmitting
	return true
}

// subscriptionRequest builds the create-subscription payload, attaching
// trial/discount fields only when an introductory offer applies to the
// provider in use.
func (m *machine) subscriptionRequest(customerID, paymentMethodID string) models.CreateSubscriptionRequest {
	req := models.CreateSubscriptionRequest{
		ProductID:       m.params.Product.BasePlanID,
		PaywallID:       m.params.PaywallID,
		PlacementID:     m.params.PlacementID,
		UserID:          m.params.UserID,
		CustomerID:      customerID,
		PaymentMethodID: paymentMethodID,
	}
	if days, discount, ok := pricing.IntroductoryOffer(m.params.Bundle, m.params.Provider.Kind); ok {
		req.TrialPeriodDays = days
		req.DiscountID = discount
	}
	return req
}

// settleSuccess persists the deep-link and chosen-provider cookies, emits
// the success event and schedules the post-success hand-off.
func (m *machine) settleSuccess(ctx context.Context, sub models.Subscription) {
	m.setState(StateSettledSuccess)
	metrics.RecordCheckout(string(m.params.Provider.Kind), string(m.variant), "success")

	if sub.DeepLink != "" {
		if err := m.deps.Store.Set(ctx, storage.KeyDeepLink, sub.DeepLink, m.deps.StoreTTL); err != nil {
			logger.Warn("Failed to persist deep link", "error", err)
		}
	}
	if err := m.deps.Store.Set(ctx, storage.KeyLastProvider, string(m.params.Provider.Kind), m.deps.StoreTTL); err != nil {
		logger.Warn("Failed to persist provider choice", "error", err)
	}

	m.deps.Emitter.Emit(events.Event{
		Name:     m.successEvent,
		Provider: m.params.Provider.Kind,
		Data:     map[string]any{"subscription_id": sub.ID},
	})

	token := m.token
	opts := m.params.Options
	m.deps.after(m.deps.Config.SuccessDelay, func() {
		if token.Cancelled() {
			return
		}
		if opts.OnSuccess != nil {
			opts.OnSuccess(sub)
			return
		}
		url := opts.SuccessURL
		if url == "" {
			url = m.deps.Config.SuccessURL + sub.DeepLink
		}
		if opts.Navigate != nil {
			opts.Navigate(url)
			return
		}
		logger.Info("Checkout complete", "redirect", url)
	})
}

// settleFailure emits the failure event and restores the trigger.
// Configuration-class errors land in a terminal error state; everything
// else re-enables the trigger for a retry.
func (m *machine) settleFailure(ctx context.Context, err error, setButton func(ButtonState), showError func(string)) {
	metrics.RecordCheckout(string(m.params.Provider.Kind), string(m.variant), "failure")

	terminal := sdkerrors.Is(err, sdkerrors.ErrConfiguration)
	if terminal {
		m.setState(StateSettledFailure)
		setButton(ButtonError)
		m.deps.Backend.ReportError(ctx, err.Error())
	} else {
		// Only a failed submit rewinds to the mounted elements; a failure
		// before anything was mounted leaves the machine idle.
		m.mu.Lock()
		if m.state == StateSubmitting || m.state == StateConfirming {
			m.state = StateElementsMounted
		} else {
			m.state = StateIdle
		}
		m.mu.Unlock()
		setButton(ButtonReady)
	}

	showError(err.Error())
	logger.Error("Checkout failed",
		"provider", m.params.Provider.Kind,
		"variant", m.variant,
		"terminal", terminal,
		"error", err,
	)
	m.deps.Emitter.Emit(events.Event{
		Name:     m.failureEvent,
		Provider: m.params.Provider.Kind,
		Err:      err,
	})
}
