package form

import (
	"context"
	"fmt"
	"sync"

	"github.com/paywall-labs/paywall-go/internal/checkout"
	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/models"
)

// Key identifies one live form slot: a provider kind plus a variant. Showing
// into an occupied slot replaces only that slot; other slots keep running.
type Key struct {
	Kind    models.ProviderKind
	Variant checkout.Variant
}

type entry struct {
	form  checkout.Form
	token *checkout.Token
}

// Orchestrator owns the live checkout forms and relays their lifecycle
// events onto the shared bus unchanged.
type Orchestrator struct {
	deps checkout.Deps
	bus  *events.Bus

	mu    sync.Mutex
	forms map[Key]entry
}

// New creates an orchestrator publishing form events to the given bus
func New(deps checkout.Deps, bus *events.Bus) *Orchestrator {
	o := &Orchestrator{
		bus:   bus,
		forms: make(map[Key]entry),
	}
	deps.Emitter = o
	o.deps = deps
	return o
}

// Emit forwards a form lifecycle event to the bus
func (o *Orchestrator) Emit(ev events.Event) {
	o.bus.Emit(ev)
}

// SetStripeGateway installs the confirmation gateway for forms created from
// now on. Live forms keep the gateway they were built with.
func (o *Orchestrator) SetStripeGateway(gw checkout.StripeGateway) {
	o.mu.Lock()
	o.deps.Stripe = gw
	o.mu.Unlock()
}

// ShowCard mounts the default card form for the provider in params. An
// occupied slot for the same provider and variant is cleaned up first.
func (o *Orchestrator) ShowCard(ctx context.Context, params checkout.Params, surface checkout.Surface) error {
	if err := o.checkProvider(params.Provider); err != nil {
		return err
	}

	token := checkout.NewToken()
	deps := o.snapshotDeps()
	var f checkout.Form
	switch params.Provider.Kind {
	case models.ProviderStripe:
		f = checkout.NewStripeForm(deps, params, surface, token)
	case models.ProviderPaddle:
		f = checkout.NewPaddleForm(deps, params, surface, token)
	default:
		return o.missing(params.Provider.Kind)
	}

	return o.show(ctx, Key{Kind: params.Provider.Kind, Variant: checkout.VariantDefault}, f, token)
}

// ShowApplePay mounts the payment-sheet variant. Only card providers with
// sheet support carry this variant.
func (o *Orchestrator) ShowApplePay(ctx context.Context, params checkout.Params, surface checkout.ApplePaySurface) error {
	if err := o.checkProvider(params.Provider); err != nil {
		return err
	}
	if params.Provider.Kind != models.ProviderStripe {
		return o.missing(params.Provider.Kind)
	}

	token := checkout.NewToken()
	f := checkout.NewApplePayForm(o.snapshotDeps(), params, surface, token)
	return o.show(ctx, Key{Kind: params.Provider.Kind, Variant: checkout.VariantApplePay}, f, token)
}

// ShowUpsell mounts the one-tap form against an existing customer
func (o *Orchestrator) ShowUpsell(ctx context.Context, params checkout.Params, surface checkout.Surface, customerID string) error {
	if err := o.checkProvider(params.Provider); err != nil {
		return err
	}

	token := checkout.NewToken()
	f := checkout.NewUpsellForm(o.snapshotDeps(), params, surface, token, customerID)
	return o.show(ctx, Key{Kind: params.Provider.Kind, Variant: checkout.VariantDefault}, f, token)
}

func (o *Orchestrator) snapshotDeps() checkout.Deps {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deps
}

func (o *Orchestrator) show(ctx context.Context, key Key, f checkout.Form, token *checkout.Token) error {
	o.mu.Lock()
	if prev, ok := o.forms[key]; ok {
		logger.Debug("Replacing live form", "kind", key.Kind, "variant", key.Variant)
		prev.form.Cleanup()
	}
	o.forms[key] = entry{form: f, token: token}
	o.mu.Unlock()

	return f.Show(ctx)
}

func (o *Orchestrator) checkProvider(provider models.PaymentProvider) error {
	if provider.ID == "" || !provider.Kind.Valid() {
		return o.missing(provider.Kind)
	}
	return nil
}

// missing emits provider_not_found and returns the matching error; showing
// a form for an unconfigured provider is a caller mistake, not a crash.
func (o *Orchestrator) missing(kind models.ProviderKind) error {
	err := fmt.Errorf("%w: %q", sdkerrors.ErrProviderNotFound, kind)
	logger.Error("No configured payment provider", "kind", kind)
	o.bus.Emit(events.Event{Name: events.ProviderNotFound, Provider: kind, Err: err})
	return err
}

// Cleanup tears down the form in one slot, leaving other slots running
func (o *Orchestrator) Cleanup(key Key) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if e, ok := o.forms[key]; ok {
		e.form.Cleanup()
		delete(o.forms, key)
	}
}

// CleanupAll tears down every live form
func (o *Orchestrator) CleanupAll() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for key, e := range o.forms {
		e.form.Cleanup()
		delete(o.forms, key)
	}
}

// State reports the slot's machine state, or idle when the slot is empty
func (o *Orchestrator) State(key Key) checkout.State {
	o.mu.Lock()
	defer o.mu.Unlock()

	if e, ok := o.forms[key]; ok {
		return e.form.State()
	}
	return checkout.StateIdle
}
