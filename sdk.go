// Package paywall is a client-side subscription paywall SDK: it resolves
// placements, paywalls and product bundles for a visitor, selects compatible
// payment providers and drives provider checkout forms end to end.
package paywall

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paywall-labs/paywall-go/config"
	"github.com/paywall-labs/paywall-go/internal/backend"
	"github.com/paywall-labs/paywall-go/internal/catalog"
	"github.com/paywall-labs/paywall-go/internal/checkout"
	"github.com/paywall-labs/paywall-go/internal/checkout/stripegw"
	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/form"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/outbox"
	"github.com/paywall-labs/paywall-go/internal/ready"
	"github.com/paywall-labs/paywall-go/internal/storage"
)

// Attribution source names with dedicated click id extraction
var clickIDKeys = []string{"fbclid", "gclid", "ttclid"}

// Hooks are the host-environment capabilities the SDK cannot provide itself.
// All fields are optional; a nil Stripe gateway is built from the provider
// token on first use.
type Hooks struct {
	Stripe  checkout.StripeGateway
	Sheet   checkout.PaymentSheet
	Overlay checkout.PaddleOverlay
	// After overrides redirect scheduling, used in tests
	After func(d time.Duration, fn func())
}

// SDK is the facade over the resolver, the form orchestrator, the readiness
// gate and the event outbox. Construct with New, then Init.
type SDK struct {
	cfg      *config.Config
	store    storage.Store
	client   backend.Client
	bus      *events.Bus
	gate     *ready.Gate
	outbox   *outbox.Outbox
	resolver *catalog.Resolver
	forms    *form.Orchestrator

	mu         sync.Mutex
	userID     string
	attrs      models.CustomerAttributes
	readySent  bool
	gatewaySet bool
	hasStripe  bool

	cancel context.CancelFunc
}

// New wires the SDK from configuration. Nothing touches the network until
// Init.
func New(ctx context.Context, cfg *config.Config, hooks Hooks) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sdkerrors.Configuration("invalid config: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := backend.NewHTTPClient(cfg.API)
	bus := events.NewBus()

	deps := checkout.Deps{
		Backend:  client,
		Store:    store,
		Config:   cfg.Checkout,
		StoreTTL: cfg.Storage.SelectionTTL,
		Stripe:   hooks.Stripe,
		Sheet:    hooks.Sheet,
		Overlay:  hooks.Overlay,
		After:    hooks.After,
	}

	s := &SDK{
		cfg:       cfg,
		store:     store,
		client:    client,
		bus:       bus,
		gate:      ready.New(),
		outbox:    outbox.New(store, client, cfg.Outbox, cfg.Storage.OutboxTTL),
		resolver:  catalog.NewResolver(store, bus, cfg.Storage.SelectionTTL),
		forms:     form.New(deps, bus),
		hasStripe: hooks.Stripe != nil,
		attrs: models.CustomerAttributes{
			AppVersion: cfg.API.AppVersion,
		},
	}
	return s, nil
}

// Init restores or mints the visitor identity, fetches the catalog, starts
// the outbox flusher and opens the readiness gate. Queued calls run before
// Init returns; the ready event fires once per SDK instance.
func (s *SDK) Init(ctx context.Context) error {
	userID, err := s.loadOrCreateUserID(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.userID = userID
	attrs := s.attrs
	s.mu.Unlock()

	s.stampAppVersion(ctx)

	user, err := s.client.CreateUser(ctx, userID, attrs)
	if err != nil {
		return fmt.Errorf("initial catalog fetch: %w", err)
	}
	s.resolver.SetUser(ctx, user)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()
	go s.outbox.Run(loopCtx)
	go func() {
		if err := s.outbox.Flush(loopCtx); err != nil {
			logger.Debug("Startup flush failed", "error", err)
		}
	}()

	s.gate.Open()

	s.mu.Lock()
	first := !s.readySent
	s.readySent = true
	s.mu.Unlock()
	if first {
		s.bus.Emit(events.Event{Name: events.Ready})
	}
	return nil
}

// Track queues an analytics event for at-least-once delivery. With
// refreshPlacements set the catalog is re-fetched after the event is queued;
// calls made before Init run once the gate opens.
func (s *SDK) Track(ctx context.Context, name string, props, userProps map[string]any, refreshPlacements bool) {
	s.gate.Do(func() {
		event := models.Event{
			Name:           name,
			Properties:     props,
			UserProperties: userProps,
			Timestamp:      time.Now().UTC(),
			InsertID:       uuid.NewString(),
			DeviceID:       s.UserID(),
			UserID:         s.UserID(),
		}
		if err := s.outbox.Enqueue(ctx, event); err != nil {
			logger.Warn("Failed to enqueue event", "name", name, "error", err)
		}
		if refreshPlacements {
			s.refresh(ctx)
		}
	})
}

// refresh closes the gate, re-fetches the catalog and reopens. The ready
// event does not fire again.
func (s *SDK) refresh(ctx context.Context) {
	s.gate.Close()
	defer s.gate.Open()

	s.mu.Lock()
	userID := s.userID
	attrs := s.attrs
	s.mu.Unlock()

	user, err := s.client.CreateUser(ctx, userID, attrs)
	if err != nil {
		logger.Warn("Catalog refresh failed; keeping current state", "error", err)
		return
	}
	s.resolver.SetUser(ctx, user)
}

// SetEmail updates the visitor profile and pushes it on the next refresh
func (s *SDK) SetEmail(ctx context.Context, email string) {
	s.mu.Lock()
	s.attrs.Email = email
	s.mu.Unlock()
	s.gate.Do(func() { s.refresh(ctx) })
}

// SetLanguage updates the visitor locale and pushes it on the next refresh
func (s *SDK) SetLanguage(ctx context.Context, locale string) {
	s.mu.Lock()
	s.attrs.Locale = locale
	s.mu.Unlock()
	s.gate.Do(func() { s.refresh(ctx) })
}

// SelectPlacementProduct selects a bundle by placement identifier and index.
// Called before Init it queues; queued failures are logged, not returned.
func (s *SDK) SelectPlacementProduct(ctx context.Context, placementIdentifier string, bundleIndex int) error {
	if s.gate.IsOpen() {
		return s.resolver.Select(ctx, placementIdentifier, bundleIndex)
	}
	s.gate.Do(func() {
		if err := s.resolver.Select(ctx, placementIdentifier, bundleIndex); err != nil {
			logger.Warn("Queued selection failed",
				"identifier", placementIdentifier, "index", bundleIndex, "error", err)
		}
	})
	return nil
}

// ShowPaymentForm mounts the card checkout form for the provider kind. An
// empty kind uses the first available provider for the current bundle.
// Called before Init it queues until the catalog is resolved; queued
// failures are logged, not returned.
func (s *SDK) ShowPaymentForm(ctx context.Context, kind models.ProviderKind, surface checkout.Surface, opts checkout.Options) error {
	if s.gate.IsOpen() {
		return s.showCard(ctx, kind, surface, opts)
	}
	s.gate.Do(func() {
		if err := s.showCard(ctx, kind, surface, opts); err != nil {
			logger.Warn("Queued payment form failed", "provider", kind, "error", err)
		}
	})
	return nil
}

func (s *SDK) showCard(ctx context.Context, kind models.ProviderKind, surface checkout.Surface, opts checkout.Options) error {
	params := s.checkoutParams(kind, opts)
	s.ensureGateway(params.Provider)
	if err := s.forms.ShowCard(ctx, params, surface); err != nil {
		return err
	}

	if opts.ApplePay {
		logger.Debug("Apple Pay requested; mount the sheet variant with ShowApplePayForm")
	}
	return nil
}

// ShowApplePayForm mounts the payment-sheet variant alongside the card form.
// The button appears only when the price resolves and the platform reports
// sheet support. Pre-init calls queue like ShowPaymentForm.
func (s *SDK) ShowApplePayForm(ctx context.Context, surface checkout.ApplePaySurface, opts checkout.Options) error {
	if s.gate.IsOpen() {
		return s.showApplePay(ctx, surface, opts)
	}
	s.gate.Do(func() {
		if err := s.showApplePay(ctx, surface, opts); err != nil {
			logger.Warn("Queued payment sheet failed", "error", err)
		}
	})
	return nil
}

func (s *SDK) showApplePay(ctx context.Context, surface checkout.ApplePaySurface, opts checkout.Options) error {
	params := s.checkoutParams(models.ProviderStripe, opts)
	s.ensureGateway(params.Provider)
	return s.forms.ShowApplePay(ctx, params, surface)
}

// ShowUpsellForm mounts the one-tap form against a previously created
// customer record. Pre-init calls queue like ShowPaymentForm.
func (s *SDK) ShowUpsellForm(ctx context.Context, kind models.ProviderKind, surface checkout.Surface, customerID string, opts checkout.Options) error {
	if s.gate.IsOpen() {
		return s.showUpsell(ctx, kind, surface, customerID, opts)
	}
	s.gate.Do(func() {
		if err := s.showUpsell(ctx, kind, surface, customerID, opts); err != nil {
			logger.Warn("Queued upsell form failed", "provider", kind, "error", err)
		}
	})
	return nil
}

func (s *SDK) showUpsell(ctx context.Context, kind models.ProviderKind, surface checkout.Surface, customerID string, opts checkout.Options) error {
	params := s.checkoutParams(kind, opts)
	s.ensureGateway(params.Provider)
	return s.forms.ShowUpsell(ctx, params, surface, customerID)
}

// HidePaymentForm tears down the form for one provider and variant
func (s *SDK) HidePaymentForm(kind models.ProviderKind, variant checkout.Variant) {
	s.forms.Cleanup(form.Key{Kind: kind, Variant: variant})
}

// SetAttribution forwards install attribution once per source. Click ids
// recognized in the payload are lifted into a dedicated map.
func (s *SDK) SetAttribution(ctx context.Context, source string, payload map[string]any) error {
	marker := storage.AttributionMarkerKey(source)
	if _, sent, err := s.store.Get(ctx, marker); err == nil && sent {
		logger.Debug("Attribution already sent", "source", source)
		return nil
	}

	clickIDs := make(map[string]string)
	for _, key := range clickIDKeys {
		if v, ok := payload[key].(string); ok && v != "" {
			clickIDs[key] = v
		}
	}

	attribution := models.Attribution{
		UserID:   s.UserID(),
		Source:   source,
		ClickIDs: clickIDs,
		Payload:  payload,
	}
	if err := s.client.SetAttribution(ctx, attribution); err != nil {
		return err
	}
	return s.store.Set(ctx, marker, "1", s.cfg.Storage.SelectionTTL)
}

// Subscribe registers a lifecycle event handler and returns its disposer
func (s *SDK) Subscribe(name string, fn events.Handler) func() {
	return s.bus.Subscribe(name, fn)
}

// CurrentPlacement returns the selected placement, defaulting to the first
func (s *SDK) CurrentPlacement() *models.Placement { return s.resolver.CurrentPlacement() }

// CurrentPaywall returns the paywall for the current placement
func (s *SDK) CurrentPaywall() *models.Paywall { return s.resolver.CurrentPaywall() }

// CurrentBundle returns the selected product bundle
func (s *SDK) CurrentBundle() *models.ProductBundle { return s.resolver.CurrentBundle() }

// CurrentProduct returns the current bundle's product for the provider kind;
// an empty kind picks the first available.
func (s *SDK) CurrentProduct(kind models.ProviderKind) *models.Product {
	return s.resolver.CurrentProduct(kind)
}

// Products returns the current bundle's provider-compatible products
func (s *SDK) Products() []models.Product { return s.resolver.Providers().Products() }

// AvailableProviders returns the provider kinds usable for the current bundle
func (s *SDK) AvailableProviders() []models.ProviderKind { return s.resolver.Providers().Kinds() }

// UserID returns the visitor identity minted or restored by Init
func (s *SDK) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// DeepLink returns the persisted post-purchase deep link, if any
func (s *SDK) DeepLink(ctx context.Context) (string, bool) {
	link, ok, err := s.store.Get(ctx, storage.KeyDeepLink)
	if err != nil {
		logger.Warn("Failed to read deep link", "error", err)
		return "", false
	}
	return link, ok
}

// Close stops the outbox flusher, tears down live forms and attempts a
// final flush.
func (s *SDK) Close(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.forms.CleanupAll()
	if err := s.outbox.Flush(ctx); err != nil {
		logger.Debug("Final flush failed", "error", err)
	}
}

// loadOrCreateUserID restores the per-environment visitor id or mints one.
// Sandbox and production identities never mix.
func (s *SDK) loadOrCreateUserID(ctx context.Context) (string, error) {
	key := storage.UserIDKey(s.cfg.API.Sandbox)

	id, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load user id: %w", err)
	}
	if ok {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.store.Set(ctx, key, id, 0); err != nil {
		return "", fmt.Errorf("persist user id: %w", err)
	}
	logger.Info("Minted visitor id", "sandbox", s.cfg.API.Sandbox)
	return id, nil
}

// stampAppVersion records the running app version and logs upgrades
func (s *SDK) stampAppVersion(ctx context.Context) {
	version := s.cfg.API.AppVersion

	previous, ok, err := s.store.Get(ctx, storage.KeyAppVersion)
	if err == nil && ok && previous != version {
		logger.Info("App version changed", "from", previous, "to", version)
	}
	if err := s.store.Set(ctx, storage.KeyAppVersion, version, 0); err != nil {
		logger.Warn("Failed to stamp app version", "error", err)
	}
}

// checkoutParams assembles form parameters from the current resolution. A
// provider kind with no compatible configuration yields a zero provider; the
// orchestrator turns that into provider_not_found.
func (s *SDK) checkoutParams(kind models.ProviderKind, opts checkout.Options) checkout.Params {
	snap := s.resolver.Providers()
	if kind == "" {
		if kinds := snap.Kinds(); len(kinds) > 0 {
			kind = kinds[0]
		}
	}

	params := checkout.Params{
		UserID:  s.UserID(),
		Options: opts,
		Bundle:  s.resolver.CurrentBundle(),
	}
	if provider, ok := snap.Provider(kind); ok {
		params.Provider = provider
	}
	if product := s.resolver.CurrentProduct(kind); product != nil {
		params.Product = *product
	}
	if paywall := s.resolver.CurrentPaywall(); paywall != nil {
		params.PaywallID = paywall.ID
	}
	if placement := s.resolver.CurrentPlacement(); placement != nil {
		params.PlacementID = placement.ID
	}
	return params
}

// ensureGateway builds the Stripe confirmation gateway from the provider
// token when the host did not supply one
func (s *SDK) ensureGateway(provider models.PaymentProvider) {
	if provider.Kind != models.ProviderStripe || provider.Token == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasStripe || s.gatewaySet {
		return
	}
	s.forms.SetStripeGateway(stripegw.New(provider.Token))
	s.gatewaySet = true
}
