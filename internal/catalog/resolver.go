package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/metrics"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/pricing"
	"github.com/paywall-labs/paywall-go/internal/storage"
)

// selection is the memoized placement/paywall/bundle triple
type selection struct {
	placement models.Placement
	paywall   models.Paywall
	bundle    models.ProductBundle
	index     int
}

// Resolver owns the authoritative "current placement / paywall / bundle"
// triple, keeps it queryable, and persists it across reloads. Accessors
// never return an error; total absence of catalog data yields nil.
type Resolver struct {
	store storage.Store
	bus   *events.Bus
	ttl   time.Duration

	mu   sync.RWMutex
	user *models.User
	sel  *selection
	snap Snapshot
	// reported dedupes resolution failures per distinct cause for the SDK
	// instance lifetime, so repeated variable reads do not storm the logs.
	reported map[string]bool
}

// NewResolver creates a resolver persisting selections with the given TTL
func NewResolver(store storage.Store, bus *events.Bus, ttl time.Duration) *Resolver {
	return &Resolver{
		store:    store,
		bus:      bus,
		ttl:      ttl,
		reported: make(map[string]bool),
	}
}

// SetUser replaces the catalog wholesale and re-resolves the current
// selection: a persisted pair re-runs the full select logic against the
// fresh user so provider maps are rebuilt; otherwise defaults apply.
func (r *Resolver) SetUser(ctx context.Context, user *models.User) {
	r.mu.Lock()
	r.user = user
	r.sel = nil
	r.snap = Snapshot{}
	r.mu.Unlock()

	if identifier, index, ok := r.loadPersisted(ctx); ok {
		if err := r.Select(ctx, identifier, index); err == nil {
			return
		}
		logger.Warn("Persisted selection no longer resolvable; using defaults",
			"placement", identifier, "index", index)
	}

	// Build the provider snapshot for the default bundle so provider
	// accessors work before any explicit selection.
	r.mu.Lock()
	defer r.mu.Unlock()
	if bundle := r.defaultBundleLocked(); bundle != nil {
		snap, err := BuildSnapshot(bundle, user.PaymentProviders)
		if err != nil {
			logger.Warn("Default bundle has no compatible provider", "bundle", bundle.ID)
			return
		}
		r.snap = snap
	}
}

// Select resolves a placement by its external identifier and a bundle by
// position. Failures log once per distinct cause and leave prior state
// untouched. Missing price macros are a warning; selection still proceeds.
func (r *Resolver) Select(ctx context.Context, placementIdentifier string, bundleIndex int) error {
	r.mu.Lock()
	bundleID, err := r.selectLocked(ctx, placementIdentifier, bundleIndex)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	metrics.RecordResolve("success")
	// Fan-out happens after the lock is released; listeners commonly read
	// back through the accessors.
	r.bus.Emit(events.Event{Name: events.ProductChanged, Data: map[string]any{
		"placement": placementIdentifier,
		"bundle":    bundleID,
	}})
	return nil
}

func (r *Resolver) selectLocked(ctx context.Context, placementIdentifier string, bundleIndex int) (string, error) {
	if r.user == nil {
		return "", sdkerrors.ErrNotReady
	}

	var placement *models.Placement
	for i := range r.user.Placements {
		if r.user.Placements[i].Identifier == placementIdentifier {
			placement = &r.user.Placements[i]
			break
		}
	}
	if placement == nil {
		r.reportOnce("placement:"+placementIdentifier,
			"Placement not found", "identifier", placementIdentifier)
		metrics.RecordResolve("placement_not_found")
		return "", fmt.Errorf("%w: %s", sdkerrors.ErrPlacementNotFound, placementIdentifier)
	}

	if len(placement.Paywalls) == 0 {
		r.reportOnce("paywalls:"+placementIdentifier,
			"Placement has no paywalls", "identifier", placementIdentifier)
		metrics.RecordResolve("no_paywall")
		return "", fmt.Errorf("%w: placement %s has no paywalls", sdkerrors.ErrPlacementNotFound, placementIdentifier)
	}
	paywall := placement.Paywalls[0]

	if bundleIndex < 0 || bundleIndex >= len(paywall.Bundles) {
		metrics.RecordResolve("bundle_index")
		logger.Warn("Bundle index out of range",
			"identifier", placementIdentifier,
			"index", bundleIndex,
			"bundles", len(paywall.Bundles),
		)
		return "", fmt.Errorf("%w: %d of %d", sdkerrors.ErrBundleIndex, bundleIndex, len(paywall.Bundles))
	}
	bundle := paywall.Bundles[bundleIndex]

	if len(bundle.Products) == 0 {
		metrics.RecordResolve("empty_bundle")
		logger.Warn("Bundle has no products", "bundle", bundle.ID)
		return "", fmt.Errorf("%w: %s", sdkerrors.ErrEmptyBundle, bundle.ID)
	}

	if !pricing.HasPriceMacros(&bundle) {
		logger.Warn("Bundle lacks price macros; selection proceeds", "bundle", bundle.ID)
	}

	snap, err := BuildSnapshot(&bundle, r.user.PaymentProviders)
	if err != nil {
		metrics.RecordResolve("no_provider")
		return "", err
	}

	r.sel = &selection{
		placement: *placement,
		paywall:   paywall,
		bundle:    bundle,
		index:     bundleIndex,
	}
	r.snap = snap

	pair := placementIdentifier + "," + strconv.Itoa(bundleIndex)
	if err := r.store.Set(ctx, storage.KeySelection, pair, r.ttl); err != nil {
		logger.Warn("Failed to persist selection", "error", err)
	}
	return bundle.ID, nil
}

// CurrentPlacement returns the selected placement, else placements[0], else nil
func (r *Resolver) CurrentPlacement() *models.Placement {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sel != nil {
		p := r.sel.placement
		return &p
	}
	if r.user == nil || len(r.user.Placements) == 0 {
		return nil
	}
	p := r.user.Placements[0]
	return &p
}

// CurrentPaywall returns the selected paywall, else the default, else nil
func (r *Resolver) CurrentPaywall() *models.Paywall {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sel != nil {
		pw := r.sel.paywall
		return &pw
	}
	placement := r.defaultPlacementLocked()
	if placement == nil || len(placement.Paywalls) == 0 {
		return nil
	}
	pw := placement.Paywalls[0]
	return &pw
}

// CurrentBundle returns the selected bundle, else the default, else nil
func (r *Resolver) CurrentBundle() *models.ProductBundle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sel != nil {
		b := r.sel.bundle
		return &b
	}
	b := r.defaultBundleLocked()
	if b == nil {
		return nil
	}
	copied := *b
	return &copied
}

// CurrentProduct returns the product for the given kind from the current
// snapshot, or the first available product when kind is empty
func (r *Resolver) CurrentProduct(kind models.ProviderKind) *models.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind == "" {
		kinds := r.snap.Kinds()
		if len(kinds) == 0 {
			return nil
		}
		kind = kinds[0]
	}
	product, ok := r.snap.Product(kind)
	if !ok {
		return nil
	}
	return &product
}

// Providers returns the current provider snapshot
func (r *Resolver) Providers() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// User returns the current catalog user
func (r *Resolver) User() *models.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.user
}

// loadPersisted reads and parses the persisted "identifier,index" pair
func (r *Resolver) loadPersisted(ctx context.Context) (string, int, bool) {
	raw, ok, err := r.store.Get(ctx, storage.KeySelection)
	if err != nil || !ok {
		return "", 0, false
	}

	identifier, indexStr, found := strings.Cut(raw, ",")
	if !found || identifier == "" {
		return "", 0, false
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		return "", 0, false
	}
	return identifier, index, true
}

func (r *Resolver) defaultPlacementLocked() *models.Placement {
	if r.user == nil || len(r.user.Placements) == 0 {
		return nil
	}
	return &r.user.Placements[0]
}

func (r *Resolver) defaultBundleLocked() *models.ProductBundle {
	placement := r.defaultPlacementLocked()
	if placement == nil || len(placement.Paywalls) == 0 {
		return nil
	}
	paywall := placement.Paywalls[0]
	if len(paywall.Bundles) == 0 {
		return nil
	}
	return &paywall.Bundles[0]
}

func (r *Resolver) reportOnce(cause, msg string, args ...any) {
	if r.reported[cause] {
		return
	}
	r.reported[cause] = true
	logger.Error(msg, args...)
}
