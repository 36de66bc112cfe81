package catalog

import (
	"fmt"
	"sort"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/logger"
	"github.com/paywall-labs/paywall-go/internal/models"
)

// Snapshot holds the per-provider product and config maps built for a
// bundle. It is immutable; the resolver swaps whole snapshots so readers
// never observe a torn state.
type Snapshot struct {
	products  map[models.ProviderKind]models.Product
	providers map[models.ProviderKind]models.PaymentProvider
}

// Product returns the bundle's product for the provider kind
func (s Snapshot) Product(kind models.ProviderKind) (models.Product, bool) {
	p, ok := s.products[kind]
	return p, ok
}

// Provider returns the configured provider instance for the kind
func (s Snapshot) Provider(kind models.ProviderKind) (models.PaymentProvider, bool) {
	p, ok := s.providers[kind]
	return p, ok
}

// Kinds returns the available provider kinds in stable sorted order
func (s Snapshot) Kinds() []models.ProviderKind {
	kinds := make([]models.ProviderKind, 0, len(s.providers))
	for k := range s.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Products returns the compatible products in kind order
func (s Snapshot) Products() []models.Product {
	out := make([]models.Product, 0, len(s.products))
	for _, k := range s.Kinds() {
		out = append(out, s.products[k])
	}
	return out
}

// Empty reports whether no provider matched
func (s Snapshot) Empty() bool {
	return len(s.providers) == 0
}

// BuildSnapshot matches each product in the bundle against the enabled
// provider list by kind. Products without a matching provider produce a
// diagnostic but do not abort the bundle; zero matches fails the whole
// selection.
func BuildSnapshot(bundle *models.ProductBundle, enabled []models.PaymentProvider) (Snapshot, error) {
	snap := Snapshot{
		products:  make(map[models.ProviderKind]models.Product),
		providers: make(map[models.ProviderKind]models.PaymentProvider),
	}

	for _, product := range bundle.Products {
		matched := false
		for _, provider := range enabled {
			if provider.Kind == product.Store {
				snap.products[product.Store] = product
				snap.providers[product.Store] = provider
				matched = true
				break
			}
		}
		if !matched {
			logger.Warn("No enabled provider for product",
				"bundle", bundle.ID,
				"product", product.ProductID,
				"store", product.Store,
			)
		}
	}

	if snap.Empty() {
		return Snapshot{}, fmt.Errorf("%w: bundle %s", sdkerrors.ErrNoCompatibleProvider, bundle.ID)
	}
	return snap, nil
}
