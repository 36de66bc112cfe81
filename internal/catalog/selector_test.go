package catalog

import (
	"testing"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/models"
)

func TestBuildSnapshotMatchesByKind(t *testing.T) {
	bundle := &models.ProductBundle{
		ID: "b1",
		Products: []models.Product{
			{ID: "p1", ProductID: "prod_stripe", Store: models.ProviderStripe},
			{ID: "p2", ProductID: "prod_paddle", Store: models.ProviderPaddle},
		},
	}
	enabled := []models.PaymentProvider{
		{ID: "pp1", Kind: models.ProviderStripe, Token: "pk_x"},
		{ID: "pp2", Kind: models.ProviderPaddle, Token: "pd_x"},
	}

	snap, err := BuildSnapshot(bundle, enabled)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}

	kinds := snap.Kinds()
	if len(kinds) != 2 || kinds[0] != models.ProviderPaddle || kinds[1] != models.ProviderStripe {
		t.Errorf("Expected sorted [paddle stripe], got %v", kinds)
	}

	product, ok := snap.Product(models.ProviderStripe)
	if !ok || product.ProductID != "prod_stripe" {
		t.Errorf("Expected stripe product, got %+v", product)
	}

	provider, ok := snap.Provider(models.ProviderPaddle)
	if !ok || provider.Token != "pd_x" {
		t.Errorf("Expected paddle provider config, got %+v", provider)
	}
}

func TestBuildSnapshotPartialMatchSucceeds(t *testing.T) {
	bundle := &models.ProductBundle{
		ID: "b1",
		Products: []models.Product{
			{ID: "p1", Store: models.ProviderStripe},
			{ID: "p2", Store: models.ProviderPaddle},
		},
	}
	enabled := []models.PaymentProvider{
		{ID: "pp2", Kind: models.ProviderPaddle},
	}

	snap, err := BuildSnapshot(bundle, enabled)
	if err != nil {
		t.Fatalf("BuildSnapshot failed: %v", err)
	}

	if len(snap.Kinds()) != 1 || snap.Kinds()[0] != models.ProviderPaddle {
		t.Errorf("Expected only paddle available, got %v", snap.Kinds())
	}
	if _, ok := snap.Product(models.ProviderStripe); ok {
		t.Errorf("Expected no stripe product")
	}
}

func TestBuildSnapshotNoMatchFails(t *testing.T) {
	bundle := &models.ProductBundle{
		ID:       "b1",
		Products: []models.Product{{ID: "p1", Store: models.ProviderStripe}},
	}

	snap, err := BuildSnapshot(bundle, []models.PaymentProvider{})
	if err == nil {
		t.Fatalf("Expected error for zero matches")
	}
	if !sdkerrors.Is(err, sdkerrors.ErrNoCompatibleProvider) {
		t.Errorf("Expected ErrNoCompatibleProvider, got %v", err)
	}
	if !snap.Empty() {
		t.Errorf("Expected empty snapshot on failure")
	}
}
