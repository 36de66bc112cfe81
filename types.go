package paywall

import (
	"github.com/paywall-labs/paywall-go/internal/checkout"
	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/events"
	"github.com/paywall-labs/paywall-go/internal/models"
	"github.com/paywall-labs/paywall-go/internal/pricing"
)

// The SDK contract types live in internal packages; the aliases below are
// the public names host pages implement and consume. An implementation
// written against these names satisfies the corresponding interface.
type (
	// ProviderKind identifies a payment processor
	ProviderKind = models.ProviderKind

	// Catalog entities returned by the read accessors
	Placement       = models.Placement
	Paywall         = models.Paywall
	ProductBundle   = models.ProductBundle
	Product         = models.Product
	PaymentProvider = models.PaymentProvider
	Subscription    = models.Subscription

	// Checkout contracts implemented by the host environment
	Surface         = checkout.Surface
	ApplePaySurface = checkout.ApplePaySurface
	PaymentSheet    = checkout.PaymentSheet
	StripeGateway   = checkout.StripeGateway
	PaddleOverlay   = checkout.PaddleOverlay

	// Checkout value types
	Options     = checkout.Options
	State       = checkout.State
	ButtonState = checkout.ButtonState
	Variant     = checkout.Variant
	Price       = pricing.Price

	// Lifecycle event plumbing used with Subscribe
	Event   = events.Event
	Handler = events.Handler
)

const (
	ProviderStripe = models.ProviderStripe
	ProviderPaddle = models.ProviderPaddle

	VariantDefault  = checkout.VariantDefault
	VariantApplePay = checkout.VariantApplePay

	ButtonReady      = checkout.ButtonReady
	ButtonProcessing = checkout.ButtonProcessing
	ButtonError      = checkout.ButtonError
)

// Lifecycle event names accepted by Subscribe
const (
	EventReady            = events.Ready
	EventProductChanged   = events.ProductChanged
	EventPaymentSuccess   = events.PaymentSuccess
	EventPaymentFailure   = events.PaymentFailure
	EventUpsellSuccess    = events.UpsellSuccess
	EventUpsellFailure    = events.UpsellFailure
	EventProviderNotFound = events.ProviderNotFound
)

// ErrSheetCancelled is what PaymentSheet and PaddleOverlay implementations
// return when the user dismisses the prompt; the form rearms without a
// failure event.
var ErrSheetCancelled = sdkerrors.ErrSheetCancelled
