package models

import "time"

// ProviderKind identifies a payment processor
type ProviderKind string

const (
	ProviderStripe ProviderKind = "stripe"
	ProviderPaddle ProviderKind = "paddle"
)

// Valid reports whether the kind is a known processor
func (k ProviderKind) Valid() bool {
	return k == ProviderStripe || k == ProviderPaddle
}

// User is the visitor as known by the backend. It is replaced wholesale on
// each catalog refresh, never patched field by field.
type User struct {
	ID               string            `json:"id"`
	CustomerUserID   string            `json:"customer_user_id,omitempty"`
	Email            string            `json:"email,omitempty"`
	Locale           string            `json:"locale,omitempty"`
	Currency         string            `json:"currency,omitempty"`
	Placements       []Placement       `json:"placements"`
	PaymentProviders []PaymentProvider `json:"payment_providers"`
}

// Placement is a named slot in which a paywall is shown. Identifier is the
// external selector key; ID is internal.
type Placement struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Paywalls   []Paywall `json:"paywalls"`
}

// Paywall is a versioned screen configuration. Only the first paywall of a
// placement is consulted; multi-paywall A/B resolution happens upstream.
type Paywall struct {
	ID           string          `json:"id"`
	Default      bool            `json:"default"`
	ExperimentID string          `json:"experiment_id,omitempty"`
	Bundles      []ProductBundle `json:"items_v2"`
}

// ProductBundle is one logical price point expressed per store. Properties
// carries localized price macros (new-price, old-price, custom-N and
// introductory offer fields).
type ProductBundle struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Products   []Product         `json:"products"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Product is a store-specific purchasable SKU. BasePlanID is the identifier
// actually sent to the provider at checkout time.
type Product struct {
	ID         string       `json:"id"`
	ProductID  string       `json:"product_id"`
	BasePlanID string       `json:"base_plan_id"`
	Store      ProviderKind `json:"store"`
}

// PaymentProvider is a configured processor instance. At most one provider
// per kind is current at a time; selection is keyed by kind.
type PaymentProvider struct {
	ID         string       `json:"id"`
	Identifier string       `json:"identifier"`
	Kind       ProviderKind `json:"kind"`
	Token      string       `json:"token,omitempty"`
}

// Subscription is the result of a provider checkout creation call. A present
// ClientSecret signals a required additional-confirmation step.
type Subscription struct {
	ID            string `json:"id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	DeepLink      string `json:"deep_link,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	AuthToken     string `json:"auth_token,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// CustomerSession is the result of a payment-provider customer creation call
type CustomerSession struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// Event is a single analytics event queued for delivery
type Event struct {
	Name           string         `json:"name"`
	Properties     map[string]any `json:"properties,omitempty"`
	UserProperties map[string]any `json:"user_properties,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	InsertID       string         `json:"insert_id"`
	DeviceID       string         `json:"device_id"`
	UserID         string         `json:"user_id"`
}

// CreateSubscriptionRequest is the checkout creation payload. Trial and
// discount fields are set only when an introductory offer applies to the
// provider in use.
type CreateSubscriptionRequest struct {
	ProductID       string            `json:"product_id"`
	PaywallID       string            `json:"paywall_id"`
	PlacementID     string            `json:"placement_id"`
	UserID          string            `json:"user_id"`
	CustomerID      string            `json:"customer_id,omitempty"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	TrialPeriodDays int               `json:"trial_period_days,omitempty"`
	DiscountID      string            `json:"discount_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CreateCustomerRequest is the payment-provider customer creation payload
type CreateCustomerRequest struct {
	UserID         string            `json:"user_id"`
	PaymentMethods []string          `json:"payment_methods,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// CustomerAttributes describes the visitor on create/update user calls
type CustomerAttributes struct {
	CustomerUserID string `json:"customer_user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	Locale         string `json:"locale,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Currency       string `json:"currency,omitempty"`
	Country        string `json:"country,omitempty"`
	Platform       string `json:"platform,omitempty"`
	AppVersion     string `json:"app_version,omitempty"`
	PageURL        string `json:"page_url,omitempty"`
}

// Attribution carries click ids extracted from the landing query string plus
// a free-form payload supplied by the host page
type Attribution struct {
	UserID   string            `json:"user_id"`
	Source   string            `json:"source,omitempty"`
	ClickIDs map[string]string `json:"click_ids,omitempty"`
	Payload  map[string]any    `json:"payload,omitempty"`
}
