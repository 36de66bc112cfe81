package pricing

import (
	"fmt"
	"strconv"
	"strings"

	sdkerrors "github.com/paywall-labs/paywall-go/internal/errors"
	"github.com/paywall-labs/paywall-go/internal/models"
)

// Well-known price macro names resolved from a bundle's property map
const (
	MacroNewPrice = "new-price"
	MacroOldPrice = "old-price"

	introTrialDaysKey  = "introductory_offer_trial_days"
	introDiscountIDKey = "introductory_offer_discount_id"
	introProvidersKey  = "introductory_offer_providers"
)

// Price is a parsed amount with its detected currency
type Price struct {
	Amount   float64
	Currency string
	// Label is the original localized text, kept for display
	Label string
}

// Resolve returns the named macro from the bundle's localized property map
func Resolve(bundle *models.ProductBundle, name string) (string, bool) {
	if bundle == nil || bundle.Properties == nil {
		return "", false
	}
	value, ok := bundle.Properties[name]
	return value, ok && value != ""
}

// HasPriceMacros reports whether the bundle carries the required price
// variables. Their absence downgrades selection to a warning, not a failure.
func HasPriceMacros(bundle *models.ProductBundle) bool {
	_, ok := Resolve(bundle, MacroNewPrice)
	return ok
}

// IntroductoryOffer returns trial/discount terms when the bundle declares an
// introductory offer applying to the given provider kind. An absent provider
// list means the offer applies to every provider.
func IntroductoryOffer(bundle *models.ProductBundle, kind models.ProviderKind) (trialDays int, discountID string, ok bool) {
	if bundle == nil || bundle.Properties == nil {
		return 0, "", false
	}

	days, hasDays := bundle.Properties[introTrialDaysKey]
	discount, hasDiscount := bundle.Properties[introDiscountIDKey]
	if !hasDays && !hasDiscount {
		return 0, "", false
	}

	if providers, restricted := bundle.Properties[introProvidersKey]; restricted {
		applies := false
		for _, p := range strings.Split(providers, ",") {
			if models.ProviderKind(strings.TrimSpace(p)) == kind {
				applies = true
				break
			}
		}
		if !applies {
			return 0, "", false
		}
	}

	if hasDays {
		trialDays, _ = strconv.Atoi(strings.TrimSpace(days))
	}
	return trialDays, discount, true
}

// Known currency markers checked against the raw label. The first match
// wins; unknown markers leave Currency empty.
var currencyMarkers = []struct {
	marker   string
	currency string
}{
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"USD", "USD"},
	{"EUR", "EUR"},
	{"GBP", "GBP"},
	{"RUB", "RUB"},
}

// ParsePrice extracts an amount and currency from a localized free-text
// price such as "$19.99" or "19,99 EUR". The heuristic strips everything
// but digits and separators; locales using comma decimal separators with
// thousands groups can be misread. This matches the documented limitation
// and is not a precision contract.
func ParsePrice(label string) (Price, error) {
	price := Price{Label: label}

	for _, m := range currencyMarkers {
		if strings.Contains(label, m.marker) {
			price.Currency = m.currency
			break
		}
	}

	var b strings.Builder
	for _, r := range label {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return price, fmt.Errorf("%w: no digits in %q", sdkerrors.ErrPriceUnresolved, label)
	}

	// Comma handling: with both separators present commas are thousands
	// groups; a lone comma is assumed to be a decimal separator.
	if strings.Contains(digits, ",") {
		if strings.Contains(digits, ".") {
			digits = strings.ReplaceAll(digits, ",", "")
		} else if strings.Count(digits, ",") == 1 {
			digits = strings.Replace(digits, ",", ".", 1)
		} else {
			digits = strings.ReplaceAll(digits, ",", "")
		}
	}

	amount, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return price, fmt.Errorf("%w: %q", sdkerrors.ErrPriceUnresolved, label)
	}

	price.Amount = amount
	return price, nil
}
