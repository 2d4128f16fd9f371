package checkout

import (
	"fmt"
	"strconv"

	"klarna-checkout-service/config"
	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/money"
)

// Builder turns orders into provider transaction payloads
type Builder struct {
	cfg  config.KlarnaConfig
	urls *URLBuilder
}

// NewBuilder creates a payload builder for the given gateway configuration
func NewBuilder(cfg config.KlarnaConfig, urls *URLBuilder) *Builder {
	return &Builder{cfg: cfg, urls: urls}
}

// Build assembles the create request for order. It fails with a
// ConfigurationError when the gateway cannot produce a payload at all and
// with a ValidationError when the order cannot be represented.
func (b *Builder) Build(order *models.Order) (*models.TransactionPayload, error) {
	if err := b.validateConfig(); err != nil {
		return nil, err
	}
	country, err := CountryFromLocale(b.cfg.Locale)
	if err != nil {
		return nil, err
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	items := ItemLines(order.Items)
	items = append(items, ConsolidateAdjustments(order.CollectAdjustments())...)

	payload := &models.TransactionPayload{
		PurchaseCountry:  country,
		PurchaseCurrency: order.TotalPrice.CurrencyCode,
		Locale:           b.cfg.Locale,
		MerchantReference: map[string]string{
			"orderid1": strconv.FormatInt(order.ID, 10),
		},
		Merchant: models.MerchantURLs{
			ID:              b.cfg.MerchantID,
			TermsURI:        b.urls.TermsURL(b.cfg.TermsPath),
			CheckoutURI:     b.urls.CancelURL(order.ID),
			ConfirmationURI: b.urls.ConfirmationURL(order.ID),
			PushURI:         b.urls.PushURL(order.ID),
			BackToStoreURI:  b.urls.CancelURL(order.ID),
		},
		Cart: models.Cart{Items: items},
	}

	expected := money.ToMinorUnits(order.TotalPrice.Number)
	if got := payload.TotalMinorUnits(); got != expected {
		return nil, &models.ValidationError{
			OrderID: order.ID,
			Reason:  fmt.Sprintf("cart total %d does not match order total %d", got, expected),
		}
	}

	return payload, nil
}

func (b *Builder) validateConfig() error {
	switch {
	case b.cfg.MerchantID == "":
		return &models.ConfigurationError{Field: "merchant_id", Reason: "missing merchant id"}
	case b.cfg.SharedSecret == "":
		return &models.ConfigurationError{Field: "shared_secret", Reason: "missing shared secret"}
	case b.cfg.TermsPath == "":
		return &models.ConfigurationError{Field: "terms_path", Reason: "missing terms path"}
	case b.urls == nil:
		return &models.ConfigurationError{Field: "public_base_url", Reason: "missing public base url"}
	}
	return nil
}

func validateOrder(order *models.Order) error {
	if order == nil {
		return &models.ValidationError{Reason: "no order"}
	}
	if order.BillingProfileID == nil {
		return &models.ValidationError{OrderID: order.ID, Reason: "order has no billing profile"}
	}
	if order.TotalPrice == nil || order.TotalPrice.CurrencyCode == "" {
		return &models.ValidationError{OrderID: order.ID, Reason: "order has no total price"}
	}
	if len(order.Items) == 0 {
		return &models.ValidationError{OrderID: order.ID, Reason: "order has no items"}
	}
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			return &models.ValidationError{OrderID: order.ID, Reason: fmt.Sprintf("item %q has non-positive quantity", item.Title)}
		}
		if item.UnitPrice.Number.IsNegative() {
			return &models.ValidationError{OrderID: order.ID, Reason: fmt.Sprintf("item %q has a negative unit price", item.Title)}
		}
		for _, adj := range item.Adjustments {
			if adj.Type != models.AdjustmentTax || !adj.Percentage.Valid {
				continue
			}
			if err := money.ValidateRate(adj.Percentage.Decimal); err != nil {
				return &models.ValidationError{OrderID: order.ID, Reason: fmt.Sprintf("item %q: %v", item.Title, err)}
			}
		}
	}
	return nil
}
