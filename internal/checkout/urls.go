package checkout

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"klarna-checkout-service/internal/models"
)

// GatewayID is the gateway discriminator carried by every callback URL
const GatewayID = "klarna_checkout"

// RemoteIDPlaceholder is resolved by the provider when it calls back
const RemoteIDPlaceholder = "{checkout.order.id}"

// RemoteIDParam is the query parameter carrying the remote transaction id
const RemoteIDParam = "klarna_order_id"

// OrderParam is the query parameter carrying the local order id on notify
const OrderParam = "commerce_order"

// URLBuilder produces absolute merchant callback URLs
type URLBuilder struct {
	base *url.URL
}

// NewURLBuilder validates baseURL and returns a builder rooted at it
func NewURLBuilder(baseURL string) (*URLBuilder, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, &models.ConfigurationError{Field: "public_base_url", Reason: fmt.Sprintf("%q is not an absolute URL", baseURL)}
	}
	return &URLBuilder{base: u}, nil
}

func (b *URLBuilder) build(path string, query url.Values) string {
	u := *b.base
	u.Path = b.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// CancelURL is where the buyer lands when leaving the provider page
func (b *URLBuilder) CancelURL(orderID int64) string {
	return b.build(fmt.Sprintf("/checkout/%d/%s/cancel", orderID, models.CheckoutStepPayment), url.Values{
		"commerce_payment_gateway": {GatewayID},
	})
}

// ConfirmationURL is the return target; the provider fills in the remote id
func (b *URLBuilder) ConfirmationURL(orderID int64) string {
	return b.build(fmt.Sprintf("/checkout/%d/%s/return", orderID, models.CheckoutStepPayment), url.Values{
		"commerce_payment_gateway": {GatewayID},
	}) + "&" + RemoteIDParam + "=" + RemoteIDPlaceholder
}

// PushURL is the notify target; the provider fills in the remote id
func (b *URLBuilder) PushURL(orderID int64) string {
	return b.build("/payment/notify/"+GatewayID, url.Values{
		OrderParam: {strconv.FormatInt(orderID, 10)},
		"step":     {models.CheckoutStepComplete},
	}) + "&" + RemoteIDParam + "=" + RemoteIDPlaceholder
}

// SnippetURL is where the redirect form posts the encoded snippet
func (b *URLBuilder) SnippetURL(orderID int64) string {
	return b.build(fmt.Sprintf("/checkout/%d/%s/klarna/snippet", orderID, models.CheckoutStepPayment), nil)
}

// StepURL is the local checkout page for step
func (b *URLBuilder) StepURL(orderID int64, step string) string {
	return b.build(fmt.Sprintf("/checkout/%d/%s", orderID, step), nil)
}

// TermsURL resolves the configured terms path against the base URL
func (b *URLBuilder) TermsURL(termsPath string) string {
	if !strings.HasPrefix(termsPath, "/") {
		termsPath = "/" + termsPath
	}
	return b.build(termsPath, nil)
}
