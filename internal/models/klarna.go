package models

// Remote transaction statuses reported by Klarna Checkout
const (
	RemoteStatusCheckoutIncomplete = "checkout_incomplete"
	RemoteStatusCheckoutComplete   = "checkout_complete"
	RemoteStatusCreated            = "created"
)

// Provider line item type tags
const (
	LineItemTypeDiscount    = "discount"
	LineItemTypeShippingFee = "shipping_fee"
)

// ProviderLineItem is a single cart row in the provider payload.
// UnitPrice is in minor units, TaxRate is the rate scaled by 10000.
type ProviderLineItem struct {
	Type      string `json:"type,omitempty"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	TaxRate   int64  `json:"tax_rate"`
}

// Cart wraps the payload line items
type Cart struct {
	Items []ProviderLineItem `json:"items"`
}

// MerchantURLs carries the merchant id and the callback URLs
type MerchantURLs struct {
	ID              string `json:"id"`
	TermsURI        string `json:"terms_uri"`
	CheckoutURI     string `json:"checkout_uri"`
	ConfirmationURI string `json:"confirmation_uri"`
	PushURI         string `json:"push_uri"`
	BackToStoreURI  string `json:"back_to_store_uri"`
}

// TransactionPayload is the create request sent to the provider
type TransactionPayload struct {
	PurchaseCountry   string            `json:"purchase_country"`
	PurchaseCurrency  string            `json:"purchase_currency"`
	Locale            string            `json:"locale"`
	MerchantReference map[string]string `json:"merchant_reference"`
	Merchant          MerchantURLs      `json:"merchant"`
	Cart              Cart              `json:"cart"`
}

// TotalMinorUnits sums unit price times quantity over all cart rows
func (p *TransactionPayload) TotalMinorUnits() int64 {
	var total int64
	for _, item := range p.Cart.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// GUI holds the embeddable checkout widget
type GUI struct {
	Layout  string `json:"layout,omitempty"`
	Snippet string `json:"snippet"`
}

// Address is the provider's billing address snapshot
type Address struct {
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	City          string `json:"city,omitempty"`
	Country       string `json:"country,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// RemoteTransaction is the provider-side representation of a checkout attempt
type RemoteTransaction struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	GUI               GUI               `json:"gui"`
	BillingAddress    *Address          `json:"billing_address,omitempty"`
	MerchantReference map[string]string `json:"merchant_reference,omitempty"`
	Cart              *Cart             `json:"cart,omitempty"`
}
