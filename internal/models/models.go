package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderDataKlarnaID is the order data key holding the remote transaction id
const OrderDataKlarnaID = "klarna_id"

// Price is a decimal amount tagged with an ISO-4217 currency code
type Price struct {
	Number       decimal.Decimal `json:"number"`
	CurrencyCode string          `json:"currency_code"`
}

// NewPrice parses a decimal string into a price
func NewPrice(number, currency string) Price {
	return Price{Number: decimal.RequireFromString(number), CurrencyCode: currency}
}

// Equal reports whether both prices carry the same amount and currency
func (p Price) Equal(other Price) bool {
	return p.CurrencyCode == other.CurrencyCode && p.Number.Equal(other.Number)
}

// Order represents a commerce order taking part in checkout
type Order struct {
	ID               int64        `db:"id" json:"id"`
	State            string       `db:"state" json:"state"`
	Workflow         string       `db:"workflow" json:"workflow"`
	CheckoutStep     string       `db:"checkout_step" json:"checkout_step"`
	PaymentGateway   string       `db:"payment_gateway" json:"payment_gateway"`
	BillingProfileID *int64       `db:"billing_profile_id" json:"billing_profile_id,omitempty"`
	TotalPrice       *Price       `db:"-" json:"total_price,omitempty"`
	Data             OrderData    `db:"data" json:"data"`
	Items            []LineItem   `db:"-" json:"items"`
	Adjustments      []Adjustment `db:"-" json:"adjustments"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// KlarnaID returns the persisted remote transaction id, if any
func (o *Order) KlarnaID() string {
	return o.Data.Get(OrderDataKlarnaID)
}

// CollectAdjustments returns the order-level adjustments followed by the
// adjustments of each line item, in item order.
func (o *Order) CollectAdjustments() []Adjustment {
	adjustments := make([]Adjustment, 0, len(o.Adjustments))
	adjustments = append(adjustments, o.Adjustments...)
	for _, item := range o.Items {
		adjustments = append(adjustments, item.Adjustments...)
	}
	return adjustments
}

// LineItem represents a purchased item in an order
type LineItem struct {
	ID          int64        `db:"id" json:"id"`
	OrderID     int64        `db:"order_id" json:"order_id"`
	Title       string       `db:"title" json:"title"`
	Quantity    int          `db:"quantity" json:"quantity"`
	UnitPrice   Price        `db:"-" json:"unit_price"`
	Adjustments []Adjustment `db:"-" json:"adjustments"`
}

// TotalPrice returns unit price times quantity
func (li LineItem) TotalPrice() decimal.Decimal {
	return li.UnitPrice.Number.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// AdjustmentType identifies the kind of priced modification
type AdjustmentType string

// Adjustment types
const (
	AdjustmentTax       AdjustmentType = "tax"
	AdjustmentPromotion AdjustmentType = "promotion"
	AdjustmentShipping  AdjustmentType = "shipping"
	AdjustmentFee       AdjustmentType = "fee"
	AdjustmentCustom    AdjustmentType = "custom"
)

// Adjustment represents a tax, discount, fee or shipping modification
type Adjustment struct {
	Type       AdjustmentType      `json:"type"`
	Label      string              `json:"label"`
	Amount     decimal.Decimal     `json:"amount"`
	Percentage decimal.NullDecimal `json:"percentage"`
	SourceID   string              `json:"source_id,omitempty"`
	Weight     int                 `json:"weight"`
}

// Payment represents a local payment record for an order
type Payment struct {
	ID             int64           `db:"id" json:"id"`
	OrderID        int64           `db:"order_id" json:"order_id"`
	PaymentGateway string          `db:"payment_gateway" json:"payment_gateway"`
	Status         string          `db:"status" json:"status"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	CurrencyCode   string          `db:"currency_code" json:"currency_code"`
	RemoteID       string          `db:"remote_id" json:"remote_id"`
	RemoteState    string          `db:"remote_state" json:"remote_state"`
	Test           bool            `db:"test" json:"test"`
	AuthorizedAt   *time.Time      `db:"authorized_at" json:"authorized_at,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// AmountPrice returns the payment amount as a currency-tagged price
func (p *Payment) AmountPrice() Price {
	return Price{Number: p.Amount, CurrencyCode: p.CurrencyCode}
}

// Payment statuses
const (
	PaymentStatusAuthorization    = "authorization"
	PaymentStatusCompleted        = "completed"
	PaymentStatusCaptureCompleted = "capture_completed"
	PaymentStatusFailed           = "failed"
)

// OrderData is the opaque key-value store attached to an order
type OrderData map[string]string

// Get returns the value stored under key, or an empty string
func (d OrderData) Get(key string) string {
	if d == nil {
		return ""
	}
	return d[key]
}

// Value implements driver.Valuer
func (d OrderData) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner
func (d *OrderData) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = OrderData{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported order data type %T", src)
	}
	data := OrderData{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	*d = data
	return nil
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// AuditEntry is a recorded reconciliation event
type AuditEntry struct {
	ID         int64     `db:"id" json:"id"`
	EventID    string    `db:"event_id" json:"event_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	RemoteID   string    `db:"remote_id" json:"remote_id"`
	Detail     string    `db:"detail" json:"detail"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}
