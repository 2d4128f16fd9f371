package models

import "time"

// Event types
const (
	EventTypeCheckoutInitiated     = "CHECKOUT_INITIATED"
	EventTypePaymentAuthorized     = "PAYMENT_AUTHORIZED"
	EventTypePaymentCompleted      = "PAYMENT_COMPLETED"
	EventTypeReconciliationAnomaly = "RECONCILIATION_ANOMALY"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutInitiatedEvent published when a remote transaction is created
type CheckoutInitiatedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	RemoteID string `json:"remote_id"`
	Gateway  string `json:"gateway"`
}

// PaymentAuthorizedEvent published when the return event creates a payment
type PaymentAuthorizedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	RemoteID  string `json:"remote_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

// PaymentCompletedEvent published when the notify event completes a payment
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	PaymentID  int64  `json:"payment_id"`
	RemoteID   string `json:"remote_id"`
	OrderState string `json:"order_state"`
}

// ReconciliationAnomalyEvent published for every logged anomaly
type ReconciliationAnomalyEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	RemoteID string `json:"remote_id,omitempty"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}
