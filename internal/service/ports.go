package service

import (
	"context"

	"klarna-checkout-service/internal/models"
)

// Provider is the payment provider API. Implementations never return a nil
// transaction together with a nil error.
type Provider interface {
	Create(ctx context.Context, payload *models.TransactionPayload) (*models.RemoteTransaction, error)
	Fetch(ctx context.Context, remoteID string) (*models.RemoteTransaction, error)
	Update(ctx context.Context, remoteID string, fields map[string]interface{}) error
}

// OrderRepository persists orders. GetOrderByID returns an error wrapping
// models.ErrOrderNotFound for unknown ids.
type OrderRepository interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	SetOrderData(ctx context.Context, orderID int64, key, value string) error
	UpdateCheckoutStep(ctx context.Context, orderID int64, step string) error
	UpdateOrderState(ctx context.Context, orderID int64, state string) error
}

// PaymentRepository persists payments
type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
}

// OrderLocker serializes read-modify-write cycles on a single order
type OrderLocker interface {
	LockOrder(ctx context.Context, orderID int64) (unlock func(), err error)
}

// EventPublisher publishes reconciliation events
type EventPublisher interface {
	PublishCheckoutInitiated(ctx context.Context, event *models.CheckoutInitiatedEvent) error
	PublishPaymentAuthorized(ctx context.Context, event *models.PaymentAuthorizedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishReconciliationAnomaly(ctx context.Context, event *models.ReconciliationAnomalyEvent) error
}
