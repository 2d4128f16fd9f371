package store

import (
	"context"
	"fmt"

	"klarna-checkout-service/internal/models"
)

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, payment_gateway, status, amount, currency_code, remote_id, remote_state, test, authorized_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		payment.OrderID, payment.PaymentGateway, payment.Status, payment.Amount, payment.CurrencyCode,
		payment.RemoteID, payment.RemoteState, payment.Test, payment.AuthorizedAt, payment.CompletedAt,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentsByOrderID retrieves all payments of an order, oldest first
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return payments, err
}

// UpdatePayment writes the mutable payment fields
func (s *Store) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, remote_id = $2, remote_state = $3, authorized_at = $4, completed_at = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`

	err := s.db.GetContext(ctx, &payment.UpdatedAt, query,
		payment.Status, payment.RemoteID, payment.RemoteState, payment.AuthorizedAt, payment.CompletedAt, payment.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment %d: %w", payment.ID, err)
	}
	return nil
}
