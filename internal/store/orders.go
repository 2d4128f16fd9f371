package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"klarna-checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	models.Order
	TotalNumber   decimal.NullDecimal `db:"total_number"`
	TotalCurrency sql.NullString      `db:"total_currency"`
}

type itemRow struct {
	ID                int64           `db:"id"`
	OrderID           int64           `db:"order_id"`
	Title             string          `db:"title"`
	Quantity          int             `db:"quantity"`
	UnitPriceNumber   decimal.Decimal `db:"unit_price_number"`
	UnitPriceCurrency string          `db:"unit_price_currency"`
}

type adjustmentRow struct {
	ID          int64               `db:"id"`
	OrderID     int64               `db:"order_id"`
	OrderItemID sql.NullInt64       `db:"order_item_id"`
	Position    int                 `db:"position"`
	Type        string              `db:"type"`
	Label       string              `db:"label"`
	Amount      decimal.Decimal     `db:"amount"`
	Percentage  decimal.NullDecimal `db:"percentage"`
	SourceID    string              `db:"source_id"`
	Weight      int                 `db:"weight"`
}

func (r adjustmentRow) adjustment() models.Adjustment {
	return models.Adjustment{
		Type:       models.AdjustmentType(r.Type),
		Label:      r.Label,
		Amount:     r.Amount,
		Percentage: r.Percentage,
		SourceID:   r.SourceID,
		Weight:     r.Weight,
	}
}

// CreateOrder inserts an order with its items and adjustments
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var total decimal.NullDecimal
	var currency sql.NullString
	if order.TotalPrice != nil {
		total = decimal.NullDecimal{Decimal: order.TotalPrice.Number, Valid: true}
		currency = sql.NullString{String: order.TotalPrice.CurrencyCode, Valid: true}
	}
	if order.Data == nil {
		order.Data = models.OrderData{}
	}

	query := `
		INSERT INTO orders (state, workflow, checkout_step, payment_gateway, billing_profile_id, total_number, total_currency, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.State, order.Workflow, order.CheckoutStep, order.PaymentGateway,
		order.BillingProfileID, total, currency, order.Data,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err := insertAdjustments(ctx, tx, order.ID, nil, order.Adjustments); err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.GetContext(ctx, &item.ID, `
			INSERT INTO order_items (order_id, title, quantity, unit_price_number, unit_price_currency)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			order.ID, item.Title, item.Quantity, item.UnitPrice.Number, item.UnitPrice.CurrencyCode)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
		if err := insertAdjustments(ctx, tx, order.ID, &item.ID, item.Adjustments); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertAdjustments(ctx context.Context, tx *sqlx.Tx, orderID int64, itemID *int64, adjustments []models.Adjustment) error {
	for i, adj := range adjustments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO adjustments (order_id, order_item_id, position, type, label, amount, percentage, source_id, weight)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			orderID, itemID, i, string(adj.Type), adj.Label, adj.Amount, adj.Percentage, adj.SourceID, adj.Weight)
		if err != nil {
			return fmt.Errorf("failed to insert adjustment: %w", err)
		}
	}
	return nil
}

// GetOrderByID retrieves an order with its items and adjustments
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}

	order := row.Order
	if row.TotalNumber.Valid {
		order.TotalPrice = &models.Price{Number: row.TotalNumber.Decimal, CurrencyCode: row.TotalCurrency.String}
	}

	var items []itemRow
	if err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", id); err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}

	var adjustments []adjustmentRow
	if err := s.db.SelectContext(ctx, &adjustments,
		"SELECT * FROM adjustments WHERE order_id = $1 ORDER BY position, id", id); err != nil {
		return nil, fmt.Errorf("failed to get adjustments: %w", err)
	}

	byItem := make(map[int64][]models.Adjustment)
	for _, adj := range adjustments {
		if !adj.OrderItemID.Valid {
			order.Adjustments = append(order.Adjustments, adj.adjustment())
			continue
		}
		byItem[adj.OrderItemID.Int64] = append(byItem[adj.OrderItemID.Int64], adj.adjustment())
	}

	order.Items = make([]models.LineItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, models.LineItem{
			ID:          item.ID,
			OrderID:     item.OrderID,
			Title:       item.Title,
			Quantity:    item.Quantity,
			UnitPrice:   models.Price{Number: item.UnitPriceNumber, CurrencyCode: item.UnitPriceCurrency},
			Adjustments: byItem[item.ID],
		})
	}

	return &order, nil
}

// SetOrderData stores value under key in the order's data
func (s *Store) SetOrderData(ctx context.Context, orderID int64, key, value string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET data = data || jsonb_build_object($1::text, $2::text), updated_at = NOW() WHERE id = $3",
		key, value, orderID)
	return expectOrderRow(res, err, orderID)
}

// UpdateCheckoutStep updates the order's checkout step
func (s *Store) UpdateCheckoutStep(ctx context.Context, orderID int64, step string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET checkout_step = $1, updated_at = NOW() WHERE id = $2",
		step, orderID)
	return expectOrderRow(res, err, orderID)
}

// UpdateOrderState updates the order's workflow state
func (s *Store) UpdateOrderState(ctx context.Context, orderID int64, state string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET state = $1, updated_at = NOW() WHERE id = $2",
		state, orderID)
	return expectOrderRow(res, err, orderID)
}

func expectOrderRow(res sql.Result, err error, orderID int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderNotFound)
	}
	return nil
}
