package store

import (
	"context"

	"klarna-checkout-service/internal/models"
)

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

// RecordAuditEntry appends an entry to the payment audit log. Replays of the
// same event id are ignored.
func (s *Store) RecordAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO payment_audit_log (event_id, event_type, order_id, remote_id, detail, recorded_at)
		VALUES (:event_id, :event_type, :order_id, :remote_id, :detail, :recorded_at)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := s.db.NamedExecContext(ctx, query, entry)
	return err
}

// GetAuditEntries lists the audit trail of an order, oldest first
func (s *Store) GetAuditEntries(ctx context.Context, orderID int64) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM payment_audit_log WHERE order_id = $1 ORDER BY recorded_at, id", orderID)
	return entries, err
}
