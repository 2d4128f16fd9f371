package service

import (
	"context"
	"fmt"

	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/util"

	"go.uber.org/zap"
)

// AuditStore persists the reconciliation audit trail
type AuditStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	RecordAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// AuditService records published reconciliation events, once per event id
type AuditService struct {
	store  AuditStore
	clock  util.Clock
	logger *zap.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore, clock util.Clock, logger *zap.Logger) *AuditService {
	return &AuditService{store: store, clock: clock, logger: logger}
}

// HandleCheckoutInitiated records a CheckoutInitiated event
func (s *AuditService) HandleCheckoutInitiated(ctx context.Context, event *models.CheckoutInitiatedEvent) error {
	return s.record(ctx, event.BaseEvent, event.OrderID, event.RemoteID,
		fmt.Sprintf("remote transaction created via %s", event.Gateway))
}

// HandlePaymentAuthorized records a PaymentAuthorized event
func (s *AuditService) HandlePaymentAuthorized(ctx context.Context, event *models.PaymentAuthorizedEvent) error {
	return s.record(ctx, event.BaseEvent, event.OrderID, event.RemoteID,
		fmt.Sprintf("payment %d authorized for %s %s", event.PaymentID, event.Amount, event.Currency))
}

// HandlePaymentCompleted records a PaymentCompleted event
func (s *AuditService) HandlePaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return s.record(ctx, event.BaseEvent, event.OrderID, event.RemoteID,
		fmt.Sprintf("payment %d completed, order is %s", event.PaymentID, event.OrderState))
}

// HandleReconciliationAnomaly records a ReconciliationAnomaly event
func (s *AuditService) HandleReconciliationAnomaly(ctx context.Context, event *models.ReconciliationAnomalyEvent) error {
	return s.record(ctx, event.BaseEvent, event.OrderID, event.RemoteID,
		fmt.Sprintf("%s: %s", event.Kind, event.Detail))
}

func (s *AuditService) record(ctx context.Context, base models.BaseEvent, orderID int64, remoteID, detail string) error {
	ctx, span := util.StartOrderSpan(ctx, "AuditService.record", orderID)
	defer span.End()

	processed, err := s.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed", zap.String("event_id", base.EventID))
		return nil
	}

	entry := &models.AuditEntry{
		EventID:    base.EventID,
		EventType:  base.EventType,
		OrderID:    orderID,
		RemoteID:   remoteID,
		Detail:     detail,
		RecordedAt: s.clock.Now(),
	}
	if err := s.store.RecordAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	util.AuditEventsRecordedTotal.WithLabelValues(base.EventType).Inc()

	if err := s.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		s.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	s.logger.Debug("Audit entry recorded",
		zap.String("event_id", base.EventID),
		zap.String("event_type", base.EventType),
		zap.Int64("order_id", orderID))
	return nil
}
