package worker

import (
	"context"
	"encoding/json"
	"testing"

	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/service"
	"klarna-checkout-service/internal/util"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryAuditStore struct {
	processed map[string]bool
	entries   []*models.AuditEntry
}

func (m *memoryAuditStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return m.processed[eventID], nil
}

func (m *memoryAuditStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.processed[eventID] = true
	return nil
}

func (m *memoryAuditStore) RecordAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func TestAuditHandlerRecordsEveryEventType(t *testing.T) {
	store := &memoryAuditStore{processed: map[string]bool{}}
	handler := NewAuditHandler(service.NewAuditService(store, util.SystemClock{}, zap.NewNop()), zap.NewNop())

	events := []interface{}{
		&models.CheckoutInitiatedEvent{BaseEvent: models.BaseEvent{EventID: "1", EventType: models.EventTypeCheckoutInitiated}, OrderID: 42},
		&models.PaymentAuthorizedEvent{BaseEvent: models.BaseEvent{EventID: "2", EventType: models.EventTypePaymentAuthorized}, OrderID: 42},
		&models.PaymentCompletedEvent{BaseEvent: models.BaseEvent{EventID: "3", EventType: models.EventTypePaymentCompleted}, OrderID: 42},
		&models.ReconciliationAnomalyEvent{BaseEvent: models.BaseEvent{EventID: "4", EventType: models.EventTypeReconciliationAnomaly}, OrderID: 42},
		// redelivery
		&models.PaymentCompletedEvent{BaseEvent: models.BaseEvent{EventID: "3", EventType: models.EventTypePaymentCompleted}, OrderID: 42},
	}

	for _, event := range events {
		value, err := json.Marshal(event)
		require.NoError(t, err)
		require.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: value}))
	}

	require.Len(t, store.entries, 4)
	types := make([]string, 0, len(store.entries))
	for _, e := range store.entries {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{
		models.EventTypeCheckoutInitiated,
		models.EventTypePaymentAuthorized,
		models.EventTypePaymentCompleted,
		models.EventTypeReconciliationAnomaly,
	}, types)
}
