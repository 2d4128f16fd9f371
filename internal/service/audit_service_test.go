package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuditStore struct {
	processed map[string]bool
	entries   []*models.AuditEntry
	err       error
}

func (f *fakeAuditStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeAuditStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	if f.processed == nil {
		f.processed = make(map[string]bool)
	}
	f.processed[eventID] = true
	return nil
}

func (f *fakeAuditStore) RecordAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestAuditRecordsEventOnce(t *testing.T) {
	store := &fakeAuditStore{}
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	audit := NewAuditService(store, util.FixedClock{At: at}, zap.NewNop())

	event := &models.PaymentCompletedEvent{
		BaseEvent:  models.BaseEvent{EventID: "evt-1", EventType: models.EventTypePaymentCompleted},
		OrderID:    42,
		PaymentID:  3,
		RemoteID:   "K1",
		OrderState: models.OrderStateCompleted,
	}

	require.NoError(t, audit.HandlePaymentCompleted(context.Background(), event))
	require.NoError(t, audit.HandlePaymentCompleted(context.Background(), event))

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "evt-1", entry.EventID)
	assert.Equal(t, models.EventTypePaymentCompleted, entry.EventType)
	assert.Equal(t, int64(42), entry.OrderID)
	assert.Equal(t, "K1", entry.RemoteID)
	assert.Equal(t, "payment 3 completed, order is completed", entry.Detail)
	assert.Equal(t, at, entry.RecordedAt)
}

func TestAuditAnomalyDetail(t *testing.T) {
	store := &fakeAuditStore{}
	audit := NewAuditService(store, util.SystemClock{}, zap.NewNop())

	err := audit.HandleReconciliationAnomaly(context.Background(), &models.ReconciliationAnomalyEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeReconciliationAnomaly},
		OrderID:   42,
		Kind:      string(models.AnomalyRemoteIDMismatch),
		Detail:    "confirmation sent with remote id K2, order has K1",
	})
	require.NoError(t, err)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "remote_id_mismatch: confirmation sent with remote id K2, order has K1", store.entries[0].Detail)
}

func TestAuditStoreFailureIsRetried(t *testing.T) {
	store := &fakeAuditStore{err: errors.New("connection reset")}
	audit := NewAuditService(store, util.SystemClock{}, zap.NewNop())

	event := &models.CheckoutInitiatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeCheckoutInitiated},
		OrderID:   42,
		RemoteID:  "K1",
		Gateway:   "klarna_checkout",
	}

	assert.Error(t, audit.HandleCheckoutInitiated(context.Background(), event))
	assert.False(t, store.processed["evt-3"])

	store.err = nil
	require.NoError(t, audit.HandleCheckoutInitiated(context.Background(), event))
	assert.Len(t, store.entries, 1)
	assert.True(t, store.processed["evt-3"])
}
