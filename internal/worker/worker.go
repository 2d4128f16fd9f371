package worker

import (
	"context"

	"klarna-checkout-service/internal/broker"
	"klarna-checkout-service/internal/service"

	"go.uber.org/zap"
)

// AuditWorker consumes payment events and writes them to the audit log
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, audit *service.AuditService, logger *zap.Logger) *AuditWorker {
	return &AuditWorker{
		consumer:     consumer,
		eventHandler: NewAuditHandler(audit, logger),
		logger:       logger,
	}
}

// NewAuditHandler routes every payment event type to the audit service
func NewAuditHandler(audit *service.AuditService, logger *zap.Logger) *broker.EventHandler {
	eventHandler := broker.NewEventHandler(logger)

	eventHandler.OnCheckoutInitiated(audit.HandleCheckoutInitiated)
	eventHandler.OnPaymentAuthorized(audit.HandlePaymentAuthorized)
	eventHandler.OnPaymentCompleted(audit.HandlePaymentCompleted)
	eventHandler.OnReconciliationAnomaly(audit.HandleReconciliationAnomaly)

	return eventHandler
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	w.logger.Info("Stopping audit worker")
	return w.consumer.Close()
}
