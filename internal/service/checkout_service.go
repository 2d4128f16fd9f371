package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"klarna-checkout-service/config"
	"klarna-checkout-service/internal/checkout"
	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutErrorMessage is shown to the buyer when the checkout cannot be started
const CheckoutErrorMessage = "An unknown error occurred while contacting the payment provider. Please try again later."

// CheckoutService is the Klarna hosted checkout gateway
type CheckoutService struct {
	builder    *checkout.Builder
	urls       *checkout.URLBuilder
	orders     OrderRepository
	provider   Provider
	locker     OrderLocker
	publisher  EventPublisher
	reconciler *Reconciler
	snippets   *SnippetSigner
	clock      util.Clock
	logger     *zap.Logger
}

// NewCheckoutService creates the Klarna checkout gateway
func NewCheckoutService(
	builder *checkout.Builder,
	urls *checkout.URLBuilder,
	orders OrderRepository,
	provider Provider,
	locker OrderLocker,
	publisher EventPublisher,
	reconciler *Reconciler,
	snippets *SnippetSigner,
	clock util.Clock,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		builder:    builder,
		urls:       urls,
		orders:     orders,
		provider:   provider,
		locker:     locker,
		publisher:  publisher,
		reconciler: reconciler,
		snippets:   snippets,
		clock:      clock,
		logger:     logger,
	}
}

// Kind implements PaymentGateway
func (s *CheckoutService) Kind() GatewayKind {
	return GatewayKlarnaCheckout
}

// BuildPayload loads the order and builds its create request without
// contacting the provider.
func (s *CheckoutService) BuildPayload(ctx context.Context, orderID int64) (*models.TransactionPayload, error) {
	ctx, span := util.StartOrderSpan(ctx, "CheckoutService.BuildPayload", orderID)
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.builder.Build(order)
}

// Initiate creates the remote transaction for an order, remembers its id and
// returns the form that carries the checkout snippet to the payment page.
func (s *CheckoutService) Initiate(ctx context.Context, orderID int64) (*RedirectForm, error) {
	ctx, span := util.StartOrderSpan(ctx, "CheckoutService.Initiate", orderID)
	defer span.End()

	unlock, err := s.locker.LockOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	defer unlock()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentGateway != string(s.Kind()) {
		util.CheckoutFailuresTotal.WithLabelValues("gateway").Inc()
		return nil, &models.ValidationError{
			OrderID: order.ID,
			Reason:  fmt.Sprintf("order uses payment gateway %q", order.PaymentGateway),
		}
	}

	payload, err := s.builder.Build(order)
	if err != nil {
		util.CheckoutFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Error("Failed to build Klarna payload",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return nil, err
	}

	tx, err := s.provider.Create(ctx, payload)
	if err != nil {
		util.CheckoutFailuresTotal.WithLabelValues("provider").Inc()
		fields := []zap.Field{zap.Int64("order_id", order.ID), zap.Error(err)}
		var perr *models.ProviderError
		if errors.As(err, &perr) {
			fields = append(fields, zap.ByteString("payload", perr.Payload))
		}
		s.logger.Error("Failed to create Klarna order", fields...)
		return nil, err
	}

	if err := s.orders.SetOrderData(ctx, order.ID, models.OrderDataKlarnaID, tx.ID); err != nil {
		return nil, fmt.Errorf("failed to store klarna id: %w", err)
	}

	util.CheckoutsInitiatedTotal.Inc()
	s.logger.Info("Klarna checkout initiated",
		zap.Int64("order_id", order.ID),
		zap.String("klarna_id", tx.ID),
		zap.String("status", tx.Status))

	event := &models.CheckoutInitiatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCheckoutInitiated,
			Timestamp: s.clock.Now(),
		},
		OrderID:  order.ID,
		RemoteID: tx.ID,
		Gateway:  string(s.Kind()),
	}
	if err := s.publisher.PublishCheckoutInitiated(ctx, event); err != nil {
		s.logger.Error("Failed to publish CheckoutInitiated event", zap.Error(err))
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(tx.GUI.Snippet))
	return &RedirectForm{
		Action: s.urls.SnippetURL(order.ID),
		Method: http.MethodPost,
		Data: map[string]string{
			SnippetField:          encoded,
			SnippetSignatureField: s.snippets.Sign(order.ID, encoded),
		},
	}, nil
}

// OnReturn implements PaymentGateway
func (s *CheckoutService) OnReturn(ctx context.Context, orderID int64, req ReturnRequest) (*ReturnResult, error) {
	return s.reconciler.OnReturn(ctx, orderID, req)
}

// OnCancel moves the checkout back to review when the buyer leaves the
// provider page.
func (s *CheckoutService) OnCancel(ctx context.Context, orderID int64) (string, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.CheckoutStep == models.CheckoutStepComplete {
		return order.CheckoutStep, nil
	}
	step := models.PreviousCheckoutStep(models.CheckoutStepPayment)
	if err := s.orders.UpdateCheckoutStep(ctx, orderID, step); err != nil {
		return "", fmt.Errorf("failed to update checkout step: %w", err)
	}
	s.logger.Info("Klarna checkout canceled by buyer", zap.Int64("order_id", orderID))
	return step, nil
}

// OnNotify implements PaymentGateway
func (s *CheckoutService) OnNotify(ctx context.Context, req NotifyRequest) (*NotifyResult, error) {
	return s.reconciler.OnNotify(ctx, req)
}

// State implements PaymentGateway
func (s *CheckoutService) State(ctx context.Context, orderID int64) (ReconciliationState, error) {
	return s.reconciler.State(ctx, orderID)
}

func failureReason(err error) string {
	var cerr *models.ConfigurationError
	var verr *models.ValidationError
	switch {
	case errors.As(err, &cerr):
		return "configuration"
	case errors.As(err, &verr):
		return "validation"
	default:
		return "unknown"
	}
}

// NewKlarnaCheckout assembles the Klarna gateway and its reconciler
func NewKlarnaCheckout(
	cfg config.KlarnaConfig,
	publicBaseURL string,
	orders OrderRepository,
	payments PaymentRepository,
	provider Provider,
	locker OrderLocker,
	publisher EventPublisher,
	clock util.Clock,
	logger *zap.Logger,
) (*CheckoutService, error) {
	urls, err := checkout.NewURLBuilder(publicBaseURL)
	if err != nil {
		return nil, err
	}
	reconciler := NewReconciler(string(GatewayKlarnaCheckout), cfg.IsTest(), orders, payments, provider, locker, publisher, clock, logger)
	snippets := NewSnippetSigner(cfg.SharedSecret)
	return NewCheckoutService(checkout.NewBuilder(cfg, urls), urls, orders, provider, locker, publisher, reconciler, snippets, clock, logger), nil
}
