package service

import (
	"context"
	"errors"
	"fmt"

	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentFailedMessage is shown to the buyer when the return event cannot be
// confirmed with the provider.
const PaymentFailedMessage = "Payment failed at the payment server. Please review your information and try again."

// ReconciliationState is the derived payment state of an order
type ReconciliationState string

// Reconciliation states
const (
	StatePending              ReconciliationState = "pending"
	StateAwaitingConfirmation ReconciliationState = "awaiting_confirmation"
	StateAuthorized           ReconciliationState = "authorized"
	StateCompleted            ReconciliationState = "completed"
	StateFailed               ReconciliationState = "failed"
)

// forward transitions tried, in order, when the provider confirms checkout
var completionTransitions = []string{"validate", "place"}

// ReturnRequest carries the query of the buyer's redirect back from the provider
type ReturnRequest struct {
	RemoteID string
}

// ReturnResult tells the caller where to send the buyer
type ReturnResult struct {
	Step    string
	Message string
	Payment *models.Payment
}

// NotifyRequest carries the query of the provider's push callback
type NotifyRequest struct {
	OrderID  int64
	RemoteID string
}

// NotifyOutcome classifies how a notify event was handled
type NotifyOutcome string

// Notify outcomes
const (
	NotifyProcessed     NotifyOutcome = "processed"
	NotifyAcknowledged  NotifyOutcome = "already_acknowledged"
	NotifyIgnored       NotifyOutcome = "ignored"
	NotifyOrderNotFound NotifyOutcome = "order_not_found"
)

// NotifyResult reports the outcome of a notify event
type NotifyResult struct {
	Outcome NotifyOutcome
	State   ReconciliationState
}

// Reconciler drives order and payment state from return and notify events
type Reconciler struct {
	gatewayID string
	testMode  bool
	orders    OrderRepository
	payments  PaymentRepository
	provider  Provider
	locker    OrderLocker
	publisher EventPublisher
	clock     util.Clock
	logger    *zap.Logger
}

// NewReconciler creates a reconciler for the gateway with id gatewayID
func NewReconciler(
	gatewayID string,
	testMode bool,
	orders OrderRepository,
	payments PaymentRepository,
	provider Provider,
	locker OrderLocker,
	publisher EventPublisher,
	clock util.Clock,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		gatewayID: gatewayID,
		testMode:  testMode,
		orders:    orders,
		payments:  payments,
		provider:  provider,
		locker:    locker,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// OnReturn handles the buyer's redirect back from the provider. A remote id
// that differs from the persisted one is logged and otherwise ignored. When
// the provider cannot confirm the transaction the checkout step moves back
// and no payment is created.
func (r *Reconciler) OnReturn(ctx context.Context, orderID int64, req ReturnRequest) (*ReturnResult, error) {
	ctx, span := util.StartOrderSpan(ctx, "Reconciler.OnReturn", orderID)
	defer span.End()

	unlock, err := r.locker.LockOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}
	defer unlock()

	order, err := r.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.TotalPrice == nil {
		return nil, &models.ValidationError{OrderID: order.ID, Reason: "order has no total price"}
	}

	persisted := order.KlarnaID()
	remoteID := req.RemoteID
	switch {
	case remoteID == "":
		r.anomaly(ctx, &models.Anomaly{
			Kind:     models.AnomalyMissingRemoteID,
			OrderID:  order.ID,
			RemoteID: persisted,
			Detail:   "return request carried no remote id, using the persisted one",
		})
		remoteID = persisted
	case remoteID != persisted:
		r.anomaly(ctx, &models.Anomaly{
			Kind:     models.AnomalyRemoteIDMismatch,
			OrderID:  order.ID,
			RemoteID: remoteID,
			Detail:   fmt.Sprintf("confirmation sent with remote id %s, order has %s", remoteID, persisted),
		})
	}

	tx, err := r.fetch(ctx, remoteID)
	if err != nil {
		r.logProviderError(order.ID, remoteID, err)
		step := models.PreviousCheckoutStep(order.CheckoutStep)
		if err := r.orders.UpdateCheckoutStep(ctx, order.ID, step); err != nil {
			return nil, fmt.Errorf("failed to update checkout step: %w", err)
		}
		util.ReturnEventsTotal.WithLabelValues("provider_error").Inc()
		return &ReturnResult{Step: step, Message: PaymentFailedMessage}, nil
	}

	payment, created, err := r.authorize(ctx, order, remoteID, tx)
	if err != nil {
		return nil, err
	}

	step := models.NextCheckoutStep(order.CheckoutStep)
	if err := r.orders.UpdateCheckoutStep(ctx, order.ID, step); err != nil {
		return nil, fmt.Errorf("failed to update checkout step: %w", err)
	}

	if !created {
		util.ReturnEventsTotal.WithLabelValues("duplicate").Inc()
		return &ReturnResult{Step: step, Payment: payment}, nil
	}

	util.ReturnEventsTotal.WithLabelValues("authorized").Inc()
	util.PaymentsAuthorizedTotal.Inc()
	r.logger.Info("Payment authorized",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("klarna_id", remoteID))

	event := &models.PaymentAuthorizedEvent{
		BaseEvent: r.baseEvent(models.EventTypePaymentAuthorized),
		OrderID:   order.ID,
		PaymentID: payment.ID,
		RemoteID:  remoteID,
		Amount:    payment.Amount.String(),
		Currency:  payment.CurrencyCode,
	}
	if err := r.publisher.PublishPaymentAuthorized(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentAuthorized event", zap.Error(err))
	}

	return &ReturnResult{Step: step, Payment: payment}, nil
}

// authorize creates the authorization payment of the order, reusing the one
// a previous return already created. A reused payment recorded under another
// remote id is moved to remoteID.
func (r *Reconciler) authorize(ctx context.Context, order *models.Order, remoteID string, tx *models.RemoteTransaction) (*models.Payment, bool, error) {
	payments, err := r.payments.GetPaymentsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load payments: %w", err)
	}
	for _, p := range r.matchingPayments(order, payments) {
		if p.Status == models.PaymentStatusFailed {
			continue
		}
		if p.RemoteID != remoteID {
			r.anomaly(ctx, &models.Anomaly{
				Kind:     models.AnomalyRemoteIDMismatch,
				OrderID:  order.ID,
				RemoteID: remoteID,
				Detail:   fmt.Sprintf("payment %d was authorized with remote id %s", p.ID, p.RemoteID),
			})
			p.RemoteID = remoteID
			p.RemoteState = tx.Status
			if err := r.payments.UpdatePayment(ctx, p); err != nil {
				return nil, false, fmt.Errorf("failed to update payment: %w", err)
			}
		}
		r.logger.Info("Return already processed",
			zap.Int64("order_id", order.ID),
			zap.Int64("payment_id", p.ID),
			zap.String("status", p.Status))
		return p, false, nil
	}

	now := r.clock.Now()
	payment := &models.Payment{
		OrderID:        order.ID,
		PaymentGateway: r.gatewayID,
		Status:         models.PaymentStatusAuthorization,
		Amount:         order.TotalPrice.Number,
		CurrencyCode:   order.TotalPrice.CurrencyCode,
		RemoteID:       remoteID,
		RemoteState:    tx.Status,
		Test:           r.testMode,
		AuthorizedAt:   &now,
	}
	if err := r.payments.CreatePayment(ctx, payment); err != nil {
		return nil, false, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, true, nil
}

// OnNotify handles the provider's server-to-server callback. Only an
// unknown order is reported back through the outcome; every other anomaly
// or provider failure is logged and leaves local state untouched.
func (r *Reconciler) OnNotify(ctx context.Context, req NotifyRequest) (*NotifyResult, error) {
	ctx, span := util.StartOrderSpan(ctx, "Reconciler.OnNotify", req.OrderID)
	defer span.End()

	unlock, err := r.locker.LockOrder(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock order %d: %w", req.OrderID, err)
	}
	defer unlock()

	order, err := r.orders.GetOrderByID(ctx, req.OrderID)
	if errors.Is(err, models.ErrOrderNotFound) {
		r.anomaly(ctx, &models.Anomaly{
			Kind:     models.AnomalyOrderNotFound,
			OrderID:  req.OrderID,
			RemoteID: req.RemoteID,
			Detail:   "notify callback called for an unknown order",
		})
		return r.notifyResult(NotifyOrderNotFound, ""), nil
	}
	if err != nil {
		return nil, err
	}

	persisted := order.KlarnaID()
	if persisted == "" {
		r.anomaly(ctx, &models.Anomaly{
			Kind:     models.AnomalyMissingRemoteID,
			OrderID:  order.ID,
			RemoteID: req.RemoteID,
			Detail:   "order has no persisted remote id",
		})
		return r.notifyResult(NotifyIgnored, StatePending), nil
	}
	if req.RemoteID != "" && req.RemoteID != persisted {
		r.anomaly(ctx, &models.Anomaly{
			Kind:     models.AnomalyRemoteIDMismatch,
			OrderID:  order.ID,
			RemoteID: req.RemoteID,
			Detail:   fmt.Sprintf("push sent with remote id %s, order has %s", req.RemoteID, persisted),
		})
	}

	tx, err := r.fetch(ctx, persisted)
	if err != nil {
		r.logProviderError(order.ID, persisted, err)
		return r.notifyResult(NotifyIgnored, ""), nil
	}

	switch tx.Status {
	case models.RemoteStatusCheckoutComplete:
		return r.complete(ctx, order, tx)
	case models.RemoteStatusCreated:
		r.logger.Info("Klarna order already acknowledged",
			zap.Int64("order_id", order.ID),
			zap.String("klarna_id", tx.ID))
		return r.notifyResult(NotifyAcknowledged, ""), nil
	default:
		r.anomaly(ctx, &models.Anomaly{
			Kind:     models.AnomalyUnexpectedStatus,
			OrderID:  order.ID,
			RemoteID: tx.ID,
			Detail:   fmt.Sprintf("invalid order status (%s) received from Klarna", tx.Status),
		})
		return r.notifyResult(NotifyIgnored, ""), nil
	}
}

func (r *Reconciler) complete(ctx context.Context, order *models.Order, tx *models.RemoteTransaction) (*NotifyResult, error) {
	payments, err := r.payments.GetPaymentsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	payment, anomaly := r.authoritativePayment(order, payments)
	if anomaly != nil {
		anomaly.RemoteID = tx.ID
		r.anomaly(ctx, anomaly)
		return r.notifyResult(NotifyIgnored, ""), nil
	}

	// the order moves exactly once, together with the payment's completion
	changed := false
	state := order.State
	if payment.Status != models.PaymentStatusCompleted && payment.Status != models.PaymentStatusCaptureCompleted {
		now := r.clock.Now()
		payment.Status = models.PaymentStatusCompleted
		payment.RemoteState = tx.Status
		payment.CompletedAt = &now
		if err := r.payments.UpdatePayment(ctx, payment); err != nil {
			return nil, fmt.Errorf("failed to update payment: %w", err)
		}
		changed = true

		if t, ok := r.completionTransition(order); ok {
			if err := r.orders.UpdateOrderState(ctx, order.ID, t.To); err != nil {
				return nil, fmt.Errorf("failed to apply %s transition: %w", t.ID, err)
			}
			r.logger.Info("Order transitioned",
				zap.Int64("order_id", order.ID),
				zap.String("transition", t.ID),
				zap.String("from", order.State),
				zap.String("to", t.To))
			state = t.To
		}
	}

	// a previous delivery may have failed before acknowledging
	if err := r.provider.Update(ctx, tx.ID, map[string]interface{}{"status": models.RemoteStatusCreated}); err != nil {
		r.logProviderError(order.ID, tx.ID, err)
	}

	if !changed {
		r.logger.Info("Notify already applied",
			zap.Int64("order_id", order.ID),
			zap.Int64("payment_id", payment.ID))
		return r.notifyResult(NotifyAcknowledged, StateCompleted), nil
	}

	util.PaymentsCompletedTotal.Inc()
	event := &models.PaymentCompletedEvent{
		BaseEvent:  r.baseEvent(models.EventTypePaymentCompleted),
		OrderID:    order.ID,
		PaymentID:  payment.ID,
		RemoteID:   tx.ID,
		OrderState: state,
	}
	if err := r.publisher.PublishPaymentCompleted(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}

	return r.notifyResult(NotifyProcessed, StateCompleted), nil
}

func (r *Reconciler) completionTransition(order *models.Order) (models.Transition, bool) {
	workflow, ok := models.Workflows[order.Workflow]
	if !ok {
		r.logger.Warn("Unknown order workflow",
			zap.Int64("order_id", order.ID),
			zap.String("workflow", order.Workflow))
		return models.Transition{}, false
	}
	for _, id := range completionTransitions {
		if t, ok := workflow.AllowedTransition(id, order.State); ok {
			return t, true
		}
	}
	return models.Transition{}, false
}

// authoritativePayment selects the single non-failed payment of this gateway
// whose amount equals the order total.
func (r *Reconciler) authoritativePayment(order *models.Order, payments []models.Payment) (*models.Payment, *models.Anomaly) {
	matches := r.matchingPayments(order, payments)

	var candidates []*models.Payment
	for _, p := range matches {
		if p.Status != models.PaymentStatusFailed {
			candidates = append(candidates, p)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, &models.Anomaly{
			Kind:    models.AnomalyPaymentNotFound,
			OrderID: order.ID,
			Detail:  "no payment matches the gateway and order total",
		}
	case 1:
		return candidates[0], nil
	default:
		return nil, &models.Anomaly{
			Kind:    models.AnomalyPaymentAmbiguous,
			OrderID: order.ID,
			Detail:  fmt.Sprintf("%d payments match the gateway and order total", len(candidates)),
		}
	}
}

func (r *Reconciler) matchingPayments(order *models.Order, payments []models.Payment) []*models.Payment {
	if order.TotalPrice == nil {
		return nil
	}
	var matches []*models.Payment
	for i := range payments {
		p := &payments[i]
		if p.PaymentGateway == r.gatewayID && p.AmountPrice().Equal(*order.TotalPrice) {
			matches = append(matches, p)
		}
	}
	return matches
}

// State derives the reconciliation state of an order
func (r *Reconciler) State(ctx context.Context, orderID int64) (ReconciliationState, error) {
	order, err := r.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	payments, err := r.payments.GetPaymentsByOrderID(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to load payments: %w", err)
	}
	return r.deriveState(order, payments), nil
}

func (r *Reconciler) deriveState(order *models.Order, payments []models.Payment) ReconciliationState {
	matches := r.matchingPayments(order, payments)
	if len(matches) == 0 {
		if order.KlarnaID() == "" {
			return StatePending
		}
		return StateAwaitingConfirmation
	}

	state := StateFailed
	for _, p := range matches {
		switch p.Status {
		case models.PaymentStatusCompleted, models.PaymentStatusCaptureCompleted:
			return StateCompleted
		case models.PaymentStatusAuthorization:
			state = StateAuthorized
		}
	}
	return state
}

func (r *Reconciler) fetch(ctx context.Context, remoteID string) (*models.RemoteTransaction, error) {
	if remoteID == "" {
		return nil, &models.ProviderError{Op: "fetch", Message: "no remote id to fetch"}
	}
	tx, err := r.provider.Fetch(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, &models.ProviderError{Op: "fetch", Message: "no order details returned"}
	}
	return tx, nil
}

func (r *Reconciler) logProviderError(orderID int64, remoteID string, err error) {
	fields := []zap.Field{
		zap.Int64("order_id", orderID),
		zap.String("klarna_id", remoteID),
		zap.Error(err),
	}
	var perr *models.ProviderError
	if errors.As(err, &perr) {
		fields = append(fields, zap.String("message", perr.Message), zap.ByteString("payload", perr.Payload))
	}
	r.logger.Error("Klarna request failed during reconciliation", fields...)
}

func (r *Reconciler) anomaly(ctx context.Context, a *models.Anomaly) {
	util.ReconciliationAnomaliesTotal.WithLabelValues(string(a.Kind)).Inc()

	fields := []zap.Field{
		zap.String("kind", string(a.Kind)),
		zap.Int64("order_id", a.OrderID),
		zap.String("klarna_id", a.RemoteID),
		zap.String("detail", a.Detail),
	}
	switch a.Kind {
	case models.AnomalyUnexpectedStatus, models.AnomalyPaymentAmbiguous, models.AnomalyPaymentNotFound:
		r.logger.Error("Reconciliation anomaly", fields...)
	default:
		r.logger.Warn("Reconciliation anomaly", fields...)
	}

	event := &models.ReconciliationAnomalyEvent{
		BaseEvent: r.baseEvent(models.EventTypeReconciliationAnomaly),
		OrderID:   a.OrderID,
		RemoteID:  a.RemoteID,
		Kind:      string(a.Kind),
		Detail:    a.Detail,
	}
	if err := r.publisher.PublishReconciliationAnomaly(ctx, event); err != nil {
		r.logger.Error("Failed to publish ReconciliationAnomaly event", zap.Error(err))
	}
}

func (r *Reconciler) notifyResult(outcome NotifyOutcome, state ReconciliationState) *NotifyResult {
	util.NotifyEventsTotal.WithLabelValues(string(outcome)).Inc()
	return &NotifyResult{Outcome: outcome, State: state}
}

func (r *Reconciler) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: r.clock.Now(),
	}
}
