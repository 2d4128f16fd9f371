package service

import (
	"context"
	"fmt"
	"sync"

	"klarna-checkout-service/internal/models"
)

type fakeOrders struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
}

func newFakeOrders(orders ...*models.Order) *fakeOrders {
	f := &fakeOrders{orders: make(map[int64]*models.Order)}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrOrderNotFound)
	}
	cp := *o
	cp.Data = models.OrderData{}
	for k, v := range o.Data {
		cp.Data[k] = v
	}
	return &cp, nil
}

func (f *fakeOrders) SetOrderData(ctx context.Context, orderID int64, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[orderID]
	if o.Data == nil {
		o.Data = models.OrderData{}
	}
	o.Data[key] = value
	return nil
}

func (f *fakeOrders) UpdateCheckoutStep(ctx context.Context, orderID int64, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID].CheckoutStep = step
	return nil
}

func (f *fakeOrders) UpdateOrderState(ctx context.Context, orderID int64, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[orderID].State = state
	return nil
}

func (f *fakeOrders) get(id int64) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.orders[id]
	return &cp
}

type fakePayments struct {
	mu       sync.Mutex
	nextID   int64
	payments []models.Payment
	updates  int
}

func (f *fakePayments) CreatePayment(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	payment.ID = f.nextID
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakePayments) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Payment
	for _, p := range f.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePayments) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.payments {
		if f.payments[i].ID == payment.ID {
			f.payments[i] = *payment
			f.updates++
			return nil
		}
	}
	return fmt.Errorf("payment %d not found", payment.ID)
}

func (f *fakePayments) all() []models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Payment(nil), f.payments...)
}

type fakeProvider struct {
	mu        sync.Mutex
	txs       map[string]*models.RemoteTransaction
	created   []*models.TransactionPayload
	createErr error
	fetchErr  error
	updateErr error
	updates   []string
}

func newFakeProvider(txs ...*models.RemoteTransaction) *fakeProvider {
	f := &fakeProvider{txs: make(map[string]*models.RemoteTransaction)}
	for _, tx := range txs {
		f.txs[tx.ID] = tx
	}
	return f
}

func (f *fakeProvider) Create(ctx context.Context, payload *models.TransactionPayload) (*models.RemoteTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, payload)
	tx := &models.RemoteTransaction{
		ID:     fmt.Sprintf("K%d", len(f.created)),
		Status: models.RemoteStatusCheckoutIncomplete,
		GUI:    models.GUI{Snippet: "<div id=\"klarna-checkout-container\"></div>"},
	}
	f.txs[tx.ID] = tx
	return tx, nil
}

func (f *fakeProvider) Fetch(ctx context.Context, remoteID string) (*models.RemoteTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	tx, ok := f.txs[remoteID]
	if !ok {
		return nil, &models.ProviderError{Op: "fetch", StatusCode: 404, Message: "Not Found"}
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeProvider) Update(ctx context.Context, remoteID string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, remoteID)
	if f.updateErr != nil {
		return f.updateErr
	}
	if status, ok := fields["status"].(string); ok {
		f.txs[remoteID].Status = status
	}
	return nil
}

func (f *fakeProvider) setStatus(remoteID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[remoteID].Status = status
}

type fakeLocker struct {
	mu     sync.Mutex
	err    error
	held   map[int64]bool
	locked int
}

func (f *fakeLocker) LockOrder(ctx context.Context, orderID int64) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.held == nil {
		f.held = make(map[int64]bool)
	}
	if f.held[orderID] {
		return nil, models.ErrLockNotAcquired
	}
	f.held[orderID] = true
	f.locked++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, orderID)
	}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	initiated []*models.CheckoutInitiatedEvent
	authed    []*models.PaymentAuthorizedEvent
	completed []*models.PaymentCompletedEvent
	anomalies []*models.ReconciliationAnomalyEvent
}

func (f *fakePublisher) PublishCheckoutInitiated(ctx context.Context, event *models.CheckoutInitiatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, event)
	return nil
}

func (f *fakePublisher) PublishPaymentAuthorized(ctx context.Context, event *models.PaymentAuthorizedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authed = append(f.authed, event)
	return nil
}

func (f *fakePublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, event)
	return nil
}

func (f *fakePublisher) PublishReconciliationAnomaly(ctx context.Context, event *models.ReconciliationAnomalyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, event)
	return nil
}

func (f *fakePublisher) anomalyKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.anomalies))
	for _, a := range f.anomalies {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}
