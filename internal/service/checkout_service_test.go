package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"klarna-checkout-service/config"
	"klarna-checkout-service/internal/checkout"
	"klarna-checkout-service/internal/models"
	"klarna-checkout-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type checkoutFixture struct {
	orders    *fakeOrders
	provider  *fakeProvider
	publisher *fakePublisher
	snippets  *SnippetSigner
	service   *CheckoutService
}

func cartOrder() *models.Order {
	profile := int64(7)
	total := models.NewPrice("100.00", "SEK")
	return &models.Order{
		ID:               testOrderID,
		State:            models.OrderStateDraft,
		Workflow:         models.WorkflowDefault,
		CheckoutStep:     models.CheckoutStepPayment,
		PaymentGateway:   string(GatewayKlarnaCheckout),
		BillingProfileID: &profile,
		TotalPrice:       &total,
		Items: []models.LineItem{
			{Title: "Sweater", Quantity: 1, UnitPrice: models.NewPrice("100.00", "SEK")},
		},
	}
}

func newCheckoutFixture(t *testing.T, order *models.Order, cfg config.KlarnaConfig) *checkoutFixture {
	urls, err := checkout.NewURLBuilder("https://shop.example.com")
	require.NoError(t, err)

	f := &checkoutFixture{
		orders:    newFakeOrders(order),
		provider:  newFakeProvider(),
		publisher: &fakePublisher{},
		snippets:  NewSnippetSigner(cfg.SharedSecret),
	}
	payments := &fakePayments{}
	locker := &fakeLocker{}
	clock := util.FixedClock{At: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger := zap.NewNop()

	reconciler := NewReconciler(string(GatewayKlarnaCheckout), cfg.IsTest(), f.orders, payments, f.provider, locker, f.publisher, clock, logger)
	f.service = NewCheckoutService(checkout.NewBuilder(cfg, urls), urls, f.orders, f.provider, locker, f.publisher, reconciler, f.snippets, clock, logger)
	return f
}

func klarnaConfig() config.KlarnaConfig {
	return config.KlarnaConfig{
		Mode:         config.KlarnaModeTest,
		MerchantID:   "M-1",
		SharedSecret: "secret",
		TermsPath:    "/terms",
		Locale:       "sv-se",
	}
}

func TestInitiate(t *testing.T) {
	f := newCheckoutFixture(t, cartOrder(), klarnaConfig())

	form, err := f.service.Initiate(context.Background(), testOrderID)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, form.Method)
	assert.Equal(t, "https://shop.example.com/checkout/42/payment/klarna/snippet", form.Action)

	snippet, err := f.snippets.Decode(testOrderID, form.Data[SnippetField], form.Data[SnippetSignatureField])
	require.NoError(t, err)
	assert.Equal(t, `<div id="klarna-checkout-container"></div>`, snippet)

	assert.Equal(t, "K1", f.orders.get(testOrderID).KlarnaID())
	require.Len(t, f.provider.created, 1)
	assert.Equal(t, "SEK", f.provider.created[0].PurchaseCurrency)
	require.Len(t, f.publisher.initiated, 1)
	assert.Equal(t, "K1", f.publisher.initiated[0].RemoteID)
}

func TestInitiateProviderError(t *testing.T) {
	f := newCheckoutFixture(t, cartOrder(), klarnaConfig())
	f.provider.createErr = &models.ProviderError{Op: "create", StatusCode: 400, Message: "Bad format"}

	form, err := f.service.Initiate(context.Background(), testOrderID)

	assert.Nil(t, form)
	assert.True(t, models.IsProviderError(err))
	assert.Empty(t, f.orders.get(testOrderID).KlarnaID())
	assert.Empty(t, f.publisher.initiated)
}

func TestInitiateConfigurationError(t *testing.T) {
	cfg := klarnaConfig()
	cfg.Locale = "de-de"
	f := newCheckoutFixture(t, cartOrder(), cfg)

	_, err := f.service.Initiate(context.Background(), testOrderID)

	var cerr *models.ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "locale", cerr.Field)
	assert.Empty(t, f.provider.created)
}

func TestInitiateOtherGateway(t *testing.T) {
	order := cartOrder()
	order.PaymentGateway = "manual"
	f := newCheckoutFixture(t, order, klarnaConfig())

	_, err := f.service.Initiate(context.Background(), testOrderID)

	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Empty(t, f.provider.created)
}

func TestInitiateUnknownOrder(t *testing.T) {
	f := newCheckoutFixture(t, cartOrder(), klarnaConfig())

	_, err := f.service.Initiate(context.Background(), 999)

	assert.True(t, errors.Is(err, models.ErrOrderNotFound))
}

func TestBuildPayloadDoesNotContactProvider(t *testing.T) {
	f := newCheckoutFixture(t, cartOrder(), klarnaConfig())

	payload, err := f.service.BuildPayload(context.Background(), testOrderID)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), payload.TotalMinorUnits())
	assert.Empty(t, f.provider.created)
}

func TestOnCancel(t *testing.T) {
	f := newCheckoutFixture(t, cartOrder(), klarnaConfig())

	step, err := f.service.OnCancel(context.Background(), testOrderID)
	require.NoError(t, err)

	assert.Equal(t, models.CheckoutStepReview, step)
	assert.Equal(t, models.CheckoutStepReview, f.orders.get(testOrderID).CheckoutStep)
}

func TestRegistry(t *testing.T) {
	f := newCheckoutFixture(t, cartOrder(), klarnaConfig())
	registry := NewRegistry(f.service)

	gateway, ok := registry.Get("klarna_checkout")
	require.True(t, ok)
	assert.Equal(t, GatewayKlarnaCheckout, gateway.Kind())

	payload, err := gateway.BuildPayload(context.Background(), testOrderID)
	require.NoError(t, err)
	assert.Equal(t, "SE", payload.PurchaseCountry)

	_, ok = registry.Get("paypal")
	assert.False(t, ok)
	assert.Equal(t, []string{"klarna_checkout"}, registry.Kinds())

	assert.Panics(t, func() { NewRegistry(f.service, f.service) })
}

func TestNewKlarnaCheckoutRejectsRelativeBaseURL(t *testing.T) {
	_, err := NewKlarnaCheckout(klarnaConfig(), "/shop", newFakeOrders(), &fakePayments{}, newFakeProvider(),
		&fakeLocker{}, &fakePublisher{}, util.SystemClock{}, zap.NewNop())

	var cerr *models.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}
