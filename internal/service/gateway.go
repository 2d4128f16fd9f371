package service

import (
	"context"
	"fmt"
	"sort"

	"klarna-checkout-service/internal/models"
)

// GatewayKind identifies a payment gateway implementation
type GatewayKind string

// Gateway kinds
const (
	GatewayKlarnaCheckout GatewayKind = "klarna_checkout"
)

// RedirectForm is an auto-submitted form that carries the buyer to the next page
type RedirectForm struct {
	Action string
	Method string
	Data   map[string]string
}

// PaymentGateway is an off-site payment gateway taking part in checkout
type PaymentGateway interface {
	Kind() GatewayKind
	BuildPayload(ctx context.Context, orderID int64) (*models.TransactionPayload, error)
	Initiate(ctx context.Context, orderID int64) (*RedirectForm, error)
	OnReturn(ctx context.Context, orderID int64, req ReturnRequest) (*ReturnResult, error)
	OnCancel(ctx context.Context, orderID int64) (string, error)
	OnNotify(ctx context.Context, req NotifyRequest) (*NotifyResult, error)
	State(ctx context.Context, orderID int64) (ReconciliationState, error)
}

// Registry resolves gateways by kind
type Registry struct {
	gateways map[GatewayKind]PaymentGateway
}

// NewRegistry registers the given gateways. Registering two gateways of the
// same kind panics.
func NewRegistry(gateways ...PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[GatewayKind]PaymentGateway, len(gateways))}
	for _, g := range gateways {
		if _, dup := r.gateways[g.Kind()]; dup {
			panic(fmt.Sprintf("payment gateway %s registered twice", g.Kind()))
		}
		r.gateways[g.Kind()] = g
	}
	return r
}

// Get returns the gateway registered under kind
func (r *Registry) Get(kind string) (PaymentGateway, bool) {
	g, ok := r.gateways[GatewayKind(kind)]
	return g, ok
}

// Kinds lists the registered gateway kinds in sorted order
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.gateways))
	for k := range r.gateways {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return kinds
}
