package payments

import (
	"context"
	"fmt"
	"sort"

	"go-fulfillment-saga/order-processing/types"
)

// Adapter calls one external payment processor. Implementations never return
// an error: declines and faults are recorded on the returned Transaction
// (status + ProviderErrorDetails) so the caller can always move on.
type Adapter interface {
	Name() string
	CreateAuth(ctx context.Context, txn types.Transaction, instrument *types.Instrument) types.Transaction
	CaptureAuth(ctx context.Context, txn types.Transaction, parent types.Transaction) types.Transaction
	VoidAuth(ctx context.Context, txn types.Transaction, parent types.Transaction) types.Transaction
	Refund(ctx context.Context, txn types.Transaction, parent types.Transaction) types.Transaction
}

// ProviderEvent is an asynchronous status update reported by a provider
type ProviderEvent struct {
	EventID               string                      `json:"event_id"`
	Provider              string                      `json:"provider"`
	Type                  string                      `json:"type"`
	TransactionID         string                      `json:"transaction_id"`
	ProviderTransactionID string                      `json:"provider_transaction_id,omitempty"`
	Status                types.TransactionStatus     `json:"status"`
	Payload               string                      `json:"payload,omitempty"`
	ClientSecret          string                      `json:"client_secret,omitempty"`
	ErrorDetails          *types.ProviderErrorDetails `json:"error_details,omitempty"`
}

// EventParser turns a raw webhook body into a ProviderEvent. Unsupported
// event types are a ContextValidationError, unreadable bodies a
// ValidationError.
type EventParser interface {
	ParseEvent(payload []byte) (ProviderEvent, error)
}

// Registry holds the adapters known to this process. It is built once at
// startup and passed to whatever needs to route a payment.
type Registry struct {
	adapters        map[string]Adapter
	defaultProvider string
}

func NewRegistry(defaultProvider string, adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters)), defaultProvider: defaultProvider}
	for _, a := range adapters {
		if _, dup := r.adapters[a.Name()]; dup {
			return nil, fmt.Errorf("payment adapter %q registered twice", a.Name())
		}
		r.adapters[a.Name()] = a
	}
	if _, ok := r.adapters[defaultProvider]; !ok {
		return nil, fmt.Errorf("default payment provider %q has no adapter", defaultProvider)
	}
	return r, nil
}

// Default is the provider used when nothing else decides the route
func (r *Registry) Default() string { return r.defaultProvider }

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Parser returns the webhook event parser for provider, if its adapter has one
func (r *Registry) Parser(name string) (EventParser, bool) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, false
	}
	p, ok := a.(EventParser)
	return p, ok
}

// Names lists the registered providers
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
