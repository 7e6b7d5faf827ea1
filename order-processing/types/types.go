package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new lexically sortable aggregate id
func NewID() string {
	return ulid.Make().String()
}

// ProviderToken is a provider-side handle for a payment instrument
type ProviderToken struct {
	Token      string `json:"token"`
	Provider   string `json:"provider"`
	CustomerID string `json:"customer_id,omitempty"`
}

// Instrument is a stored payment method
type Instrument struct {
	InstrumentID  string          `json:"instrument_id"`
	UserID        string          `json:"user_id"`
	Usage         string          `json:"usage"`
	PaymentMethod string          `json:"payment_method"`
	Tokens        []ProviderToken `json:"tokens"`
	IIN           string          `json:"iin,omitempty"`
	LastFour      string          `json:"last_four,omitempty"`
}

// TokenFor returns the instrument's token for provider
func (i *Instrument) TokenFor(provider string) (ProviderToken, bool) {
	for _, t := range i.Tokens {
		if t.Provider == provider {
			return t, true
		}
	}
	return ProviderToken{}, false
}

// FulfillmentRequest is the input to the order fulfillment workflow
type FulfillmentRequest struct {
	OrderID      string
	RetryBackoff time.Duration
}

// FulfillmentResult is what one orchestrator invocation reports back to the
// scheduler
type FulfillmentResult struct {
	OrderID   string
	Status    OrderStatus
	Terminal  bool
	NextDelay time.Duration
}

// ForceFailRequest is the input to the purchase record forced-failure workflow
type ForceFailRequest struct {
	RecordID     string
	RetryBackoff time.Duration
}
