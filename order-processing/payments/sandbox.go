package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go-fulfillment-saga/order-processing/types"
)

// Sandbox tokens steer the outcome of an auth
const (
	SandboxTokenDecline = "tok_decline"
	SandboxTokenPending = "tok_pending"
	SandboxTokenError   = "tok_error"
)

const (
	intentRequiresPaymentMethod = "requires_payment_method"
	intentRequiresCapture       = "requires_capture"
	intentProcessing            = "processing"
	intentSucceeded             = "succeeded"
	intentCanceled              = "canceled"
)

type sandboxIntent struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret,omitempty"`
	Refunded     int64  `json:"amount_refunded"`
	Capturing    bool   `json:"capturing,omitempty"`
}

// SandboxAdapter is an in-process provider with deterministic outcomes. It
// keeps payment intents in memory and honors idempotency keys like a real
// processor would.
type SandboxAdapter struct {
	name string

	mu          sync.Mutex
	intents     map[string]*sandboxIntent // by provider transaction id
	byKey       map[string]string         // idempotency key -> provider transaction id
	calls       map[types.TransactionAction]int
	holdCapture bool
}

func NewSandboxAdapter(name string) *SandboxAdapter {
	if name == "" {
		name = "sandbox"
	}
	return &SandboxAdapter{
		name:    name,
		intents: make(map[string]*sandboxIntent),
		byKey:   make(map[string]string),
		calls:   make(map[types.TransactionAction]int),
	}
}

func (s *SandboxAdapter) Name() string { return s.name }

// Calls reports how many provider calls were made for action
func (s *SandboxAdapter) Calls(action types.TransactionAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[action]
}

// SetIntentStatus moves an intent out of band, the way a processor settles a
// pending payment
func (s *SandboxAdapter) SetIntentStatus(providerTransactionID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pi, ok := s.intents[providerTransactionID]
	if ok {
		pi.Status = status
	}
	return ok
}

// HoldCaptures leaves new captures processing until SetIntentStatus moves
// their intent to succeeded
func (s *SandboxAdapter) HoldCaptures(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdCapture = hold
}

func (s *SandboxAdapter) CreateAuth(_ context.Context, txn types.Transaction, instrument *types.Instrument) types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[types.ActionAuth]++

	var token string
	if instrument != nil {
		if t, ok := instrument.TokenFor(s.name); ok {
			token = t.Token
		} else if len(instrument.Tokens) > 0 {
			token = instrument.Tokens[0].Token
		}
	}
	txn.ProviderRequest = encode(map[string]any{
		"amount":          txn.Amount.Amount,
		"currency":        txn.Amount.Currency,
		"capture_method":  "manual",
		"payment_method":  token,
		"idempotency_key": txn.TransactionID,
	})

	if token == SandboxTokenError {
		return sandboxFault(txn, "api_connection_error", "sandbox processor unreachable")
	}

	pi, replay := s.intentFor(txn)
	if !replay {
		switch {
		case instrument == nil:
			pi.Status = intentRequiresPaymentMethod
			pi.ClientSecret = pi.ID + "_secret"
		case token == SandboxTokenDecline:
			pi.Status = intentRequiresPaymentMethod
		case token == SandboxTokenPending:
			pi.Status = intentProcessing
		default:
			pi.Status = intentRequiresCapture
		}
	}

	txn.ProviderTransactionID = pi.ID
	txn.ProviderResponse = encode(pi)
	switch pi.Status {
	case intentRequiresCapture, intentSucceeded:
		txn.Status = types.TxnStatusCompleted
	case intentProcessing:
		txn.Status = types.TxnStatusProcessing
	case intentRequiresPaymentMethod:
		if instrument == nil {
			txn.Status = types.TxnStatusCreated
			txn.ClientSecret = pi.ClientSecret
			break
		}
		txn.Status = types.TxnStatusFailed
		txn.ProviderErrorDetails = &types.ProviderErrorDetails{
			Type:        "card_error",
			Code:        "card_declined",
			DeclineCode: "generic_decline",
			Message:     "Your card was declined.",
		}
	default:
		txn.Status = types.TxnStatusFailed
	}
	return txn
}

func (s *SandboxAdapter) CaptureAuth(_ context.Context, txn types.Transaction, parent types.Transaction) types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[types.ActionCaptureAuth]++
	txn.ProviderRequest = encode(map[string]any{
		"payment_intent":    parent.ProviderTransactionID,
		"amount_to_capture": txn.Amount.Amount,
		"idempotency_key":   txn.TransactionID,
	})

	pi, ok := s.intents[parent.ProviderTransactionID]
	if !ok {
		return sandboxFault(txn, "invalid_request_error", "no such payment_intent: "+parent.ProviderTransactionID)
	}
	switch pi.Status {
	case intentSucceeded:
	case intentProcessing:
		if !pi.Capturing {
			return sandboxFault(txn, "invalid_request_error", "payment_intent is processing and cannot be captured")
		}
		return sandboxCapturing(txn, pi)
	case intentRequiresCapture:
		if txn.Amount.Amount > pi.Amount {
			return sandboxFault(txn, "invalid_request_error", "amount_to_capture exceeds the authorized amount")
		}
		pi.Amount = txn.Amount.Amount
		if s.holdCapture {
			pi.Status = intentProcessing
			pi.Capturing = true
			return sandboxCapturing(txn, pi)
		}
		pi.Status = intentSucceeded
	default:
		return sandboxFault(txn, "invalid_request_error", fmt.Sprintf("payment_intent is %s and cannot be captured", pi.Status))
	}
	txn.ProviderTransactionID = pi.ID
	txn.ProviderResponse = encode(pi)
	txn.Status = types.TxnStatusCompleted
	return txn
}

func (s *SandboxAdapter) VoidAuth(_ context.Context, txn types.Transaction, parent types.Transaction) types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[types.ActionVoidAuth]++
	txn.ProviderRequest = encode(map[string]any{"payment_intent": parent.ProviderTransactionID})

	pi, ok := s.intents[parent.ProviderTransactionID]
	if !ok {
		return sandboxFault(txn, "invalid_request_error", "no such payment_intent: "+parent.ProviderTransactionID)
	}
	if pi.Status == intentSucceeded {
		return sandboxFault(txn, "invalid_request_error", "payment_intent already captured")
	}
	pi.Status = intentCanceled
	txn.ProviderTransactionID = pi.ID
	txn.ProviderResponse = encode(pi)
	txn.Status = types.TxnStatusCompleted
	return txn
}

func (s *SandboxAdapter) Refund(_ context.Context, txn types.Transaction, parent types.Transaction) types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[types.ActionRefund]++
	txn.ProviderRequest = encode(map[string]any{
		"payment_intent": parent.ProviderTransactionID,
		"amount":         txn.Amount.Amount,
	})

	pi, ok := s.intents[parent.ProviderTransactionID]
	if !ok || pi.Status != intentSucceeded {
		return sandboxFault(txn, "invalid_request_error", "payment_intent has no captured charge to refund")
	}
	if pi.Refunded+txn.Amount.Amount > pi.Amount {
		return sandboxFault(txn, "invalid_request_error", "refund exceeds the captured amount")
	}
	pi.Refunded += txn.Amount.Amount
	txn.ProviderTransactionID = "re_" + txn.TransactionID
	txn.ProviderResponse = encode(pi)
	txn.Status = types.TxnStatusCompleted
	return txn
}

// ParseEvent reads a sandbox webhook, which is a ProviderEvent in JSON
func (s *SandboxAdapter) ParseEvent(payload []byte) (ProviderEvent, error) {
	var evt ProviderEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ProviderEvent{}, &types.ValidationError{Msg: "malformed sandbox event: " + err.Error()}
	}
	if evt.EventID == "" || evt.TransactionID == "" {
		return ProviderEvent{}, &types.ValidationError{Msg: "sandbox event needs event_id and transaction_id"}
	}
	if !evt.Status.Valid() {
		return ProviderEvent{}, &types.ContextValidationError{Msg: fmt.Sprintf("unsupported transaction status %q", evt.Status)}
	}
	evt.Provider = s.name
	if evt.Payload == "" {
		evt.Payload = string(payload)
	}
	return evt, nil
}

// intentFor returns the intent for the transaction's idempotency key,
// creating it on first use. The bool reports a replay.
func (s *SandboxAdapter) intentFor(txn types.Transaction) (*sandboxIntent, bool) {
	if id, ok := s.byKey[txn.TransactionID]; ok {
		return s.intents[id], true
	}
	pi := &sandboxIntent{
		ID:       "pi_sandbox_" + txn.TransactionID,
		Amount:   txn.Amount.Amount,
		Currency: txn.Amount.Currency,
	}
	s.intents[pi.ID] = pi
	s.byKey[txn.TransactionID] = pi.ID
	return pi, false
}

func sandboxCapturing(txn types.Transaction, pi *sandboxIntent) types.Transaction {
	txn.ProviderTransactionID = pi.ID
	txn.ProviderResponse = encode(pi)
	txn.Status = types.TxnStatusProcessing
	return txn
}

func sandboxFault(txn types.Transaction, errType, msg string) types.Transaction {
	txn.Status = types.TxnStatusProcessingFailed
	txn.ProviderErrorDetails = &types.ProviderErrorDetails{Type: errType, Message: msg}
	return txn
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
