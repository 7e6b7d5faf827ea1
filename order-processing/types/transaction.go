package types

import (
	"fmt"
	"strings"
	"time"
)

// TransactionAction is the closed set of payment actions
type TransactionAction string

const (
	ActionAuth        TransactionAction = "AUTH"
	ActionCaptureAuth TransactionAction = "CAPTURE_AUTH"
	ActionVoidAuth    TransactionAction = "VOID_AUTH"
	ActionRefund      TransactionAction = "REFUND"
	ActionPayout      TransactionAction = "PAYOUT"
)

// TransactionStatus is the outcome of a payment action
type TransactionStatus string

const (
	TxnStatusCreated          TransactionStatus = "CREATED"
	TxnStatusProcessing       TransactionStatus = "PROCESSING"
	TxnStatusCompleted        TransactionStatus = "COMPLETED"
	TxnStatusFailed           TransactionStatus = "FAILED"
	TxnStatusProcessingFailed TransactionStatus = "PROCESSING_FAILED"
)

// Valid reports whether s is a known status
func (s TransactionStatus) Valid() bool {
	switch s {
	case TxnStatusCreated, TxnStatusProcessing, TxnStatusCompleted, TxnStatusFailed, TxnStatusProcessingFailed:
		return true
	}
	return false
}

// ProviderErrorDetails is the classified error payload captured from a
// provider call
type ProviderErrorDetails struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Message     string `json:"message"`
}

// Transaction is one payment action against a provider
type Transaction struct {
	TransactionID         string                `json:"transaction_id"`
	ParentTransactionID   string                `json:"parent_transaction_id"`
	OrderID               string                `json:"order_id"`
	InstrumentID          string                `json:"instrument_id,omitempty"`
	Action                TransactionAction     `json:"action"`
	Status                TransactionStatus     `json:"status"`
	Amount                Money                 `json:"amount"`
	ClientSecret          string                `json:"client_secret,omitempty"`
	Provider              string                `json:"provider,omitempty"`
	ProviderTransactionID string                `json:"provider_transaction_id,omitempty"`
	ProviderRequest       string                `json:"provider_request,omitempty"`
	ProviderResponse      string                `json:"provider_response,omitempty"`
	ProviderErrorDetails  *ProviderErrorDetails `json:"provider_error_details,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

func (t *Transaction) HasError() bool           { return t.ProviderErrorDetails != nil }
func (t *Transaction) IsSuccess() bool          { return t.Status == TxnStatusCompleted }
func (t *Transaction) IsDeclined() bool         { return t.Status == TxnStatusFailed }
func (t *Transaction) IsCreated() bool          { return t.Status == TxnStatusCreated }
func (t *Transaction) IsProcessing() bool       { return t.Status == TxnStatusProcessing }
func (t *Transaction) IsProcessingFailed() bool { return t.Status == TxnStatusProcessingFailed }

// IsSettled reports whether the provider gave a final answer. CREATED and
// PROCESSING transactions may still be resumed.
func (t *Transaction) IsSettled() bool {
	return t.IsSuccess() || t.IsDeclined() || t.IsProcessingFailed()
}

// SettlementTransactionID derives the id of a CAPTURE / VOID / REFUND from its
// auth, so one auth can only ever settle once per action
func SettlementTransactionID(authID string, action TransactionAction) string {
	var suffix string
	switch action {
	case ActionCaptureAuth:
		suffix = "capture"
	case ActionVoidAuth:
		suffix = "void"
	case ActionRefund:
		suffix = "refund"
	default:
		suffix = strings.ToLower(string(action))
	}
	return authID + "-" + suffix
}

// NewAuthTransaction builds the root AUTH for an order's incoming invoice
func NewAuthTransaction(order Order) (Transaction, error) {
	if order.OrderID == "" {
		return Transaction{}, &PaymentCreationError{Msg: "order id is required"}
	}
	id := NewID()
	return Transaction{
		TransactionID:       id,
		ParentTransactionID: id,
		OrderID:             order.OrderID,
		InstrumentID:        order.IncomingInvoice.InstrumentID,
		Action:              ActionAuth,
		Status:              TxnStatusCreated,
		Amount:              order.IncomingInvoice.Amount,
	}, nil
}

// NewSettlementTransaction builds a CAPTURE / VOID / REFUND against the order's auth
func NewSettlementTransaction(order Order, action TransactionAction, amount Money) (Transaction, error) {
	authID := order.AuthTransactionID()
	if authID == "" {
		return Transaction{}, &PaymentCreationError{
			Msg: fmt.Sprintf("order %s has no auth transaction to %s", order.OrderID, action),
		}
	}
	if action == ActionAuth {
		return Transaction{}, &PaymentCreationError{Msg: "use NewAuthTransaction for AUTH"}
	}
	return Transaction{
		TransactionID:       SettlementTransactionID(authID, action),
		ParentTransactionID: authID,
		OrderID:             order.OrderID,
		InstrumentID:        order.IncomingInvoice.InstrumentID,
		Action:              action,
		Status:              TxnStatusCreated,
		Amount:              amount,
	}, nil
}
