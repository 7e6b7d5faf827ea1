package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"go-fulfillment-saga/order-processing/types"
)

const StripeProvider = "stripe"

// Metadata keys set on every PaymentIntent so webhooks find their way back
const (
	metadataTransactionID = "transaction_id"
	metadataOrderID       = "order_id"
)

type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

type refundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeAdapter authorizes with manual-capture PaymentIntents
type StripeAdapter struct {
	intents paymentIntentAPI
	refunds refundAPI
}

func NewStripeAdapter(apiKey string) *StripeAdapter {
	sc := client.New(apiKey, nil)
	return &StripeAdapter{intents: sc.PaymentIntents, refunds: sc.Refunds}
}

func (s *StripeAdapter) Name() string { return StripeProvider }

func (s *StripeAdapter) CreateAuth(ctx context.Context, txn types.Transaction, instrument *types.Instrument) types.Transaction {
	if txn.ProviderTransactionID != "" {
		// resumed: read the intent the first call created
		getParams := &stripe.PaymentIntentParams{}
		getParams.Context = ctx
		pi, err := s.intents.Get(txn.ProviderTransactionID, getParams)
		if err != nil {
			return handleStripeError(txn, err)
		}
		return applyIntent(txn, pi, instrument != nil)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(txn.Amount.Amount),
		Currency:      stripe.String(txn.Amount.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if instrument != nil {
		if token, ok := instrument.TokenFor(StripeProvider); ok {
			params.PaymentMethod = stripe.String(token.Token)
			params.Confirm = stripe.Bool(true)
			if token.CustomerID != "" {
				params.Customer = stripe.String(token.CustomerID)
			}
		}
	}
	s.prepare(ctx, &params.Params, txn)
	tag(params, txn)
	txn.ProviderRequest = encode(map[string]any{
		"amount":          txn.Amount.Amount,
		"currency":        txn.Amount.Currency,
		"capture_method":  "manual",
		"confirm":         params.Confirm != nil,
		"idempotency_key": txn.TransactionID,
	})

	pi, err := s.intents.New(params)
	if err != nil {
		return handleStripeError(txn, err)
	}
	return applyIntent(txn, pi, instrument != nil)
}

// CaptureAuth captures the parent intent. An intent that already succeeded
// counts as captured.
func (s *StripeAdapter) CaptureAuth(ctx context.Context, txn types.Transaction, parent types.Transaction) types.Transaction {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := s.intents.Get(parent.ProviderTransactionID, getParams)
	if err != nil {
		return handleStripeError(txn, err)
	}
	if pi.Status == stripe.PaymentIntentStatusSucceeded {
		return applyIntent(txn, pi, true)
	}

	params := &stripe.PaymentIntentCaptureParams{AmountToCapture: stripe.Int64(txn.Amount.Amount)}
	s.prepare(ctx, &params.Params, txn)
	txn.ProviderRequest = encode(map[string]any{
		"payment_intent":    parent.ProviderTransactionID,
		"amount_to_capture": txn.Amount.Amount,
		"idempotency_key":   txn.TransactionID,
	})
	pi, err = s.intents.Capture(parent.ProviderTransactionID, params)
	if err != nil {
		return handleStripeError(txn, err)
	}
	return applyIntent(txn, pi, true)
}

func (s *StripeAdapter) VoidAuth(ctx context.Context, txn types.Transaction, parent types.Transaction) types.Transaction {
	params := &stripe.PaymentIntentCancelParams{}
	s.prepare(ctx, &params.Params, txn)
	txn.ProviderRequest = encode(map[string]any{
		"payment_intent":  parent.ProviderTransactionID,
		"idempotency_key": txn.TransactionID,
	})
	pi, err := s.intents.Cancel(parent.ProviderTransactionID, params)
	if err != nil {
		return handleStripeError(txn, err)
	}
	return applyIntent(txn, pi, true)
}

func (s *StripeAdapter) Refund(ctx context.Context, txn types.Transaction, parent types.Transaction) types.Transaction {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(parent.ProviderTransactionID),
		Amount:        stripe.Int64(txn.Amount.Amount),
	}
	s.prepare(ctx, &params.Params, txn)
	tag(params, txn)
	txn.ProviderRequest = encode(map[string]any{
		"payment_intent":  parent.ProviderTransactionID,
		"amount":          txn.Amount.Amount,
		"idempotency_key": txn.TransactionID,
	})
	re, err := s.refunds.New(params)
	if err != nil {
		return handleStripeError(txn, err)
	}
	txn.ProviderTransactionID = re.ID
	txn.ProviderResponse = encode(re)
	switch re.Status {
	case stripe.RefundStatusSucceeded:
		txn.Status = types.TxnStatusCompleted
	case stripe.RefundStatusPending, stripe.RefundStatusRequiresAction:
		txn.Status = types.TxnStatusProcessing
	default:
		txn.Status = types.TxnStatusFailed
		txn.ProviderErrorDetails = &types.ProviderErrorDetails{
			Type:    "refund_error",
			Message: fmt.Sprintf("refund %s is %s", re.ID, re.Status),
		}
	}
	return txn
}

func (s *StripeAdapter) prepare(ctx context.Context, p *stripe.Params, txn types.Transaction) {
	p.Context = ctx
	p.SetIdempotencyKey(txn.TransactionID)
}

// tag stamps the objects a transaction creates. Captures and cancels keep
// the auth's metadata.
func tag(p interface{ AddMetadata(key, value string) }, txn types.Transaction) {
	p.AddMetadata(metadataTransactionID, txn.TransactionID)
	p.AddMetadata(metadataOrderID, txn.OrderID)
}

// applyIntent maps a PaymentIntent onto txn. withInstrument tells a declined
// confirmation apart from an auth still waiting for a payment method.
func applyIntent(txn types.Transaction, pi *stripe.PaymentIntent, withInstrument bool) types.Transaction {
	txn.ProviderTransactionID = pi.ID
	txn.ProviderResponse = encode(pi)

	switch pi.Status {
	case stripe.PaymentIntentStatusRequiresCapture, stripe.PaymentIntentStatusSucceeded:
		txn.Status = types.TxnStatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		if txn.Action == types.ActionVoidAuth {
			txn.Status = types.TxnStatusCompleted
		} else {
			txn.Status = types.TxnStatusFailed
			txn.ProviderErrorDetails = &types.ProviderErrorDetails{
				Type:    "invalid_request_error",
				Code:    string(pi.CancellationReason),
				Message: "payment intent was canceled",
			}
		}
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction:
		txn.Status = types.TxnStatusProcessing
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusRequiresConfirmation:
		if !withInstrument && txn.Action == types.ActionAuth {
			txn.Status = types.TxnStatusCreated
			txn.ClientSecret = pi.ClientSecret
			break
		}
		txn.Status = types.TxnStatusFailed
		txn.ProviderErrorDetails = paymentErrorDetails(pi.LastPaymentError)
	default:
		txn.Status = types.TxnStatusProcessing
	}
	return txn
}

// handleStripeError records err on txn. Card errors are declines, anything
// else leaves the outcome unknown.
func handleStripeError(txn types.Transaction, err error) types.Transaction {
	var se *stripe.Error
	if !errors.As(err, &se) {
		txn.Status = types.TxnStatusProcessingFailed
		txn.ProviderErrorDetails = &types.ProviderErrorDetails{Type: "unknown_error", Message: err.Error()}
		return txn
	}
	txn.ProviderErrorDetails = paymentErrorDetails(se)
	txn.ProviderResponse = encode(se)
	if se.PaymentIntent != nil && se.PaymentIntent.ID != "" {
		txn.ProviderTransactionID = se.PaymentIntent.ID
	}
	if se.Type == stripe.ErrorTypeCard {
		txn.Status = types.TxnStatusFailed
	} else {
		txn.Status = types.TxnStatusProcessingFailed
	}
	return txn
}

func paymentErrorDetails(se *stripe.Error) *types.ProviderErrorDetails {
	if se == nil {
		return &types.ProviderErrorDetails{Type: "card_error", Message: "payment method declined"}
	}
	return &types.ProviderErrorDetails{
		Type:        string(se.Type),
		Code:        string(se.Code),
		DeclineCode: string(se.DeclineCode),
		Message:     se.Msg,
	}
}

// Stripe webhook event types this service reacts to
const (
	eventIntentSucceeded         = "payment_intent.succeeded"
	eventIntentPaymentFailed     = "payment_intent.payment_failed"
	eventIntentRequiresAction    = "payment_intent.requires_action"
	eventIntentCapturableUpdated = "payment_intent.amount_capturable_updated"
	eventIntentCanceled          = "payment_intent.canceled"
)

// ParseEvent maps a Stripe PaymentIntent event onto the transaction it
// concerns. The auth id travels in the intent metadata; settlement ids are
// derived from it.
func (s *StripeAdapter) ParseEvent(payload []byte) (ProviderEvent, error) {
	var evt stripe.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return ProviderEvent{}, &types.ValidationError{Msg: "malformed stripe event: " + err.Error()}
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return ProviderEvent{}, &types.ValidationError{Msg: "stripe event has no data object"}
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		return ProviderEvent{}, &types.ValidationError{Msg: "stripe event object is not a payment intent: " + err.Error()}
	}
	authID := pi.Metadata[metadataTransactionID]
	if authID == "" {
		return ProviderEvent{}, &types.ValidationError{Msg: "payment intent metadata has no transaction_id"}
	}

	out := ProviderEvent{
		EventID:               evt.ID,
		Provider:              StripeProvider,
		Type:                  string(evt.Type),
		TransactionID:         authID,
		ProviderTransactionID: pi.ID,
		Payload:               string(evt.Data.Raw),
	}
	switch string(evt.Type) {
	case eventIntentCapturableUpdated:
		out.Status = types.TxnStatusCompleted
	case eventIntentRequiresAction:
		out.Status = types.TxnStatusProcessing
		out.ClientSecret = pi.ClientSecret
	case eventIntentPaymentFailed:
		out.Status = types.TxnStatusFailed
		out.ErrorDetails = paymentErrorDetails(pi.LastPaymentError)
	case eventIntentSucceeded:
		out.TransactionID = types.SettlementTransactionID(authID, types.ActionCaptureAuth)
		out.Status = types.TxnStatusCompleted
	case eventIntentCanceled:
		out.TransactionID = types.SettlementTransactionID(authID, types.ActionVoidAuth)
		out.Status = types.TxnStatusCompleted
	default:
		return ProviderEvent{}, &types.ContextValidationError{Msg: fmt.Sprintf("unsupported stripe event type %q", evt.Type)}
	}
	return out, nil
}
