package orders

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/records"
	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/types"
)

const (
	errorTypePaymentFailure = "PaymentFailure"
	paymentFailureMessage   = "Your payment failed.. Please make sure your payment information is correct!"
	genericFailureMessage   = "Something went wrong! Please try again"
)

// PurchaseRequest is one unit of downstream work the user is paying for
type PurchaseRequest struct {
	Description string           `json:"description"`
	Entity      string           `json:"entity"`
	LineItems   []types.LineItem `json:"line_items"`
}

type CreateOrderRequest struct {
	UserID       string            `json:"user_id"`
	InstrumentID string            `json:"instrument_id,omitempty"`
	Purchases    []PurchaseRequest `json:"purchases"`
}

type PaymentResult struct {
	TransactionID string                  `json:"transaction_id"`
	Status        types.TransactionStatus `json:"status"`
	ClientSecret  string                  `json:"client_secret,omitempty"`
}

// ErrorDetails is the user-facing error payload
type ErrorDetails struct {
	ErrorType    string `json:"error_type"`
	ErrorDetails string `json:"error_details"`
	ErrorMessage string `json:"error_message"`
}

type CreateOrderResponse struct {
	OrderID       string            `json:"order_id,omitempty"`
	Status        types.OrderStatus `json:"status,omitempty"`
	RecordIDs     []string          `json:"record_ids,omitempty"`
	PaymentResult *PaymentResult    `json:"payment_result,omitempty"`
	ErrorDetails  *ErrorDetails     `json:"error_details,omitempty"`
}

// ErrorResponse builds the error payload for err
func ErrorResponse(err error, message string) *ErrorDetails {
	if message == "" {
		message = genericFailureMessage
	}
	errType := "InternalError"
	if name, ok := types.IsPermanent(err); ok {
		errType = name
	}
	return &ErrorDetails{ErrorType: errType, ErrorDetails: err.Error(), ErrorMessage: message}
}

// Create builds the purchase records and the order, schedules fulfillment
// and places the auth. A declined auth is a normal response carrying
// PaymentFailure details; an error means nothing usable came back.
func (s *Service) Create(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	logger := logging.FromContext(ctx, s.logger).With(zap.String("user_id", req.UserID))

	recs, err := s.buildRecords(req)
	if err != nil {
		return nil, err
	}
	order, err := s.buildOrder(req, recs)
	if err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if _, err := s.records.Process(ctx, rec); err != nil {
			return nil, fmt.Errorf("store purchase record %s: %w", rec.RecordID, err)
		}
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("store order %s: %w", order.OrderID, err)
	}
	logger.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.Strings("record_ids", order.PurchaseRecordIDs),
		zap.Int64("amount", order.IncomingInvoice.Amount.Amount))

	// the orchestrator reconciles whatever happens from here on
	if err := s.enqueue(ctx, scheduler.Ref{Kind: scheduler.KindOrder, ID: order.OrderID}, s.schedule.InitialFulfillmentDelay); err != nil {
		return nil, err
	}

	auth, err := types.NewAuthTransaction(*order)
	if err != nil {
		return nil, err
	}
	result, err := s.payments.Process(ctx, auth)
	if err != nil {
		return nil, err
	}
	logger.Info("auth processed",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID),
		zap.String("status", string(result.Status)))

	if err := s.PostPaymentProcess(ctx, result, order); err != nil {
		return nil, err
	}
	if err := s.PostOrderProcessing(ctx, order, recs); err != nil {
		return nil, err
	}

	resp := &CreateOrderResponse{
		OrderID:   order.OrderID,
		Status:    order.Status,
		RecordIDs: order.PurchaseRecordIDs,
		PaymentResult: &PaymentResult{
			TransactionID: result.TransactionID,
			Status:        result.Status,
		},
	}
	switch {
	case result.IsDeclined():
		resp.ErrorDetails = &ErrorDetails{
			ErrorType:    errorTypePaymentFailure,
			ErrorDetails: "Auth was declined",
			ErrorMessage: paymentFailureMessage,
		}
	case result.IsProcessingFailed():
		resp.ErrorDetails = &ErrorDetails{
			ErrorType:    "PaymentProcessingError",
			ErrorDetails: "Auth could not be completed",
			ErrorMessage: genericFailureMessage,
		}
	case result.IsCreated():
		resp.PaymentResult.ClientSecret = result.ClientSecret
	}
	return resp, nil
}

func (s *Service) buildRecords(req CreateOrderRequest) ([]*types.PurchaseRecord, error) {
	if req.UserID == "" {
		return nil, &types.ValidationError{Msg: "user_id is required"}
	}
	if len(req.Purchases) == 0 {
		return nil, &types.ValidationError{Msg: "at least one purchase is required"}
	}
	now := s.now()
	recs := make([]*types.PurchaseRecord, 0, len(req.Purchases))
	for i, p := range req.Purchases {
		if p.Entity == "" {
			return nil, &types.ValidationError{Msg: fmt.Sprintf("purchases[%d].entity is required", i)}
		}
		if len(p.LineItems) == 0 {
			return nil, &types.ValidationError{Msg: fmt.Sprintf("purchases[%d].line_items is required", i)}
		}
		for j, li := range p.LineItems {
			if err := li.Validate(); err != nil {
				return nil, &types.ValidationError{Msg: fmt.Sprintf("purchases[%d].line_items[%d]: %v", i, j, err)}
			}
		}
		if len(s.entities) > 0 {
			if _, ok := s.entities[p.Entity]; !ok {
				return nil, &types.ContextValidationError{Msg: fmt.Sprintf("unknown product entity %q", p.Entity)}
			}
		}
		recs = append(recs, records.NewRecord(req.UserID, p.Entity, p.Description, p.LineItems, now))
	}
	return recs, nil
}

func (s *Service) buildOrder(req CreateOrderRequest, recs []*types.PurchaseRecord) (*types.Order, error) {
	names := make([]string, 0, len(recs))
	var items []types.LineItem
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		names = append(names, rec.ProductName()+" x 1")
		items = append(items, rec.LineItems...)
		ids = append(ids, rec.RecordID)
	}
	invoice, err := types.NewInvoice(strings.Join(names, "\n"), req.UserID, types.InvoiceIncoming, req.InstrumentID, items)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &types.Order{
		OrderID:           types.NewID(),
		UserID:            req.UserID,
		Entity:            recs[0].Entity,
		Status:            types.OrderStatusCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
		StatusChangedAt:   now,
		PurchaseRecordIDs: ids,
		IncomingInvoice:   invoice,
	}, nil
}
