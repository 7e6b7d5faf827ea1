package orders

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/payments"
	"go-fulfillment-saga/order-processing/types"
)

// ApplyProviderEvent merges an asynchronous provider update into its
// transaction and lets the order react to it. Events for transactions that
// already completed or failed are dropped. An auth or capture that succeeds
// after its order failed is voided or refunded.
func (s *Service) ApplyProviderEvent(ctx context.Context, evt payments.ProviderEvent) error {
	logger := logging.FromContext(ctx, s.logger).With(
		zap.String("event_id", evt.EventID),
		zap.String("transaction_id", evt.TransactionID))

	if evt.TransactionID == "" {
		return &types.ValidationError{Msg: "event has no transaction id"}
	}
	if !evt.Status.Valid() {
		return &types.ValidationError{Msg: fmt.Sprintf("event %s has unknown status %q", evt.EventID, evt.Status)}
	}

	txn, err := s.txns.GetByID(ctx, evt.TransactionID)
	if err != nil {
		return err
	}
	if txn.IsSuccess() || txn.IsDeclined() {
		logger.Info("transaction already final, event ignored", zap.String("status", string(txn.Status)))
		return nil
	}

	txn.Status = evt.Status
	if evt.ProviderTransactionID != "" {
		txn.ProviderTransactionID = evt.ProviderTransactionID
	}
	if evt.Payload != "" {
		txn.ProviderResponse = evt.Payload
	}
	if evt.ErrorDetails != nil {
		txn.ProviderErrorDetails = evt.ErrorDetails
	}
	if evt.ClientSecret != "" {
		txn.ClientSecret = evt.ClientSecret
	}
	if err := s.txns.Update(ctx, txn); err != nil {
		return err
	}
	logger.Info("transaction updated from provider event",
		zap.String("type", evt.Type),
		zap.String("status", string(txn.Status)))

	order, err := s.orders.GetByID(ctx, txn.OrderID)
	if err != nil {
		return err
	}

	if txn.IsSuccess() && order.IsFailed() {
		switch txn.Action {
		case types.ActionAuth:
			return s.releaseLateAuth(ctx, *txn, order)
		case types.ActionCaptureAuth:
			return s.refundLateCapture(ctx, *txn, order)
		}
	}

	recs, err := s.loadRecords(ctx, order)
	if err != nil {
		return err
	}
	if err := s.PostPaymentProcess(ctx, *txn, order); err != nil {
		return err
	}
	return s.PostOrderProcessing(ctx, order, recs)
}

// releaseLateAuth voids a hold that completed after its order already failed
func (s *Service) releaseLateAuth(ctx context.Context, auth types.Transaction, order *types.Order) error {
	void := types.Transaction{
		TransactionID:       types.SettlementTransactionID(auth.TransactionID, types.ActionVoidAuth),
		ParentTransactionID: auth.TransactionID,
		OrderID:             order.OrderID,
		InstrumentID:        auth.InstrumentID,
		Action:              types.ActionVoidAuth,
		Status:              types.TxnStatusCreated,
		Amount:              auth.Amount,
	}
	result, err := s.payments.Process(ctx, void)
	if err != nil {
		return err
	}
	s.metrics.LateSettlements.WithLabelValues(string(types.ActionVoidAuth)).Inc()
	logging.FromContext(ctx, s.logger).Warn("late auth released",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID),
		zap.String("status", string(result.Status)))
	return s.PostPaymentProcess(ctx, result, order)
}

// refundLateCapture returns money captured after its order already failed
func (s *Service) refundLateCapture(ctx context.Context, capture types.Transaction, order *types.Order) error {
	refund, err := types.NewSettlementTransaction(*order, types.ActionRefund, capture.Amount)
	if err != nil {
		return err
	}
	result, err := s.payments.Process(ctx, refund)
	if err != nil {
		return err
	}
	s.metrics.LateSettlements.WithLabelValues(string(types.ActionRefund)).Inc()
	logging.FromContext(ctx, s.logger).Warn("late capture refunded",
		zap.String("order_id", order.OrderID),
		zap.String("capture_id", capture.TransactionID),
		zap.String("transaction_id", result.TransactionID),
		zap.Int64("amount", result.Amount.Amount),
		zap.String("status", string(result.Status)))
	return s.PostPaymentProcess(ctx, result, order)
}
