package orders

import (
	"context"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/types"
)

// PostPaymentProcess applies a transaction outcome to its order and
// persists the order
func (s *Service) PostPaymentProcess(ctx context.Context, txn types.Transaction, order *types.Order) error {
	prev := order.Status

	switch txn.Action {
	case types.ActionAuth:
		order.StashAuth(txn.ParentTransactionID)
		switch txn.Status {
		case types.TxnStatusCompleted:
			order.OnAuthSuccess(txn.ParentTransactionID)
		case types.TxnStatusFailed, types.TxnStatusProcessingFailed:
			order.FailIncomingInvoice()
		case types.TxnStatusCreated, types.TxnStatusProcessing:
			// waiting on the provider
		default:
			return unexpectedTxnStatus(txn)
		}
	case types.ActionCaptureAuth:
		switch txn.Status {
		case types.TxnStatusCompleted:
			if order.CompleteIncomingInvoice() {
				if err := coverUncaptured(order, txn.Amount); err != nil {
					return err
				}
			}
		case types.TxnStatusFailed, types.TxnStatusProcessingFailed:
			order.FailIncomingInvoice()
			order.RefundingInvoice = nil
		case types.TxnStatusCreated, types.TxnStatusProcessing:
		default:
			return unexpectedTxnStatus(txn)
		}
	case types.ActionVoidAuth:
		// a void always ends the payin: nothing was captured
		order.FailIncomingInvoice()
	case types.ActionRefund:
		if order.RefundingInvoice != nil {
			switch txn.Status {
			case types.TxnStatusCompleted:
				order.RefundingInvoice.Status = types.InvoiceStatusCompleted
			case types.TxnStatusFailed, types.TxnStatusProcessingFailed:
				order.RefundingInvoice.Status = types.InvoiceStatusFailed
			}
		}
	case types.ActionPayout:
		// outgoing invoices are settled elsewhere
		return &types.UnexpectedStatusError{Entity: "transaction", ID: txn.TransactionID, Status: "PAYOUT unsupported"}
	default:
		return &types.UnexpectedStatusError{Entity: "transaction", ID: txn.TransactionID, Status: string(txn.Action)}
	}

	if err := s.save(ctx, order, prev); err != nil {
		return err
	}
	logging.FromContext(ctx, s.logger).Info("order updated from payment",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", txn.TransactionID),
		zap.String("action", string(txn.Action)),
		zap.String("transaction_status", string(txn.Status)),
		zap.String("order_status", string(order.Status)))
	return nil
}

// PostOrderProcessing fans the order status out to its purchase records
func (s *Service) PostOrderProcessing(ctx context.Context, order *types.Order, records []*types.PurchaseRecord) error {
	for _, rec := range records {
		if _, err := s.records.ApplyOrderStatus(ctx, rec, order); err != nil {
			return err
		}
	}
	return nil
}

// save persists order. prev is the status the order was loaded with: a
// change restarts the SLA clock and a move into a terminal status is counted.
func (s *Service) save(ctx context.Context, order *types.Order, prev types.OrderStatus) error {
	if order.Status != prev {
		order.StatusChangedAt = s.now()
	}
	if err := s.orders.Update(ctx, order); err != nil {
		return err
	}
	if !prev.IsTerminal() && order.IsTerminal() {
		s.metrics.OrdersSettled.WithLabelValues(string(order.Status)).Inc()
	}
	return nil
}

func unexpectedTxnStatus(txn types.Transaction) error {
	return &types.UnexpectedStatusError{Entity: "transaction", ID: txn.TransactionID, Status: string(txn.Status)}
}
