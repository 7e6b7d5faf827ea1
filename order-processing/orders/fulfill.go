package orders

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/types"
)

const (
	outcomeTerminal    = "terminal"
	outcomeRescheduled = "rescheduled"
	outcomeError       = "error"
)

// Fulfill runs one orchestrator pass over an order. It returns nil once the
// order is terminal and an *types.OrderProcessingError carrying the next
// delay while it is not. Any other error is a fault for the scheduler to
// classify.
func (s *Service) Fulfill(ctx context.Context, orderID string) error {
	logger := logging.FromContext(ctx, s.logger).With(zap.String("order_id", orderID))

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		s.metrics.FulfillmentRuns.WithLabelValues(outcomeError).Inc()
		return err
	}
	if order.IsTerminal() {
		logger.Info("order already terminal", zap.String("status", string(order.Status)))
		s.metrics.FulfillmentRuns.WithLabelValues(outcomeTerminal).Inc()
		return nil
	}

	switch order.Status {
	case types.OrderStatusCreated:
		err = s.fulfillCreated(ctx, order)
	case types.OrderStatusBooked:
		err = s.fulfillBooked(ctx, order)
	case types.OrderStatusFulfilled:
		err = s.fulfillFulfilled(ctx, order)
	default:
		err = &types.UnexpectedStatusError{Entity: "order", ID: order.OrderID, Status: string(order.Status)}
	}
	if err != nil {
		logger.Error("fulfillment failed", zap.String("status", string(order.Status)), zap.Error(err))
		s.metrics.FulfillmentRuns.WithLabelValues(outcomeError).Inc()
		return err
	}

	if order.IsTerminal() {
		logger.Info("order settled", zap.String("status", string(order.Status)))
		s.metrics.FulfillmentRuns.WithLabelValues(outcomeTerminal).Inc()
		return nil
	}
	delay := s.NextRecoverySchedule(order)
	logger.Info("order not terminal yet",
		zap.String("status", string(order.Status)),
		zap.Duration("next_run_in", delay))
	s.metrics.FulfillmentRuns.WithLabelValues(outcomeRescheduled).Inc()
	return &types.OrderProcessingError{OrderID: order.OrderID, Status: order.Status, Delay: delay}
}

// fulfillCreated resolves an order whose auth never completed
func (s *Service) fulfillCreated(ctx context.Context, order *types.Order) error {
	recs, err := s.loadRecords(ctx, order)
	if err != nil {
		return err
	}

	authID := order.AuthTransactionID()
	if authID == "" || order.IsOverSLA(s.now(), s.sla) {
		// the auth never completed so there is nothing to void
		prev := order.Status
		order.FailIncomingInvoice()
		if err := s.save(ctx, order, prev); err != nil {
			return err
		}
		logging.FromContext(ctx, s.logger).Info("created order failed",
			zap.String("order_id", order.OrderID),
			zap.Bool("has_auth", authID != ""))
		return s.PostOrderProcessing(ctx, order, recs)
	}

	auth, err := s.payments.Reprocess(ctx, authID)
	if err != nil {
		return err
	}
	if err := s.PostPaymentProcess(ctx, auth, order); err != nil {
		return err
	}
	return s.PostOrderProcessing(ctx, order, recs)
}

// fulfillBooked settles the auth once the records allow it
func (s *Service) fulfillBooked(ctx context.Context, order *types.Order) error {
	recs, err := s.loadRecords(ctx, order)
	if err != nil {
		return err
	}

	// a settlement sent on an earlier run is followed through, never re-sent
	// with amounts recomputed from the records
	for _, action := range []types.TransactionAction{types.ActionCaptureAuth, types.ActionVoidAuth} {
		sent, err := s.sentSettlement(ctx, order, action)
		if err != nil {
			return err
		}
		if sent != nil {
			return s.resumeSettlement(ctx, order, recs, sent.TransactionID)
		}
	}

	allCompleted, allFailed := true, true
	for _, rec := range recs {
		allCompleted = allCompleted && rec.IsCompleted()
		allFailed = allFailed && rec.IsFailed()
	}

	switch {
	case allCompleted:
		return s.settle(ctx, order, recs, types.ActionCaptureAuth, order.IncomingInvoice.Amount)
	case allFailed:
		return s.settle(ctx, order, recs, types.ActionVoidAuth, order.IncomingInvoice.Amount)
	case order.IsOverSLA(s.now(), s.sla):
		return s.settlePartial(ctx, order, recs)
	}
	logging.FromContext(ctx, s.logger).Debug("records still in flight", zap.String("order_id", order.OrderID))
	return nil
}

// sentSettlement returns the order's capture or void when one was stored
func (s *Service) sentSettlement(ctx context.Context, order *types.Order, action types.TransactionAction) (*types.Transaction, error) {
	txn, err := s.txns.GetByID(ctx, types.SettlementTransactionID(order.AuthTransactionID(), action))
	var notFound *types.DataNotFoundError
	if errors.As(err, &notFound) {
		return nil, nil
	}
	return txn, err
}

func (s *Service) resumeSettlement(ctx context.Context, order *types.Order, recs []*types.PurchaseRecord, transactionID string) error {
	result, err := s.payments.Reprocess(ctx, transactionID)
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.logger).Info("settlement resumed",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID),
		zap.String("action", string(result.Action)),
		zap.Int64("amount", result.Amount.Amount),
		zap.String("status", string(result.Status)))
	if err := s.PostPaymentProcess(ctx, result, order); err != nil {
		return err
	}
	return s.PostOrderProcessing(ctx, order, recs)
}

// settlePartial captures what was delivered, fails what was not and
// records the difference as a refunding invoice
func (s *Service) settlePartial(ctx context.Context, order *types.Order, recs []*types.PurchaseRecord) error {
	captured := order.IncomingInvoice.Amount.Zero()
	var refundItems []types.LineItem
	for _, rec := range recs {
		if rec.IsCompleted() {
			total, err := rec.Total()
			if err != nil {
				return err
			}
			if captured, err = captured.Add(total); err != nil {
				return err
			}
			continue
		}
		refundItems = append(refundItems, rec.LineItems...)
		if rec.IsTerminal() {
			continue
		}
		ref := scheduler.Ref{Kind: scheduler.KindPurchaseRecord, ID: rec.RecordID}
		if err := s.enqueue(ctx, ref, s.schedule.ForceFailDelay); err != nil {
			return err
		}
	}

	logging.FromContext(ctx, s.logger).Warn("booked order over SLA, settling partially",
		zap.String("order_id", order.OrderID),
		zap.Int64("captured", captured.Amount),
		zap.Int("refund_items", len(refundItems)))

	if captured.IsZero() {
		return s.settle(ctx, order, recs, types.ActionVoidAuth, order.IncomingInvoice.Amount)
	}
	if len(refundItems) > 0 {
		// attached before the capture is sent so an asynchronous completion
		// finds it on the order
		refunding, err := refundingInvoice(order, captured, refundItems)
		if err != nil {
			return err
		}
		order.RefundingInvoice = refunding
	}
	return s.settle(ctx, order, recs, types.ActionCaptureAuth, captured)
}

func (s *Service) settle(
	ctx context.Context,
	order *types.Order,
	recs []*types.PurchaseRecord,
	action types.TransactionAction,
	amount types.Money,
) error {
	txn, err := types.NewSettlementTransaction(*order, action, amount)
	if err != nil {
		return err
	}
	result, err := s.payments.Process(ctx, txn)
	if err != nil {
		return err
	}
	logging.FromContext(ctx, s.logger).Info("settlement processed",
		zap.String("order_id", order.OrderID),
		zap.String("transaction_id", result.TransactionID),
		zap.String("action", string(action)),
		zap.String("status", string(result.Status)))

	if err := s.PostPaymentProcess(ctx, result, order); err != nil {
		return err
	}
	return s.PostOrderProcessing(ctx, order, recs)
}

// refundingInvoice covers what the auth held beyond the capture
func refundingInvoice(order *types.Order, captured types.Money, items []types.LineItem) (*types.Invoice, error) {
	invoice, err := types.NewInvoice("Refunds", order.UserID, types.InvoiceOutgoing, order.IncomingInvoice.InstrumentID, items)
	if err != nil {
		return nil, err
	}
	invoice.ParentTransactionID = order.AuthTransactionID()

	expected, err := order.IncomingInvoice.Amount.Subtract(captured)
	if err != nil {
		return nil, &types.InvoiceCreationError{Msg: err.Error()}
	}
	if ok, err := invoice.Amount.Equals(expected); err != nil || !ok {
		return nil, &types.InvoiceCreationError{
			Msg: fmt.Sprintf("refund amount %d does not match uncaptured amount %d", invoice.Amount.Amount, expected.Amount),
		}
	}
	return &invoice, nil
}

// coverUncaptured attaches a refunding invoice for a short capture whose
// order does not carry one yet
func coverUncaptured(order *types.Order, captured types.Money) error {
	if order.RefundingInvoice != nil {
		return nil
	}
	rest, err := order.IncomingInvoice.Amount.Subtract(captured)
	if err != nil {
		return &types.InvoiceCreationError{Msg: err.Error()}
	}
	if rest.IsZero() || rest.IsNegative() {
		return nil
	}
	refunding, err := refundingInvoice(order, captured, []types.LineItem{{
		ProductCode: "uncaptured",
		ProductName: "Uncaptured amount",
		Amount:      rest,
		Type:        types.LineItemUserPurchases,
	}})
	if err != nil {
		return err
	}
	order.RefundingInvoice = refunding
	return nil
}

func (s *Service) fulfillFulfilled(ctx context.Context, order *types.Order) error {
	prev := order.Status
	if !order.CompleteOrder() {
		return nil
	}
	return s.save(ctx, order, prev)
}
