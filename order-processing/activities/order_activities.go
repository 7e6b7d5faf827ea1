package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/types"
)

// OrderFulfiller runs one orchestrator pass over an order
type OrderFulfiller interface {
	Fulfill(ctx context.Context, orderID string) error
}

// RecordFailer fails a purchase record that ran out of time
type RecordFailer interface {
	ForceFail(ctx context.Context, recordID string) (*types.PurchaseRecord, error)
}

// FulfillmentActivities contains the recovery activities driven by the
// fulfillment workflows
type FulfillmentActivities struct {
	Orders  OrderFulfiller
	Records RecordFailer
}

// FulfillOrder runs the orchestrator once. A non-terminal order is not an
// error: the result carries the delay before the next run.
func (a *FulfillmentActivities) FulfillOrder(ctx context.Context, orderID string) (types.FulfillmentResult, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	logger.Info("Fulfilling order", "orderID", orderID, "attempt", info.Attempt)

	ctx = logging.WithCorrelationID(ctx, info.WorkflowExecution.ID)
	err := a.Orders.Fulfill(ctx, orderID)
	if op, ok := types.AsOrderProcessing(err); ok {
		logger.Info("Order not terminal yet", "orderID", orderID, "status", op.Status, "nextDelay", op.Delay)
		return types.FulfillmentResult{OrderID: orderID, Status: op.Status, NextDelay: op.Delay}, nil
	}
	if err != nil {
		logger.Error("Order fulfillment failed", "orderID", orderID, "error", err)
		return types.FulfillmentResult{}, classify(err)
	}

	logger.Info("Order settled", "orderID", orderID)
	return types.FulfillmentResult{OrderID: orderID, Terminal: true}, nil
}

// ForceFailPurchaseRecord fails a record left open past its order's SLA
func (a *FulfillmentActivities) ForceFailPurchaseRecord(ctx context.Context, recordID string) error {
	logger := activity.GetLogger(ctx)
	logger.Info("Force failing purchase record", "recordID", recordID)

	ctx = logging.WithCorrelationID(ctx, activity.GetInfo(ctx).WorkflowExecution.ID)
	record, err := a.Records.ForceFail(ctx, recordID)
	if err != nil {
		logger.Error("Force fail failed", "recordID", recordID, "error", err)
		return classify(err)
	}

	logger.Info("Purchase record closed", "recordID", recordID, "status", record.Status)
	return nil
}

// classify turns permafail kinds into non-retryable application errors so
// the scheduler drops them. Everything else is retried.
func classify(err error) error {
	if name, ok := types.IsPermanent(err); ok {
		return temporal.NewNonRetryableApplicationError(err.Error(), name, err)
	}
	return err
}
