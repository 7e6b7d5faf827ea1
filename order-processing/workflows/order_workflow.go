package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"go-fulfillment-saga/order-processing/types"
)

// StatusQuery returns the last FulfillmentResult of a running fulfillment
const StatusQuery = "get-status"

// maxRunsPerExecution bounds history growth; the loop continues as new
// after this many orchestrator runs
const maxRunsPerExecution = 100

const defaultRetryBackoff = time.Hour

// activityOptions retries transient faults on a fixed backoff and drops the
// permafail kinds
func activityOptions(backoff time.Duration) workflow.ActivityOptions {
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        backoff,
			BackoffCoefficient:     1,
			MaximumInterval:        backoff,
			NonRetryableErrorTypes: types.NonRetryableErrorTypes,
		},
	}
}

// FulfillOrderWorkflow re-invokes the orchestrator for one order until the
// order is terminal, sleeping for the delay each non-terminal run asks for
func FulfillOrderWorkflow(ctx workflow.Context, req types.FulfillmentRequest) (types.FulfillmentResult, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(req.RetryBackoff))
	logger := workflow.GetLogger(ctx)
	logger.Info("FulfillOrder workflow started", "orderID", req.OrderID)

	last := types.FulfillmentResult{OrderID: req.OrderID}
	err := workflow.SetQueryHandler(ctx, StatusQuery, func() (types.FulfillmentResult, error) {
		return last, nil
	})
	if err != nil {
		return last, err
	}

	for run := 0; run < maxRunsPerExecution; run++ {
		var result types.FulfillmentResult
		if err := workflow.ExecuteActivity(ctx, "FulfillOrder", req.OrderID).Get(ctx, &result); err != nil {
			logger.Error("Fulfillment run failed", "orderID", req.OrderID, "error", err)
			return last, err
		}
		last = result
		if result.Terminal {
			logger.Info("Order settled", "orderID", req.OrderID)
			return result, nil
		}

		logger.Info("Order not terminal, sleeping", "orderID", req.OrderID, "status", result.Status, "delay", result.NextDelay)
		if err := workflow.Sleep(ctx, result.NextDelay); err != nil {
			return last, err
		}
	}

	logger.Info("Continuing as new", "orderID", req.OrderID)
	return last, workflow.NewContinueAsNewError(ctx, FulfillOrderWorkflow, req)
}

// ForceFailPurchaseRecordWorkflow fails one purchase record
func ForceFailPurchaseRecordWorkflow(ctx workflow.Context, req types.ForceFailRequest) error {
	ctx = workflow.WithActivityOptions(ctx, activityOptions(req.RetryBackoff))
	logger := workflow.GetLogger(ctx)
	logger.Info("ForceFailPurchaseRecord workflow started", "recordID", req.RecordID)

	if err := workflow.ExecuteActivity(ctx, "ForceFailPurchaseRecord", req.RecordID).Get(ctx, nil); err != nil {
		logger.Error("Force fail failed", "recordID", req.RecordID, "error", err)
		return err
	}
	return nil
}
