package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/types"
)

// Kind says what a recovery task drives
type Kind string

const (
	KindOrder          Kind = "order"
	KindPurchaseRecord Kind = "purchase_record"
)

// Workflow type names registered by the worker
const (
	FulfillOrderWorkflowName    = "FulfillOrderWorkflow"
	ForceFailRecordWorkflowName = "ForceFailPurchaseRecordWorkflow"
)

// Ref points at the aggregate a recovery task works on
type Ref struct {
	Kind Kind
	ID   string
}

func (r Ref) String() string { return string(r.Kind) + "/" + r.ID }

// RecoveryScheduler runs a recovery task for ref after delay. Delivery is at
// least once; there is no ordering across refs.
type RecoveryScheduler interface {
	Enqueue(ctx context.Context, ref Ref, delay time.Duration) error
}

// TemporalScheduler starts one workflow per ref. The workflow id is derived
// from the ref, so a ref already in flight is not started twice.
type TemporalScheduler struct {
	client       client.Client
	taskQueue    string
	retryBackoff time.Duration
	logger       *zap.Logger
}

func NewTemporalScheduler(c client.Client, taskQueue string, retryBackoff time.Duration, logger *zap.Logger) *TemporalScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemporalScheduler{client: c, taskQueue: taskQueue, retryBackoff: retryBackoff, logger: logger}
}

// WorkflowID is the id of the workflow driving ref
func WorkflowID(ref Ref) string {
	switch ref.Kind {
	case KindOrder:
		return "fulfill-order-" + ref.ID
	case KindPurchaseRecord:
		return "force-fail-record-" + ref.ID
	}
	return string(ref.Kind) + "-" + ref.ID
}

func (s *TemporalScheduler) Enqueue(ctx context.Context, ref Ref, delay time.Duration) error {
	opts := client.StartWorkflowOptions{
		ID:         WorkflowID(ref),
		TaskQueue:  s.taskQueue,
		StartDelay: delay,
	}

	var (
		workflow string
		input    interface{}
	)
	switch ref.Kind {
	case KindOrder:
		workflow = FulfillOrderWorkflowName
		input = types.FulfillmentRequest{OrderID: ref.ID, RetryBackoff: s.retryBackoff}
	case KindPurchaseRecord:
		workflow = ForceFailRecordWorkflowName
		input = types.ForceFailRequest{RecordID: ref.ID, RetryBackoff: s.retryBackoff}
	default:
		return &types.ValidationError{Msg: fmt.Sprintf("unknown recovery kind %q", ref.Kind)}
	}

	we, err := s.client.ExecuteWorkflow(ctx, opts, workflow, input)
	if temporal.IsWorkflowExecutionAlreadyStartedError(err) {
		s.logger.Debug("recovery already in flight", zap.String("ref", ref.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", ref, err)
	}
	s.logger.Info("recovery enqueued",
		zap.String("ref", ref.String()),
		zap.String("workflow_id", we.GetID()),
		zap.Duration("delay", delay))
	return nil
}
