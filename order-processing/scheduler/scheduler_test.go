package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"go-fulfillment-saga/order-processing/types"
)

func TestEnqueueOrderStartsDelayedWorkflow(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("fulfill-order-o1")

	c.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "fulfill-order-o1" && o.TaskQueue == "q" && o.StartDelay == 10*time.Second
		}),
		FulfillOrderWorkflowName,
		types.FulfillmentRequest{OrderID: "o1", RetryBackoff: time.Hour},
	).Return(run, nil).Once()

	s := NewTemporalScheduler(c, "q", time.Hour, nil)
	require.NoError(t, s.Enqueue(context.Background(), Ref{Kind: KindOrder, ID: "o1"}, 10*time.Second))
	c.AssertExpectations(t)
}

func TestEnqueueRecordForceFail(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("force-fail-record-r1")

	c.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool { return o.ID == "force-fail-record-r1" }),
		ForceFailRecordWorkflowName,
		types.ForceFailRequest{RecordID: "r1", RetryBackoff: time.Hour},
	).Return(run, nil).Once()

	s := NewTemporalScheduler(c, "q", time.Hour, nil)
	require.NoError(t, s.Enqueue(context.Background(), Ref{Kind: KindPurchaseRecord, ID: "r1"}, 5*time.Second))
	c.AssertExpectations(t)
}

func TestEnqueueErrors(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable"))
	s := NewTemporalScheduler(c, "q", time.Hour, nil)

	err := s.Enqueue(context.Background(), Ref{Kind: KindOrder, ID: "o1"}, time.Second)
	assert.ErrorContains(t, err, "frontend unavailable")

	err = s.Enqueue(context.Background(), Ref{Kind: "invoice", ID: "i1"}, time.Second)
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "fulfill-order-o1", WorkflowID(Ref{Kind: KindOrder, ID: "o1"}))
	assert.Equal(t, "force-fail-record-r1", WorkflowID(Ref{Kind: KindPurchaseRecord, ID: "r1"}))
}
