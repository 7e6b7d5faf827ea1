package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fulfillment-saga/order-processing/payments"
	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/types"
)

func requireRescheduled(t *testing.T, err error, status types.OrderStatus, delay time.Duration) {
	t.Helper()
	op, ok := types.AsOrderProcessing(err)
	require.True(t, ok, "expected a reschedule, got %v", err)
	assert.Equal(t, status, op.Status)
	assert.Equal(t, delay, op.Delay)
}

func TestFulfillAllCompletedCaptures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_visa", 1000, 500)
	for _, id := range resp.RecordIDs {
		h.advance(t, id, types.RecordStatusProcessing, types.RecordStatusCompleted)
	}

	err := h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusFulfilled, 5*time.Second)

	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusFulfilled, order.Status)
	assert.Equal(t, types.InvoiceStatusCompleted, order.IncomingInvoice.Status)
	assert.Nil(t, order.RefundingInvoice)

	capture, err := h.txns.GetByID(ctx, types.SettlementTransactionID(order.AuthTransactionID(), types.ActionCaptureAuth))
	require.NoError(t, err)
	assert.Equal(t, types.TxnStatusCompleted, capture.Status)
	assert.Equal(t, int64(1500), capture.Amount.Amount)

	// the next run closes the order without touching the provider again
	require.NoError(t, h.svc.Fulfill(ctx, resp.OrderID))
	assert.Equal(t, types.OrderStatusCompleted, h.order(t, resp.OrderID).Status)
	assert.Equal(t, 1, h.sandbox.Calls(types.ActionCaptureAuth))
}

func TestFulfillAllFailedVoids(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_visa", 1000, 500)
	h.advance(t, resp.RecordIDs[0], types.RecordStatusFailed)
	h.advance(t, resp.RecordIDs[1], types.RecordStatusProcessing, types.RecordStatusFailed)

	require.NoError(t, h.svc.Fulfill(ctx, resp.OrderID))

	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusFailed, order.Status)
	assert.Equal(t, types.InvoiceStatusFailed, order.IncomingInvoice.Status)
	assert.Equal(t, 1, h.sandbox.Calls(types.ActionVoidAuth))
	assert.Equal(t, 0, h.sandbox.Calls(types.ActionCaptureAuth))

	void, err := h.txns.GetByID(ctx, types.SettlementTransactionID(order.AuthTransactionID(), types.ActionVoidAuth))
	require.NoError(t, err)
	assert.Equal(t, types.TxnStatusCompleted, void.Status)
}

func TestFulfillOverSLAPartialCapture(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_visa", 1000, 500)
	done, pending := resp.RecordIDs[0], resp.RecordIDs[1]
	h.advance(t, done, types.RecordStatusProcessing, types.RecordStatusCompleted)
	h.advance(t, pending, types.RecordStatusProcessing)

	h.clock.t = h.clock.t.Add(25 * time.Hour)
	err := h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusFulfilled, 5*time.Second)

	order := h.order(t, resp.OrderID)
	capture, err := h.txns.GetByID(ctx, types.SettlementTransactionID(order.AuthTransactionID(), types.ActionCaptureAuth))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), capture.Amount.Amount)

	require.NotNil(t, order.RefundingInvoice)
	assert.Equal(t, int64(1500-1000), order.RefundingInvoice.Amount.Amount)
	assert.Equal(t, "Refunds", order.RefundingInvoice.Name)
	assert.Equal(t, types.InvoiceOutgoing, order.RefundingInvoice.Direction)
	assert.Equal(t, order.AuthTransactionID(), order.RefundingInvoice.ParentTransactionID)

	forced, ok := h.sched.find(scheduler.KindPurchaseRecord, pending)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, forced.delay)
	_, ok = h.sched.find(scheduler.KindPurchaseRecord, done)
	assert.False(t, ok)
}

func TestFulfillOverSLANothingCompletedVoids(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_visa", 1000, 500)
	h.advance(t, resp.RecordIDs[0], types.RecordStatusProcessing)

	h.clock.t = h.clock.t.Add(25 * time.Hour)
	require.NoError(t, h.svc.Fulfill(ctx, resp.OrderID))

	assert.Equal(t, types.OrderStatusFailed, h.order(t, resp.OrderID).Status)
	assert.Equal(t, 0, h.sandbox.Calls(types.ActionCaptureAuth))
	assert.Equal(t, 1, h.sandbox.Calls(types.ActionVoidAuth))
	for _, id := range resp.RecordIDs {
		_, ok := h.sched.find(scheduler.KindPurchaseRecord, id)
		assert.True(t, ok, "record %s should be force failed", id)
	}
}

func TestFulfillBookedWithinSLAWaits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_visa", 1000, 500)
	h.advance(t, resp.RecordIDs[0], types.RecordStatusProcessing, types.RecordStatusCompleted)

	err := h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusBooked, 15*time.Minute)
	assert.Equal(t, 0, h.sandbox.Calls(types.ActionCaptureAuth))
	assert.Equal(t, 0, h.sandbox.Calls(types.ActionVoidAuth))
}

func TestFulfillTerminalOrderWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_decline", 1000)
	require.Equal(t, types.OrderStatusFailed, resp.Status)

	h.orders.writes = 0
	for i := 0; i < 3; i++ {
		require.NoError(t, h.svc.Fulfill(ctx, resp.OrderID))
	}
	assert.Equal(t, 0, h.orders.writes)
}

func TestFulfillCreatedOverSLAFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_pending", 1000)
	require.Equal(t, types.OrderStatusCreated, resp.Status)

	require.NoError(t, h.svc.Fulfill(ctx, resp.OrderID))

	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusFailed, order.Status)
	assert.Equal(t, types.InvoiceStatusFailed, order.IncomingInvoice.Status)
	assert.Equal(t, 0, h.sandbox.Calls(types.ActionVoidAuth))
	// failed orders leave their records where they are
	assert.Equal(t, types.RecordStatusCreated, h.record(t, resp.RecordIDs[0]).Status)
}

func TestFulfillCreatedReprocessesPendingAuth(t *testing.T) {
	ctx := context.Background()
	sla := types.DefaultSLAPolicy()
	sla.OrderCreated = time.Hour
	h := newHarness(t, sla)
	resp := h.create(t, "tok_pending", 1000)

	// still pending: the order waits for the next run
	err := h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusCreated, time.Minute)

	auth, err := h.txns.GetByID(ctx, resp.PaymentResult.TransactionID)
	require.NoError(t, err)
	require.True(t, h.sandbox.SetIntentStatus(auth.ProviderTransactionID, "requires_capture"))

	err = h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusBooked, 15*time.Minute)
	assert.Equal(t, types.RecordStatusReady, h.record(t, resp.RecordIDs[0]).Status)
}

func TestFulfillCreatedPendingAuthFailsAfterSLA(t *testing.T) {
	ctx := context.Background()
	sla := types.DefaultSLAPolicy()
	sla.OrderCreated = time.Hour
	h := newHarness(t, sla)
	resp := h.create(t, payments.SandboxTokenPending, 1000)

	// every run rewrites the order without moving it out of CREATED
	for i := 0; i < 6; i++ {
		err := h.svc.Fulfill(ctx, resp.OrderID)
		requireRescheduled(t, err, types.OrderStatusCreated, time.Minute)
		h.clock.t = h.clock.t.Add(10 * time.Minute)
	}
	h.clock.t = h.clock.t.Add(10 * time.Minute)

	require.NoError(t, h.svc.Fulfill(ctx, resp.OrderID))
	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusFailed, order.Status)
	assert.True(t, order.StatusChangedAt.Equal(h.clock.t))
}

func TestFulfillResumesSentPartialCapture(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	h.sandbox.HoldCaptures(true)
	resp := h.create(t, "tok_visa", 1000, 500)
	done, pending := resp.RecordIDs[0], resp.RecordIDs[1]
	h.advance(t, done, types.RecordStatusProcessing, types.RecordStatusCompleted)
	h.advance(t, pending, types.RecordStatusProcessing)

	h.clock.t = h.clock.t.Add(25 * time.Hour)
	err := h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusBooked, time.Minute)

	order := h.order(t, resp.OrderID)
	captureID := types.SettlementTransactionID(order.AuthTransactionID(), types.ActionCaptureAuth)
	require.NotNil(t, order.RefundingInvoice)
	assert.Equal(t, int64(500), order.RefundingInvoice.Amount.Amount)

	// the late record does not change what was already sent
	h.advance(t, pending, types.RecordStatusCompleted)
	err = h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusBooked, time.Minute)
	capture, err := h.txns.GetByID(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), capture.Amount.Amount)
	assert.Equal(t, types.TxnStatusProcessing, capture.Status)

	require.True(t, h.sandbox.SetIntentStatus(capture.ProviderTransactionID, "succeeded"))
	err = h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusFulfilled, 5*time.Second)

	order = h.order(t, resp.OrderID)
	capture, err = h.txns.GetByID(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, types.TxnStatusCompleted, capture.Status)
	require.NotNil(t, order.RefundingInvoice)
	total, err := capture.Amount.Add(order.RefundingInvoice.Amount)
	require.NoError(t, err)
	assert.Equal(t, order.IncomingInvoice.Amount, total)
	assert.Equal(t, 3, h.sandbox.Calls(types.ActionCaptureAuth))
}

func TestFulfillPendingCaptureThenProviderEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	h.sandbox.HoldCaptures(true)
	resp := h.create(t, "tok_visa", 1000, 500)
	h.advance(t, resp.RecordIDs[0], types.RecordStatusProcessing, types.RecordStatusCompleted)

	h.clock.t = h.clock.t.Add(25 * time.Hour)
	err := h.svc.Fulfill(ctx, resp.OrderID)
	requireRescheduled(t, err, types.OrderStatusBooked, time.Minute)

	captureID := types.SettlementTransactionID(h.order(t, resp.OrderID).AuthTransactionID(), types.ActionCaptureAuth)
	require.NoError(t, h.svc.ApplyProviderEvent(ctx, payments.ProviderEvent{
		EventID:       "evt-capture",
		TransactionID: captureID,
		Status:        types.TxnStatusCompleted,
	}))

	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusFulfilled, order.Status)
	require.NotNil(t, order.RefundingInvoice)
	assert.Equal(t, int64(500), order.RefundingInvoice.Amount.Amount)
	assert.Equal(t, order.AuthTransactionID(), order.RefundingInvoice.ParentTransactionID)
}

func TestShortCaptureWithoutRefundingInvoiceGetsOne(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, types.DefaultSLAPolicy())
	resp := h.create(t, "tok_visa", 1000, 500)
	order := h.order(t, resp.OrderID)
	require.Nil(t, order.RefundingInvoice)

	capture, err := types.NewSettlementTransaction(*order, types.ActionCaptureAuth, types.NewMoney(1000, "USD", 2))
	require.NoError(t, err)
	capture.Status = types.TxnStatusCompleted
	require.NoError(t, h.svc.PostPaymentProcess(ctx, capture, order))

	stored := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusFulfilled, stored.Status)
	require.NotNil(t, stored.RefundingInvoice)
	assert.Equal(t, int64(500), stored.RefundingInvoice.Amount.Amount)
	require.Len(t, stored.RefundingInvoice.LineItems, 1)
	assert.Equal(t, types.LineItemUserPurchases, stored.RefundingInvoice.LineItems[0].Type)
}

func TestFulfillUnknownOrder(t *testing.T) {
	h := newHarness(t, types.DefaultSLAPolicy())
	err := h.svc.Fulfill(context.Background(), "missing")
	var nf *types.DataNotFoundError
	require.ErrorAs(t, err, &nf)
	_, permanent := types.IsPermanent(err)
	assert.True(t, permanent)
}
