package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItems() []LineItem {
	return []LineItem{
		{ProductCode: "render", ProductName: "Render", Amount: usd(1000), Type: LineItemBaseProduct},
		{ProductCode: "hd", ProductName: "HD", Amount: usd(500), Type: LineItemAddOnProduct},
	}
}

func sampleOrder(status OrderStatus, since time.Time) *Order {
	inv, _ := NewInvoice("Render x 1\n", "user-1", InvoiceIncoming, "ins-1", sampleItems())
	return &Order{
		OrderID:           "order-1",
		UserID:            "user-1",
		Status:            status,
		CreatedAt:         since,
		UpdatedAt:         since,
		StatusChangedAt:   since,
		PurchaseRecordIDs: []string{"rec-1"},
		IncomingInvoice:   inv,
	}
}

func TestNewInvoice_AmountIsSumOfLineItems(t *testing.T) {
	cases := [][]LineItem{
		sampleItems(),
		{{ProductCode: "x", Amount: usd(0), Type: LineItemBaseProduct}},
		{
			{ProductCode: "x", Amount: usd(1), Type: LineItemBaseProduct},
			{ProductCode: "y", Amount: usd(2), Type: LineItemAddOnProduct},
			{ProductCode: "z", Amount: usd(3), Type: LineItemSalesTax},
		},
	}
	for _, items := range cases {
		inv, err := NewInvoice("n", "c", InvoiceIncoming, "", items)
		require.NoError(t, err)
		var sum int64
		for _, li := range inv.LineItems {
			sum += li.Amount.Amount
		}
		assert.Equal(t, sum, inv.Amount.Amount)
		assert.Equal(t, InvoiceStatusCreated, inv.Status)
	}
}

func TestNewInvoice_Rejects(t *testing.T) {
	_, err := NewInvoice("n", "c", InvoiceIncoming, "", nil)
	assert.IsType(t, &InvoiceCreationError{}, err)

	_, err = NewInvoice("n", "c", InvoiceIncoming, "", []LineItem{
		{ProductCode: "a", Amount: usd(1)},
		{ProductCode: "b", Amount: NewMoney(1, "EUR", 2)},
	})
	assert.IsType(t, &InvoiceCreationError{}, err)
}

func TestOrder_Transitions(t *testing.T) {
	now := time.Now().UTC()
	o := sampleOrder(OrderStatusCreated, now)

	assert.False(t, o.CompleteIncomingInvoice(), "cannot capture before auth")
	require.True(t, o.OnAuthSuccess("auth-1"))
	assert.Equal(t, OrderStatusBooked, o.Status)
	assert.Equal(t, InvoiceStatusPending, o.IncomingInvoice.Status)
	assert.Equal(t, "auth-1", o.AuthTransactionID())

	assert.False(t, o.OnAuthSuccess("auth-2"))
	assert.Equal(t, "auth-1", o.AuthTransactionID())

	require.True(t, o.CompleteIncomingInvoice())
	assert.Equal(t, OrderStatusFulfilled, o.Status)
	assert.Equal(t, InvoiceStatusCompleted, o.IncomingInvoice.Status)

	assert.False(t, o.FailIncomingInvoice(), "fulfilled orders cannot fail")
	require.True(t, o.CompleteOrder())
	assert.True(t, o.IsTerminal())
	assert.False(t, o.CompleteOrder())
}

func TestOrder_FailIsTerminal(t *testing.T) {
	o := sampleOrder(OrderStatusBooked, time.Now().UTC())
	require.True(t, o.FailIncomingInvoice())
	assert.Equal(t, InvoiceStatusFailed, o.IncomingInvoice.Status)
	assert.False(t, o.FailIncomingInvoice())
	assert.False(t, o.OnAuthSuccess("late-auth"))
	assert.Equal(t, OrderStatusFailed, o.Status)
}

func TestOrder_IsOverSLA(t *testing.T) {
	now := time.Now().UTC()
	policy := DefaultSLAPolicy()

	assert.True(t, sampleOrder(OrderStatusCreated, now).IsOverSLA(now, policy), "created orders have a zero-width SLA")

	assert.False(t, sampleOrder(OrderStatusBooked, now.Add(-23*time.Hour)).IsOverSLA(now, policy))
	assert.True(t, sampleOrder(OrderStatusBooked, now.Add(-25*time.Hour)).IsOverSLA(now, policy))

	for _, s := range []OrderStatus{OrderStatusCompleted, OrderStatusFailed} {
		assert.False(t, sampleOrder(s, now.Add(-1000*time.Hour)).IsOverSLA(now, policy))
	}

	policy.OrderCreated = time.Hour
	assert.False(t, sampleOrder(OrderStatusCreated, now).IsOverSLA(now, policy))
}

func TestOrder_SLAIgnoresWritesWithoutStatusChange(t *testing.T) {
	now := time.Now().UTC()
	policy := DefaultSLAPolicy()
	policy.OrderCreated = time.Hour

	o := sampleOrder(OrderStatusCreated, now.Add(-2*time.Hour))
	o.UpdatedAt = now
	assert.True(t, o.IsOverSLA(now, policy))
	deadline, ok := o.SLADeadline(policy)
	require.True(t, ok)
	assert.Equal(t, now.Add(-time.Hour), deadline)

	// documents written before the stamp existed fall back to CreatedAt
	o.StatusChangedAt = time.Time{}
	assert.Equal(t, o.CreatedAt, o.StatusSince())
}

func TestTransaction_Builders(t *testing.T) {
	o := sampleOrder(OrderStatusCreated, time.Now().UTC())

	auth, err := NewAuthTransaction(*o)
	require.NoError(t, err)
	assert.Equal(t, auth.TransactionID, auth.ParentTransactionID)
	assert.Equal(t, ActionAuth, auth.Action)
	assert.Equal(t, o.IncomingInvoice.Amount, auth.Amount)

	_, err = NewSettlementTransaction(*o, ActionCaptureAuth, usd(10))
	assert.IsType(t, &PaymentCreationError{}, err, "no auth recorded yet")

	o.OnAuthSuccess(auth.TransactionID)
	capture, err := NewSettlementTransaction(*o, ActionCaptureAuth, usd(10))
	require.NoError(t, err)
	assert.Equal(t, auth.TransactionID, capture.ParentTransactionID)
	assert.NotEqual(t, capture.TransactionID, capture.ParentTransactionID)
	assert.Equal(t, auth.TransactionID+"-capture", capture.TransactionID)

	void, err := NewSettlementTransaction(*o, ActionVoidAuth, o.IncomingInvoice.Amount)
	require.NoError(t, err)
	assert.NotEqual(t, capture.TransactionID, void.TransactionID)
}
