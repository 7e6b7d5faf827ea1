package orders

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fulfillment-saga/order-processing/config"
	"go-fulfillment-saga/order-processing/metrics"
	"go-fulfillment-saga/order-processing/payments"
	"go-fulfillment-saga/order-processing/records"
	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/storage"
	"go-fulfillment-saga/order-processing/types"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type enqueued struct {
	ref   scheduler.Ref
	delay time.Duration
}

type fakeScheduler struct {
	mu    sync.Mutex
	calls []enqueued
}

func (f *fakeScheduler) Enqueue(_ context.Context, ref scheduler.Ref, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueued{ref: ref, delay: delay})
	return nil
}

func (f *fakeScheduler) find(kind scheduler.Kind, id string) (enqueued, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.ref.Kind == kind && c.ref.ID == id {
			return c, true
		}
	}
	return enqueued{}, false
}

// countingOrders counts writes so terminal runs can be checked for none
type countingOrders struct {
	storage.OrderStore
	writes int
}

func (c *countingOrders) Create(ctx context.Context, order *types.Order) error {
	c.writes++
	return c.OrderStore.Create(ctx, order)
}

func (c *countingOrders) Update(ctx context.Context, order *types.Order) error {
	c.writes++
	return c.OrderStore.Update(ctx, order)
}

type harness struct {
	svc         *Service
	records     *records.Service
	sandbox     *payments.SandboxAdapter
	orders      *countingOrders
	txns        *storage.TransactionRepository
	instruments *storage.InstrumentRepository
	sched       *fakeScheduler
	clock       *clock
}

func testSchedule() config.ScheduleConfig {
	return config.ScheduleConfig{
		CreatedRecoveryDelay:    time.Minute,
		BookedPollInterval:      15 * time.Minute,
		FulfilledRecoveryDelay:  5 * time.Second,
		InitialFulfillmentDelay: 10 * time.Second,
		ForceFailDelay:          5 * time.Second,
		TransientRetryBackoff:   time.Hour,
	}
}

func newHarness(t *testing.T, sla types.SLAPolicy, opts ...Option) *harness {
	t.Helper()
	docs := storage.NewMemoryStore()
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	h := &harness{
		orders:      &countingOrders{OrderStore: storage.NewOrderRepository(docs).WithClock(c.now)},
		txns:        storage.NewTransactionRepository(docs).WithClock(c.now),
		instruments: storage.NewInstrumentRepository(docs),
		sandbox:     payments.NewSandboxAdapter("sandbox"),
		sched:       &fakeScheduler{},
		clock:       c,
	}
	h.records = records.NewService(storage.NewPurchaseRecordRepository(docs), sla, nil, records.WithClock(c.now))

	registry, err := payments.NewRegistry("sandbox", h.sandbox)
	require.NoError(t, err)
	m := metrics.NewRegistry()
	h.svc = NewService(Deps{
		Orders:       h.orders,
		Transactions: h.txns,
		Records:      h.records,
		Payments:     payments.NewProcessor(h.txns, h.instruments, registry, m, nil),
		Scheduler:    h.sched,
		Metrics:      m,
	}, sla, testSchedule(), append([]Option{WithClock(c.now)}, opts...)...)
	return h
}

func item(code, name string, amount int64) types.LineItem {
	return types.LineItem{
		ProductCode: code,
		ProductName: name,
		Amount:      types.NewMoney(amount, "USD", 2),
		Type:        types.LineItemBaseProduct,
	}
}

// create places an order paid with token, one purchase per amount. An empty
// token creates the order without an instrument.
func (h *harness) create(t *testing.T, token string, amounts ...int64) *CreateOrderResponse {
	t.Helper()
	ctx := context.Background()
	req := CreateOrderRequest{UserID: "user-1"}
	if token != "" {
		req.InstrumentID = types.NewID()
		require.NoError(t, h.instruments.Create(ctx, &types.Instrument{
			InstrumentID: req.InstrumentID,
			UserID:       "user-1",
			Tokens:       []types.ProviderToken{{Token: token, Provider: "sandbox"}},
		}))
	}
	for i, amount := range amounts {
		req.Purchases = append(req.Purchases, PurchaseRequest{
			Description: fmt.Sprintf("purchase %d", i),
			Entity:      "portraits",
			LineItems:   []types.LineItem{item(fmt.Sprintf("p-%d", i), fmt.Sprintf("Portrait %d", i), amount)},
		})
	}
	resp, err := h.svc.Create(ctx, req)
	require.NoError(t, err)
	return resp
}

func (h *harness) order(t *testing.T, id string) *types.Order {
	t.Helper()
	order, err := h.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) record(t *testing.T, id string) *types.PurchaseRecord {
	t.Helper()
	rec, err := h.records.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *harness) advance(t *testing.T, id string, statuses ...types.PurchaseRecordStatus) {
	t.Helper()
	for _, s := range statuses {
		_, err := h.records.Advance(context.Background(), id, s)
		require.NoError(t, err)
	}
}

func TestCreateAuthSuccessBooksOrder(t *testing.T) {
	h := newHarness(t, types.DefaultSLAPolicy())

	resp := h.create(t, "tok_visa", 1500)

	assert.Equal(t, types.OrderStatusBooked, resp.Status)
	assert.Nil(t, resp.ErrorDetails)
	require.NotNil(t, resp.PaymentResult)
	assert.Equal(t, types.TxnStatusCompleted, resp.PaymentResult.Status)

	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.OrderStatusBooked, order.Status)
	assert.Equal(t, types.InvoiceStatusPending, order.IncomingInvoice.Status)
	assert.Equal(t, resp.PaymentResult.TransactionID, order.AuthTransactionID())
	assert.Equal(t, "Portrait 0 x 1", order.IncomingInvoice.Name)
	assert.Equal(t, int64(1500), order.IncomingInvoice.Amount.Amount)

	require.Len(t, resp.RecordIDs, 1)
	rec := h.record(t, resp.RecordIDs[0])
	assert.Equal(t, types.RecordStatusReady, rec.Status)
	assert.Equal(t, order.OrderID, rec.OrderID)

	scheduled, ok := h.sched.find(scheduler.KindOrder, order.OrderID)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, scheduled.delay)
}

func TestCreateAuthDeclined(t *testing.T) {
	h := newHarness(t, types.DefaultSLAPolicy())

	resp := h.create(t, payments.SandboxTokenDecline, 1500)

	assert.Equal(t, types.OrderStatusFailed, resp.Status)
	require.NotNil(t, resp.ErrorDetails)
	assert.Equal(t, "PaymentFailure", resp.ErrorDetails.ErrorType)
	assert.Equal(t, "Auth was declined", resp.ErrorDetails.ErrorDetails)
	assert.Equal(t, types.TxnStatusFailed, resp.PaymentResult.Status)

	order := h.order(t, resp.OrderID)
	assert.Equal(t, types.InvoiceStatusFailed, order.IncomingInvoice.Status)

	txn, err := h.txns.GetByID(context.Background(), resp.PaymentResult.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, types.TxnStatusFailed, txn.Status)
	require.NotNil(t, txn.ProviderErrorDetails)
	assert.Equal(t, "card_error", txn.ProviderErrorDetails.Type)

	// the orchestrator has nothing left to do and never captures
	require.NoError(t, h.svc.Fulfill(context.Background(), resp.OrderID))
	assert.Equal(t, 0, h.sandbox.Calls(types.ActionCaptureAuth))
}

func TestCreateWithoutInstrumentReturnsClientSecret(t *testing.T) {
	h := newHarness(t, types.DefaultSLAPolicy())

	resp := h.create(t, "", 900)

	assert.Equal(t, types.OrderStatusCreated, resp.Status)
	assert.Equal(t, types.TxnStatusCreated, resp.PaymentResult.Status)
	assert.NotEmpty(t, resp.PaymentResult.ClientSecret)
	assert.Nil(t, resp.ErrorDetails)

	order := h.order(t, resp.OrderID)
	assert.Equal(t, resp.PaymentResult.TransactionID, order.AuthTransactionID())
	assert.Equal(t, types.RecordStatusCreated, h.record(t, resp.RecordIDs[0]).Status)
}

func TestCreateInvoiceNamesEveryPurchase(t *testing.T) {
	h := newHarness(t, types.DefaultSLAPolicy())

	resp := h.create(t, "tok_visa", 1000, 500)

	order := h.order(t, resp.OrderID)
	assert.Equal(t, "Portrait 0 x 1\nPortrait 1 x 1", order.IncomingInvoice.Name)
	assert.Equal(t, int64(1500), order.IncomingInvoice.Amount.Amount)
	assert.Equal(t, "portraits", order.Entity)
	assert.Equal(t, resp.RecordIDs, order.PurchaseRecordIDs)
}

func TestCreateValidation(t *testing.T) {
	usd := item("p-1", "Portrait", 1000)
	eur := item("p-2", "Frame", 1000)
	eur.Amount = types.NewMoney(1000, "EUR", 2)

	tests := []struct {
		name    string
		req     CreateOrderRequest
		wantErr any
	}{
		{
			name:    "missing user",
			req:     CreateOrderRequest{Purchases: []PurchaseRequest{{Entity: "portraits", LineItems: []types.LineItem{usd}}}},
			wantErr: &types.ValidationError{},
		},
		{
			name:    "no purchases",
			req:     CreateOrderRequest{UserID: "user-1"},
			wantErr: &types.ValidationError{},
		},
		{
			name:    "no line items",
			req:     CreateOrderRequest{UserID: "user-1", Purchases: []PurchaseRequest{{Entity: "portraits"}}},
			wantErr: &types.ValidationError{},
		},
		{
			name:    "unknown entity",
			req:     CreateOrderRequest{UserID: "user-1", Purchases: []PurchaseRequest{{Entity: "mugs", LineItems: []types.LineItem{usd}}}},
			wantErr: &types.ContextValidationError{},
		},
		{
			name: "mixed currency",
			req: CreateOrderRequest{UserID: "user-1", Purchases: []PurchaseRequest{
				{Entity: "portraits", LineItems: []types.LineItem{usd}},
				{Entity: "portraits", LineItems: []types.LineItem{eur}},
			}},
			wantErr: &types.InvoiceCreationError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, types.DefaultSLAPolicy(), WithEntities([]string{"portraits"}))
			_, err := h.svc.Create(context.Background(), tt.req)
			require.Error(t, err)
			assert.IsType(t, tt.wantErr, unwrapPermanent(t, err))
			assert.Equal(t, 0, h.orders.writes)
			assert.Equal(t, 0, h.sandbox.Calls(types.ActionAuth))
		})
	}
}

func unwrapPermanent(t *testing.T, err error) error {
	t.Helper()
	_, ok := types.IsPermanent(err)
	require.True(t, ok, "expected a permanent error, got %v", err)
	return err
}

func TestErrorResponse(t *testing.T) {
	details := ErrorResponse(&types.ValidationError{Msg: "user_id is required"}, "")
	assert.Equal(t, "ValidationError", details.ErrorType)
	assert.Equal(t, "user_id is required", details.ErrorDetails)
	assert.Equal(t, genericFailureMessage, details.ErrorMessage)

	details = ErrorResponse(fmt.Errorf("boom"), "try later")
	assert.Equal(t, "InternalError", details.ErrorType)
	assert.Equal(t, "try later", details.ErrorMessage)
}
