package orders

import (
	"context"
	"time"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/config"
	"go-fulfillment-saga/order-processing/metrics"
	"go-fulfillment-saga/order-processing/payments"
	"go-fulfillment-saga/order-processing/records"
	"go-fulfillment-saga/order-processing/scheduler"
	"go-fulfillment-saga/order-processing/storage"
	"go-fulfillment-saga/order-processing/types"
)

// Service drives orders: creation, the fulfillment orchestrator and
// provider event handling
type Service struct {
	orders    storage.OrderStore
	txns      storage.TransactionStore
	records   *records.Service
	payments  *payments.Processor
	scheduler scheduler.RecoveryScheduler

	sla      types.SLAPolicy
	schedule config.ScheduleConfig
	entities map[string]struct{}

	metrics *metrics.Registry
	logger  *zap.Logger
	now     func() time.Time
}

// Deps are the collaborators a Service needs
type Deps struct {
	Orders       storage.OrderStore
	Transactions storage.TransactionStore
	Records      *records.Service
	Payments     *payments.Processor
	Scheduler    scheduler.RecoveryScheduler
	Metrics      *metrics.Registry
	Logger       *zap.Logger
}

type Option func(*Service)

// WithClock replaces the wall clock used for SLA decisions
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEntities restricts order creation to the given product entities
func WithEntities(entities []string) Option {
	return func(s *Service) {
		for _, e := range entities {
			s.entities[e] = struct{}{}
		}
	}
}

func NewService(deps Deps, sla types.SLAPolicy, schedule config.ScheduleConfig, opts ...Option) *Service {
	s := &Service{
		orders:    deps.Orders,
		txns:      deps.Transactions,
		records:   deps.Records,
		payments:  deps.Payments,
		scheduler: deps.Scheduler,
		sla:       sla,
		schedule:  schedule,
		entities:  make(map[string]struct{}),
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads an order
func (s *Service) Get(ctx context.Context, orderID string) (*types.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

func (s *Service) loadRecords(ctx context.Context, order *types.Order) ([]*types.PurchaseRecord, error) {
	out := make([]*types.PurchaseRecord, 0, len(order.PurchaseRecordIDs))
	for _, id := range order.PurchaseRecordIDs {
		rec, err := s.records.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) enqueue(ctx context.Context, ref scheduler.Ref, delay time.Duration) error {
	if err := s.scheduler.Enqueue(ctx, ref, delay); err != nil {
		return err
	}
	s.metrics.RecoveryEnqueue.WithLabelValues(string(ref.Kind)).Inc()
	return nil
}
