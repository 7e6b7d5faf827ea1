package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/storage"
	"go-fulfillment-saga/order-processing/types"
)

// Service owns PurchaseRecord persistence and lifecycle: progress notes,
// SLA failure, downstream advances and forced failure
type Service struct {
	records storage.PurchaseRecordStore
	sla     types.SLAPolicy
	now     func() time.Time
	logger  *zap.Logger
}

type Option func(*Service)

// WithClock replaces the wall clock used for SLA checks and timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(records storage.PurchaseRecordStore, sla types.SLAPolicy, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		records: records,
		sla:     sla,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads a record
func (s *Service) Get(ctx context.Context, recordID string) (*types.PurchaseRecord, error) {
	return s.records.GetByID(ctx, recordID)
}

// Process stores record, creating it when missing and updating it when its
// status moved. CREATED and terminal records stop there; the rest get the
// progress and SLA pass.
func (s *Service) Process(ctx context.Context, record *types.PurchaseRecord) (*types.PurchaseRecord, error) {
	stale, err := s.records.GetByID(ctx, record.RecordID)
	var notFound *types.DataNotFoundError
	switch {
	case errors.As(err, &notFound):
		if record.LastUpdatedAt.IsZero() {
			record.LastUpdatedAt = s.now()
		}
		if err := s.records.Create(ctx, record); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case stale.Status != record.Status:
		record.LastUpdatedAt = s.now()
		if err := s.records.Update(ctx, record); err != nil {
			return nil, err
		}
	}

	if record.IsCreated() || record.IsTerminal() {
		return record, nil
	}
	return s.fulfill(ctx, record)
}

// Reprocess reloads a record and runs the progress and SLA pass on it
func (s *Service) Reprocess(ctx context.Context, recordID string) (*types.PurchaseRecord, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.IsTerminal() {
		return record, nil
	}
	return s.fulfill(ctx, record)
}

func (s *Service) fulfill(ctx context.Context, record *types.PurchaseRecord) (*types.PurchaseRecord, error) {
	record.UpdateProgress()
	if !record.IsTerminal() && record.IsOverSLA(s.now(), s.sla) {
		logging.FromContext(ctx, s.logger).Warn("purchase record over SLA, failing",
			zap.String("record_id", record.RecordID),
			zap.String("status", string(record.Status)))
		s.moveTo(record, types.RecordStatusFailed)
	}
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ApplyOrderStatus fans an order status out to one of its records. Only
// forward moves are applied so a re-delivered propagation never drags a
// record back.
func (s *Service) ApplyOrderStatus(ctx context.Context, record *types.PurchaseRecord, order *types.Order) (*types.PurchaseRecord, error) {
	var target types.PurchaseRecordStatus
	switch order.Status {
	case types.OrderStatusCreated:
		target = types.RecordStatusCreated
	case types.OrderStatusBooked:
		target = types.RecordStatusReady
		record.OrderID = order.OrderID
	default:
		// FAILED, FULFILLED and COMPLETED orders leave their records alone
		return record, nil
	}
	if record.Status != target && record.CanTransitionTo(target) {
		record.Status = target
	}
	return s.Process(ctx, record)
}

// Advance records downstream progress: READY -> PROCESSING (one more
// attempt) -> COMPLETED, or FAILED from any open status
func (s *Service) Advance(ctx context.Context, recordID string, next types.PurchaseRecordStatus) (*types.PurchaseRecord, error) {
	if !next.Valid() {
		return nil, &types.ValidationError{Msg: fmt.Sprintf("unknown purchase record status %q", next)}
	}
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Status == next {
		return record, nil
	}
	if record.IsCreated() || !record.CanTransitionTo(next) {
		return nil, &types.UnexpectedStatusError{
			Entity: "purchase record",
			ID:     record.RecordID,
			Status: fmt.Sprintf("%s -> %s", record.Status, next),
		}
	}
	if next == types.RecordStatusProcessing {
		record.AttemptCount++
	}
	s.moveTo(record, next)
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("purchase record advanced",
		zap.String("record_id", record.RecordID),
		zap.String("status", string(record.Status)),
		zap.Int("attempt_count", record.AttemptCount))
	return record, nil
}

// ForceFail fails an open record. Terminal records are left as they are.
func (s *Service) ForceFail(ctx context.Context, recordID string) (*types.PurchaseRecord, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.IsTerminal() {
		return record, nil
	}
	s.moveTo(record, types.RecordStatusFailed)
	if err := s.records.Update(ctx, record); err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("purchase record force failed", zap.String("record_id", record.RecordID))
	return record, nil
}

func (s *Service) moveTo(record *types.PurchaseRecord, status types.PurchaseRecordStatus) {
	record.Status = status
	record.LastUpdatedAt = s.now()
	record.UpdateProgress()
}

// NewRecord builds a CREATED record for a purchase intent
func NewRecord(userID, entity, description string, items []types.LineItem, now time.Time) *types.PurchaseRecord {
	record := &types.PurchaseRecord{
		RecordID:      types.NewID(),
		CreatedAt:     now,
		LastUpdatedAt: now,
		Description:   description,
		UserID:        userID,
		Entity:        entity,
		Status:        types.RecordStatusCreated,
		AttemptCount:  1,
		LineItems:     append([]types.LineItem(nil), items...),
	}
	record.UpdateProgress()
	return record
}
