package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-fulfillment-saga/order-processing/types"
)

// OrderStore persists Orders
type OrderStore interface {
	Create(ctx context.Context, order *types.Order) error
	Update(ctx context.Context, order *types.Order) error
	GetByID(ctx context.Context, orderID string) (*types.Order, error)
}

// PurchaseRecordStore persists PurchaseRecords
type PurchaseRecordStore interface {
	Create(ctx context.Context, record *types.PurchaseRecord) error
	Update(ctx context.Context, record *types.PurchaseRecord) error
	GetByID(ctx context.Context, recordID string) (*types.PurchaseRecord, error)
}

// TransactionStore persists Transactions. Create returns ErrAlreadyExists
// for a taken transaction id.
type TransactionStore interface {
	Create(ctx context.Context, txn *types.Transaction) error
	Update(ctx context.Context, txn *types.Transaction) error
	GetByID(ctx context.Context, transactionID string) (*types.Transaction, error)
}

// InstrumentStore persists payment instruments
type InstrumentStore interface {
	Create(ctx context.Context, instrument *types.Instrument) error
	GetByID(ctx context.Context, instrumentID string) (*types.Instrument, error)
}

// Clock lets tests pin the store-assigned timestamps
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

type docRepo[T any] struct {
	store DocumentStore
	coll  Collection
	kind  string
}

func (r docRepo[T]) insert(ctx context.Context, id string, v *T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", r.kind, id, err)
	}
	if err := r.store.Insert(ctx, r.coll, id, b); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("%s %s: %w", r.kind, id, err)
		}
		return fmt.Errorf("create %s %s: %w", r.kind, id, err)
	}
	return nil
}

func (r docRepo[T]) replace(ctx context.Context, id string, v *T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", r.kind, id, err)
	}
	if err := r.store.Replace(ctx, r.coll, id, b); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &types.DataNotFoundError{Kind: r.kind, ID: id}
		}
		return fmt.Errorf("update %s %s: %w", r.kind, id, err)
	}
	return nil
}

func (r docRepo[T]) get(ctx context.Context, id string) (*T, error) {
	b, err := r.store.Get(ctx, r.coll, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &types.DataNotFoundError{Kind: r.kind, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", r.kind, id, err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", r.kind, id, err)
	}
	return &v, nil
}

// OrderRepository stores orders as documents
type OrderRepository struct {
	docs docRepo[types.Order]
	now  Clock
}

func NewOrderRepository(store DocumentStore) *OrderRepository {
	return &OrderRepository{docs: docRepo[types.Order]{store: store, coll: Orders, kind: "order"}, now: utcNow}
}

// WithClock replaces the clock used for UpdatedAt stamps
func (r *OrderRepository) WithClock(now Clock) *OrderRepository {
	r.now = now
	return r
}

func (r *OrderRepository) Create(ctx context.Context, order *types.Order) error {
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	if order.StatusChangedAt.IsZero() {
		order.StatusChangedAt = now
	}
	return r.docs.insert(ctx, order.OrderID, order)
}

// Update writes the order and stamps UpdatedAt
func (r *OrderRepository) Update(ctx context.Context, order *types.Order) error {
	order.UpdatedAt = r.now()
	return r.docs.replace(ctx, order.OrderID, order)
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (*types.Order, error) {
	return r.docs.get(ctx, orderID)
}

// PurchaseRecordRepository stores purchase records as documents
type PurchaseRecordRepository struct {
	docs docRepo[types.PurchaseRecord]
	now  Clock
}

func NewPurchaseRecordRepository(store DocumentStore) *PurchaseRecordRepository {
	return &PurchaseRecordRepository{
		docs: docRepo[types.PurchaseRecord]{store: store, coll: PurchaseRecords, kind: "purchase record"},
		now:  utcNow,
	}
}

func (r *PurchaseRecordRepository) Create(ctx context.Context, record *types.PurchaseRecord) error {
	now := r.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.LastUpdatedAt.IsZero() {
		record.LastUpdatedAt = now
	}
	return r.docs.insert(ctx, record.RecordID, record)
}

// Update writes the record as is. LastUpdatedAt tracks status changes and is
// stamped by the caller that changes the status.
func (r *PurchaseRecordRepository) Update(ctx context.Context, record *types.PurchaseRecord) error {
	return r.docs.replace(ctx, record.RecordID, record)
}

func (r *PurchaseRecordRepository) GetByID(ctx context.Context, recordID string) (*types.PurchaseRecord, error) {
	return r.docs.get(ctx, recordID)
}

// TransactionRepository stores transactions as documents
type TransactionRepository struct {
	docs docRepo[types.Transaction]
	now  Clock
}

func NewTransactionRepository(store DocumentStore) *TransactionRepository {
	return &TransactionRepository{
		docs: docRepo[types.Transaction]{store: store, coll: Transactions, kind: "transaction"},
		now:  utcNow,
	}
}

func (r *TransactionRepository) WithClock(now Clock) *TransactionRepository {
	r.now = now
	return r
}

func (r *TransactionRepository) Create(ctx context.Context, txn *types.Transaction) error {
	now := r.now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return r.docs.insert(ctx, txn.TransactionID, txn)
}

func (r *TransactionRepository) Update(ctx context.Context, txn *types.Transaction) error {
	txn.UpdatedAt = r.now()
	return r.docs.replace(ctx, txn.TransactionID, txn)
}

func (r *TransactionRepository) GetByID(ctx context.Context, transactionID string) (*types.Transaction, error) {
	return r.docs.get(ctx, transactionID)
}

// InstrumentRepository stores payment instruments as documents
type InstrumentRepository struct {
	docs docRepo[types.Instrument]
}

func NewInstrumentRepository(store DocumentStore) *InstrumentRepository {
	return &InstrumentRepository{docs: docRepo[types.Instrument]{store: store, coll: Instruments, kind: "instrument"}}
}

func (r *InstrumentRepository) Create(ctx context.Context, instrument *types.Instrument) error {
	return r.docs.insert(ctx, instrument.InstrumentID, instrument)
}

func (r *InstrumentRepository) GetByID(ctx context.Context, instrumentID string) (*types.Instrument, error) {
	return r.docs.get(ctx, instrumentID)
}

// Open builds the document store selected by backend
func Open(ctx context.Context, backend, pebbleDir, databaseURL string) (DocumentStore, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "pebble":
		return NewPebbleStore(pebbleDir)
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
