package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no document has the requested id
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Insert when the id is taken
	ErrAlreadyExists = errors.New("document already exists")
)

// Collection names a family of documents
type Collection string

const (
	Orders          Collection = "orders"
	PurchaseRecords Collection = "purchase_records"
	Transactions    Collection = "transactions"
	Instruments     Collection = "instruments"
)

// DocumentStore abstracts the document backend. Documents are opaque JSON.
// Implementations: MemoryStore, PebbleStore, PostgresStore.
type DocumentStore interface {
	Insert(ctx context.Context, coll Collection, id string, doc []byte) error
	Replace(ctx context.Context, coll Collection, id string, doc []byte) error
	Get(ctx context.Context, coll Collection, id string) ([]byte, error)
	Close() error
}
