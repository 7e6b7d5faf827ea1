package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements DocumentStore on an embedded PebbleDB. Keys are
// "<collection>/<id>".
type PebbleStore struct {
	db *pebble.DB
	// serializes the read-check-write of Insert and Replace
	mu sync.Mutex
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    4,
		L0StopWritesThreshold:    12,
	}
	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func pebbleKey(coll Collection, id string) []byte {
	return []byte(string(coll) + "/" + id)
}

func (p *PebbleStore) exists(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func (p *PebbleStore) Insert(_ context.Context, coll Collection, id string, doc []byte) error {
	key := pebbleKey(coll, id)
	p.mu.Lock()
	defer p.mu.Unlock()
	found, err := p.exists(key)
	if err != nil {
		return fmt.Errorf("pebble get %s: %w", key, err)
	}
	if found {
		return ErrAlreadyExists
	}
	// a transaction must be durable before its provider call
	if err := p.db.Set(key, doc, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", key, err)
	}
	return nil
}

func (p *PebbleStore) Replace(_ context.Context, coll Collection, id string, doc []byte) error {
	key := pebbleKey(coll, id)
	p.mu.Lock()
	defer p.mu.Unlock()
	found, err := p.exists(key)
	if err != nil {
		return fmt.Errorf("pebble get %s: %w", key, err)
	}
	if !found {
		return ErrNotFound
	}
	if err := p.db.Set(key, doc, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", key, err)
	}
	return nil
}

func (p *PebbleStore) Get(_ context.Context, coll Collection, id string) ([]byte, error) {
	v, closer, err := p.db.Get(pebbleKey(coll, id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pebble get: %w", err)
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}
