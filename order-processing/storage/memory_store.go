package storage

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe map store, used for tests and local runs
type MemoryStore struct {
	mu   sync.RWMutex
	data map[Collection]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Collection]map[string][]byte)}
}

func (s *MemoryStore) Insert(_ context.Context, coll Collection, id string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.data[coll]
	if !ok {
		docs = make(map[string][]byte)
		s.data[coll] = docs
	}
	if _, exists := docs[id]; exists {
		return ErrAlreadyExists
	}
	docs[id] = append([]byte(nil), doc...)
	return nil
}

func (s *MemoryStore) Replace(_ context.Context, coll Collection, id string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.data[coll]
	if _, exists := docs[id]; !exists {
		return ErrNotFound
	}
	docs[id] = append([]byte(nil), doc...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, coll Collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[coll][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (s *MemoryStore) Close() error { return nil }
