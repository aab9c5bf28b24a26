package store

import (
	"context"
	"sync"
)

// Memory is an in-process collection. Documents are stored encoded, so callers never share memory with the store.
type Memory[T any] struct {
	key  KeyFunc[T]
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory[T any](key KeyFunc[T]) *Memory[T] {
	return &Memory[T]{
		key:  key,
		docs: make(map[string][]byte),
	}
}

func (m *Memory[T]) List(_ context.Context) ([]T, error) {
	m.mu.RLock()
	docs := make([]document, 0, len(m.docs))
	for id, b := range m.docs {
		docs = append(docs, document{id: id, body: b})
	}
	m.mu.RUnlock()

	return decodeAll[T](docs)
}

func (m *Memory[T]) Get(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	b, ok := m.docs[id]
	m.mu.RUnlock()

	if !ok {
		var zero T
		return zero, ErrNotFound
	}

	return decode[T](document{id: id, body: b})
}

func (m *Memory[T]) Put(_ context.Context, v T) error {
	d, err := encode(m.key, v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.docs[d.id] = d.body
	m.mu.Unlock()

	return nil
}

func (m *Memory[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()

	return nil
}
