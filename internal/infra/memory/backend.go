package memory

import (
	"context"
	"sync"

	"quiz-client/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend is an in-memory implementation of store.Backend.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewBackend() *Backend {
	return &Backend{
		entries: make(map[string]string),
	}
}

func (b *Backend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	value, ok := b.entries[key]
	return value, ok, nil
}

func (b *Backend) Set(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = value
	return nil
}

func (b *Backend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Len reports how many raw entries are held, expired or not.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
