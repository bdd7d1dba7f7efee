package semantic

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps phrasings in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	scopes map[string][]Phrase
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scopes: make(map[string][]Phrase)}
}

// Load returns a copy of the phrasings saved for s.
func (m *MemoryStore) Load(_ context.Context, s Scope) ([]Phrase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.scopes[s.String()]), nil
}

// Save replaces the phrasings of s.
func (m *MemoryStore) Save(_ context.Context, s Scope, phrases []Phrase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[s.String()] = slices.Clone(phrases)
	return nil
}
