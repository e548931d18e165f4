package escrow

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Store abstracts record persistence, keyed by escrow code.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, escrowCode string) (*Record, error)
	// UpdateStatus performs a conditional transition: the record's current
	// status must be one of expected, otherwise ErrInvalidTransition is
	// returned and nothing changes. This is the only mutation path, so two
	// concurrent releases cannot both pass the guard and win.
	UpdateStatus(ctx context.Context, escrowCode string, expected []Status, next Status) (*Record, error)
}

// MemoryStore is for tests and development.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Record)}
}

func (m *MemoryStore) Create(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[rec.EscrowCode]; exists {
		return ErrDuplicateCode
	}
	m.data[rec.EscrowCode] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, escrowCode string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.data[escrowCode]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, escrowCode string, expected []Status, next Status) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[escrowCode]
	if !ok {
		return nil, ErrNotFound
	}
	if !slices.Contains(expected, rec.Status) {
		return nil, ErrInvalidTransition
	}

	rec.Status = next
	rec.UpdatedAt = time.Now()
	m.data[escrowCode] = rec
	return &rec, nil
}

// Len reports the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
