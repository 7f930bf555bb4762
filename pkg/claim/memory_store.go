package claim

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// MemoryStore keeps claims in process memory. Used by tests and the
// single-process demo wiring.
type MemoryStore struct {
	mu      sync.Mutex
	records map[contracts.Address]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[contracts.Address]Record)}
}

func (s *MemoryStore) Create(_ context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.Address]; ok {
		return ErrExists
	}
	s.records[r.Address] = *r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, addr contracts.Address) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[addr]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// Len reports the number of claims held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
