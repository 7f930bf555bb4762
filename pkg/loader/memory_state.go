package loader

import (
	"context"
	"sync"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// MemoryState is an in-memory StateStore.
type MemoryState struct {
	mu          sync.RWMutex
	programs    map[contracts.Address]Program
	programData map[contracts.Address]ProgramData
	buffers     map[contracts.Address]Buffer
	balances    map[contracts.Address]uint64
}

func NewMemoryState() *MemoryState {
	return &MemoryState{
		programs:    make(map[contracts.Address]Program),
		programData: make(map[contracts.Address]ProgramData),
		buffers:     make(map[contracts.Address]Buffer),
		balances:    make(map[contracts.Address]uint64),
	}
}

func (s *MemoryState) Program(ctx context.Context, id contracts.Address) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &p, nil
}

func (s *MemoryState) ProgramData(ctx context.Context, addr contracts.Address) (*ProgramData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pd, ok := s.programData[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &pd, nil
}

func (s *MemoryState) Buffer(ctx context.Context, addr contracts.Address) (*Buffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buffers[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &b, nil
}

func (s *MemoryState) Balance(ctx context.Context, addr contracts.Address) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[addr], nil
}

func (s *MemoryState) PutProgram(ctx context.Context, p *Program, pd *ProgramData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[p.ID] = *p
	s.programData[pd.Address] = *pd
	return nil
}

func (s *MemoryState) PutBuffer(ctx context.Context, b *Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[b.Address] = *b
	return nil
}

func (s *MemoryState) CommitUpgrade(ctx context.Context, c Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pd, ok := s.programData[c.ProgramData]
	if !ok {
		return ErrAccountNotFound
	}
	if _, ok := s.buffers[c.Buffer]; !ok {
		return ErrAccountNotFound
	}

	pd.ImageRef = c.ImageRef
	pd.Lamports = c.ProgramDataLamports
	pd.Generation++
	pd.DeployedAt = c.DeployedAt
	s.programData[c.ProgramData] = pd
	delete(s.buffers, c.Buffer)
	s.balances[c.Spill] += c.SpillCredit
	return nil
}
