package escrow

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu        sync.Mutex
	contracts map[string]Contract
	order     []string
}

// NewMemoryStore creates an in-memory escrow store for tests. ClaimTerminal
// holds the store mutex for the whole check-and-set, matching the
// conditional-update semantics of the Postgres store.
func NewMemoryStore() Store {
	return &memoryStore{contracts: make(map[string]Contract)}
}

func (s *memoryStore) Create(_ context.Context, c Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[c.ID] = c
	s.order = append(s.order, c.ID)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, ErrNotFound
	}
	return c, nil
}

func (s *memoryStore) ListByAccount(_ context.Context, publicKey string) ([]Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Contract
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.contracts[s.order[i]]
		if c.SourceAccount == publicKey || c.DestinationAccount == publicKey {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) ListExpired(_ context.Context, asOf time.Time) ([]Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Contract
	for _, id := range s.order {
		c := s.contracts[id]
		if c.Status == StatusPending && c.ExpiresAt != nil && !c.ExpiresAt.After(asOf) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memoryStore) ClaimTerminal(_ context.Context, id string, to Status) (Contract, error) {
	if !to.Terminal() {
		return Contract{}, ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, ErrNotFound
	}
	if c.Status != StatusPending {
		return Contract{}, ErrInvalidState
	}
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	s.contracts[id] = c
	return c, nil
}

func (s *memoryStore) Reopen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = StatusPending
	c.UpdatedAt = time.Now().UTC()
	s.contracts[id] = c
	return nil
}

func (s *memoryStore) SetReleaseRef(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return ErrNotFound
	}
	c.ReleaseTransferRef = ref
	c.UpdatedAt = time.Now().UTC()
	s.contracts[id] = c
	return nil
}
