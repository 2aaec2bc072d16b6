package stellar

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]Account
	transfers map[string]Transfer
	order     []string
}

// NewMemoryStore creates an in-memory settlement store for tests.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts:  make(map[string]Account),
		transfers: make(map[string]Transfer),
	}
}

func (s *memoryStore) CreateAccount(_ context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.PublicKey] = a
	return nil
}

func (s *memoryStore) GetAccount(_ context.Context, publicKey string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[publicKey]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *memoryStore) UpdateAccountSnapshot(_ context.Context, publicKey string, sequence int64, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[publicKey]
	if !ok {
		return ErrAccountNotFound
	}
	a.Sequence = sequence
	a.BalanceSnapshot = balance
	a.UpdatedAt = time.Now().UTC()
	s.accounts[publicKey] = a
	return nil
}

func (s *memoryStore) CreateTransfer(_ context.Context, t Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.transfers[t.Ref]; exists {
		return ErrDuplicateTransfer
	}
	s.transfers[t.Ref] = t
	s.order = append(s.order, t.Ref)
	return nil
}

func (s *memoryStore) GetTransfer(_ context.Context, ref string) (Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[ref]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (s *memoryStore) UpdateTransferStatus(_ context.Context, ref string, status TransferStatus, hash string, ledger int64, errorDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[ref]
	if !ok {
		return ErrTransferNotFound
	}
	if t.Status != TransferPending {
		// Terminal receipts are immutable.
		return nil
	}
	t.Status = status
	t.Hash = hash
	t.Ledger = ledger
	t.ErrorDetail = errorDetail
	t.UpdatedAt = time.Now().UTC()
	s.transfers[ref] = t
	return nil
}

func (s *memoryStore) ListTransfersByAccount(_ context.Context, publicKey string) ([]Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Transfer
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.transfers[s.order[i]]
		if t.SourceAccount == publicKey || t.DestinationAccount == publicKey {
			out = append(out, t)
		}
	}
	return out, nil
}
