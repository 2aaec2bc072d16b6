package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memoryStore is a concurrency-safe in-memory wallet store for tests. It
// mirrors the Postgres locking discipline: a per-wallet mutex serializes
// mutations on one wallet while different wallets stay independent.
type memoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*memWallet
}

type memWallet struct {
	mu   sync.Mutex
	w    Wallet
	txns []Transaction
}

// NewMemoryStore creates an in-memory wallet store.
func NewMemoryStore() Store {
	return &memoryStore{wallets: make(map[string]*memWallet)}
}

func (s *memoryStore) CreateWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.wallets[w.ID]; exists {
		return ErrDuplicateWallet
	}
	s.wallets[w.ID] = &memWallet{w: w}
	return nil
}

func (s *memoryStore) GetWallet(_ context.Context, id string) (Wallet, error) {
	s.mu.RLock()
	mw, ok := s.wallets[id]
	s.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrNotFound
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.w, nil
}

func (s *memoryStore) FindByOwnerCurrency(_ context.Context, ownerID, currency string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, mw := range s.wallets {
		mw.mu.Lock()
		w := mw.w
		mw.mu.Unlock()
		if w.OwnerID == ownerID && w.Currency == currency {
			return w, nil
		}
	}
	return Wallet{}, ErrNotFound
}

func (s *memoryStore) Deposit(_ context.Context, walletID string, amount decimal.Decimal) (Transaction, error) {
	return s.mutate(walletID, amount, KindDeposit)
}

func (s *memoryStore) Withdraw(_ context.Context, walletID string, amount decimal.Decimal) (Transaction, error) {
	return s.mutate(walletID, amount, KindWithdrawal)
}

func (s *memoryStore) mutate(walletID string, amount decimal.Decimal, kind Kind) (Transaction, error) {
	s.mu.RLock()
	mw, ok := s.wallets[walletID]
	s.mu.RUnlock()
	if !ok {
		return Transaction{}, ErrNotFound
	}

	mw.mu.Lock()
	defer mw.mu.Unlock()

	signed := amount
	if kind == KindWithdrawal {
		if mw.w.Balance.LessThan(amount) {
			return Transaction{}, ErrInsufficientFunds
		}
		signed = amount.Neg()
	}

	now := time.Now().UTC()
	txn := Transaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Amount:    signed,
		Kind:      kind,
		Status:    StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mw.w.Balance = mw.w.Balance.Add(signed)
	mw.w.UpdatedAt = now
	mw.txns = append(mw.txns, txn)
	return txn, nil
}

func (s *memoryStore) ListTransactions(_ context.Context, walletID string) ([]Transaction, error) {
	s.mu.RLock()
	mw, ok := s.wallets[walletID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	mw.mu.Lock()
	defer mw.mu.Unlock()
	out := make([]Transaction, len(mw.txns))
	for i, t := range mw.txns {
		out[len(mw.txns)-1-i] = t
	}
	return out, nil
}
