package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds occurs when a withdrawal would take the balance
	// below zero. The sufficiency check and the debit happen under the same
	// wallet lock.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound indicates the wallet does not exist.
	ErrNotFound = errors.New("wallet not found")

	// ErrDuplicateWallet indicates the owner already holds a wallet in the
	// requested currency and the single-wallet policy is in force.
	ErrDuplicateWallet = errors.New("wallet already exists for owner and currency")
)

// Store is the contract implemented by ledger backends. Deposit and
// Withdraw are atomic units: the backend acquires an exclusive per-wallet
// lock, writes a pending transaction, mutates the balance, completes the
// transaction and commits, or rolls the whole unit back. Correctness
// relies on the backend's transaction isolation, never on in-process
// locking shared across requests.
type Store interface {
	CreateWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, id string) (Wallet, error)
	FindByOwnerCurrency(ctx context.Context, ownerID, currency string) (Wallet, error)
	Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (Transaction, error)
	Withdraw(ctx context.Context, walletID string, amount decimal.Decimal) (Transaction, error)
	ListTransactions(ctx context.Context, walletID string) ([]Transaction, error)
}
