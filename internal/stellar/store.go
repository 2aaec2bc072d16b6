package stellar

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates no stored account for the public key.
	ErrAccountNotFound = errors.New("settlement account not found")

	// ErrTransferNotFound indicates no transfer recorded under the reference.
	ErrTransferNotFound = errors.New("settlement transfer not found")

	// ErrDuplicateTransfer indicates the transfer reference was already
	// used; the caller must re-check the existing record instead of
	// submitting again.
	ErrDuplicateTransfer = errors.New("duplicate transfer reference")
)

// Store persists settlement-network accounts and transfer receipts.
type Store interface {
	CreateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, publicKey string) (Account, error)
	UpdateAccountSnapshot(ctx context.Context, publicKey string, sequence int64, balance decimal.Decimal) error

	CreateTransfer(ctx context.Context, t Transfer) error
	GetTransfer(ctx context.Context, ref string) (Transfer, error)
	UpdateTransferStatus(ctx context.Context, ref string, status TransferStatus, hash string, ledger int64, errorDetail string) error
	ListTransfersByAccount(ctx context.Context, publicKey string) ([]Transfer, error)
}
