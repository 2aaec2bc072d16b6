package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/money"
	"github.com/cargolink/settlement/internal/notification"
)

// Service exposes the ledger engine: wallet provisioning plus atomic
// deposit and withdrawal against the transaction log.
type Service struct {
	store    Store
	notifier notification.Notifier

	// singlePerOwner enforces at most one wallet per owner/currency pair.
	// The engine itself is policy-free unless instructed.
	singlePerOwner bool
}

// Option configures a Service.
type Option func(*Service)

// WithSingleWalletPolicy makes Provision reject a second wallet for the
// same owner and currency.
func WithSingleWalletPolicy() Option {
	return func(s *Service) { s.singlePerOwner = true }
}

// WithNotifier attaches a notifier for completed mutations.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService builds a wallet service instance.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProvisionInput captures data required to provision a wallet.
type ProvisionInput struct {
	OwnerID  string
	Currency string
}

// Provision creates a zero-balance wallet for the owner.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (Wallet, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Wallet{}, fmt.Errorf("invalid owner id: %w", err)
	}
	currency, err := money.NormalizeCurrency(input.Currency)
	if err != nil {
		return Wallet{}, err
	}

	if s.singlePerOwner {
		if _, err := s.store.FindByOwnerCurrency(ctx, input.OwnerID, currency); err == nil {
			return Wallet{}, ErrDuplicateWallet
		} else if err != ErrNotFound {
			return Wallet{}, err
		}
	}

	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		OwnerID:   input.OwnerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves a wallet.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.store.GetWallet(ctx, id)
}

// Deposit atomically credits the wallet and records the transaction.
func (s *Service) Deposit(ctx context.Context, walletID string, amount decimal.Decimal) (Transaction, error) {
	if err := money.RequirePositive(amount); err != nil {
		return Transaction{}, err
	}
	txn, err := s.store.Deposit(ctx, walletID, amount)
	if err != nil {
		return Transaction{}, err
	}
	s.notify(ctx, notification.KindDepositCompleted, walletID, amount)
	return txn, nil
}

// Withdraw atomically debits the wallet, failing with ErrInsufficientFunds
// when the committed balance cannot cover the amount.
func (s *Service) Withdraw(ctx context.Context, walletID string, amount decimal.Decimal) (Transaction, error) {
	if err := money.RequirePositive(amount); err != nil {
		return Transaction{}, err
	}
	txn, err := s.store.Withdraw(ctx, walletID, amount)
	if err != nil {
		return Transaction{}, err
	}
	s.notify(ctx, notification.KindWithdrawalCompleted, walletID, amount)
	return txn, nil
}

// ListTransactions returns the wallet's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, walletID string) ([]Transaction, error) {
	return s.store.ListTransactions(ctx, walletID)
}

func (s *Service) notify(ctx context.Context, kind, walletID string, amount decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: walletID,
		Body:        fmt.Sprintf("amount %s on wallet %s", amount.String(), walletID),
	})
}
