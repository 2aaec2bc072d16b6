package stellar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrExternalUnavailable indicates the network call failed with an
	// unknown outcome. The transfer record stays pending; re-check it by
	// reference before any retry.
	ErrExternalUnavailable = errors.New("settlement network unavailable")

	// ErrTransferRejected indicates the network definitively rejected the
	// submission; the transfer record is marked failed.
	ErrTransferRejected = errors.New("settlement transfer rejected")
)

// Service manages platform-controlled settlement-network accounts and the
// payment primitive built on them. It is the building block the escrow
// orchestrator and the public-ledger payment adapter share.
type Service struct {
	store   Store
	horizon Horizon
	vault   *Vault
	logger  *slog.Logger
}

// NewService builds a settlement service.
func NewService(store Store, horizon Horizon, vault *Vault, logger *slog.Logger) *Service {
	return &Service{store: store, horizon: horizon, vault: vault, logger: logger}
}

// CreatedAccount is returned once at creation time; the secret is handed
// to the caller exactly once and stored only sealed.
type CreatedAccount struct {
	PublicKey string
	Secret    string
}

// CreateAccount generates a fresh keypair and stores the sealed secret.
func (s *Service) CreateAccount(ctx context.Context, ownerRef string) (CreatedAccount, error) {
	kp, err := NewKeypair()
	if err != nil {
		return CreatedAccount{}, err
	}
	sealed, err := s.vault.Seal(kp.Secret())
	if err != nil {
		return CreatedAccount{}, err
	}

	now := time.Now().UTC()
	account := Account{
		PublicKey:       kp.Address(),
		SecretSealed:    sealed,
		OwnerRef:        ownerRef,
		BalanceSnapshot: decimal.Zero,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return CreatedAccount{}, err
	}
	s.logger.Info("settlement account created", "public_key", account.PublicKey, "owner_ref", ownerRef)
	return CreatedAccount{PublicKey: kp.Address(), Secret: kp.Secret()}, nil
}

// GetAccount loads the stored account record.
func (s *Service) GetAccount(ctx context.Context, publicKey string) (Account, error) {
	return s.store.GetAccount(ctx, publicKey)
}

// AccountBalance fetches the live balance for one asset and refreshes the
// stored snapshot.
func (s *Service) AccountBalance(ctx context.Context, publicKey, asset string) (decimal.Decimal, error) {
	detail, err := s.horizon.LoadAccount(ctx, publicKey)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	balance := decimal.Zero
	for _, b := range detail.Balances {
		if b.Asset == asset {
			parsed, err := decimal.NewFromString(b.Amount)
			if err != nil {
				return decimal.Zero, fmt.Errorf("bad balance %q: %w", b.Amount, err)
			}
			balance = parsed
			break
		}
	}

	if err := s.store.UpdateAccountSnapshot(ctx, publicKey, detail.Sequence, balance); err != nil && !errors.Is(err, ErrAccountNotFound) {
		s.logger.Warn("failed to refresh account snapshot", "public_key", publicKey, "error", err)
	}
	return balance, nil
}

// PaymentInput describes one transfer on the settlement network.
type PaymentInput struct {
	SourceSecret string
	Destination  string
	Amount       decimal.Decimal
	Asset        string
	Memo         string
	// Ref is the caller-chosen idempotency reference. Defaults to a fresh
	// UUID when empty; retries of the same logical transfer must reuse it.
	Ref string
}

// SendPayment records a pending transfer, submits it, and settles the
// record to success or failed. A reused reference returns the existing
// record instead of double-submitting.
func (s *Service) SendPayment(ctx context.Context, input PaymentInput) (Transfer, error) {
	if !input.Amount.IsPositive() {
		return Transfer{}, fmt.Errorf("transfer amount must be positive")
	}
	kp, err := FromSecret(input.SourceSecret)
	if err != nil {
		return Transfer{}, err
	}
	asset := input.Asset
	if asset == "" {
		asset = AssetNative
	}
	ref := input.Ref
	if ref == "" {
		ref = uuid.NewString()
	}

	now := time.Now().UTC()
	transfer := Transfer{
		Ref:                ref,
		SourceAccount:      kp.Address(),
		DestinationAccount: input.Destination,
		Amount:             input.Amount,
		Asset:              asset,
		Status:             TransferPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	// The pending record goes in before the submission so an ambiguous
	// outcome is never lost.
	if err := s.store.CreateTransfer(ctx, transfer); err != nil {
		if errors.Is(err, ErrDuplicateTransfer) {
			existing, getErr := s.store.GetTransfer(ctx, ref)
			if getErr != nil {
				return Transfer{}, getErr
			}
			if existing.Status == TransferPending {
				// A prior attempt is unresolved; do not submit again.
				return existing, ErrExternalUnavailable
			}
			return existing, nil
		}
		return Transfer{}, err
	}

	result, err := s.horizon.SubmitPayment(ctx, PaymentRequest{
		SourceSecret: input.SourceSecret,
		Destination:  input.Destination,
		Amount:       input.Amount.String(),
		Asset:        asset,
		Memo:         input.Memo,
		Reference:    ref,
	})
	if err != nil {
		if IsRejected(err) {
			if updErr := s.store.UpdateTransferStatus(ctx, ref, TransferFailed, "", 0, err.Error()); updErr != nil {
				s.logger.Error("failed to record transfer rejection", "ref", ref, "error", updErr)
			}
			transfer.Status = TransferFailed
			transfer.ErrorDetail = err.Error()
			return transfer, fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
		// Unknown outcome: the record stays pending for reconciliation.
		s.logger.Warn("transfer outcome unknown", "ref", ref, "error", err)
		return transfer, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	if err := s.store.UpdateTransferStatus(ctx, ref, TransferSuccess, result.Hash, result.Ledger, ""); err != nil {
		return Transfer{}, err
	}
	transfer.Status = TransferSuccess
	transfer.Hash = result.Hash
	transfer.Ledger = result.Ledger
	s.logger.Info("transfer settled", "ref", ref, "hash", result.Hash, "ledger", result.Ledger)
	return transfer, nil
}

// SendFromStored issues a payment from an account whose sealed secret is
// on file, opening it only for the duration of the call.
func (s *Service) SendFromStored(ctx context.Context, sourcePublicKey string, input PaymentInput) (Transfer, error) {
	account, err := s.store.GetAccount(ctx, sourcePublicKey)
	if err != nil {
		return Transfer{}, err
	}
	secret, err := s.vault.Open(account.SecretSealed)
	if err != nil {
		return Transfer{}, err
	}
	input.SourceSecret = secret
	return s.SendPayment(ctx, input)
}

// FundNewAccount creates and funds a network account from the source. The
// attempt is recorded as a transfer receipt under ref, pending before the
// submission, so an ambiguous outcome can be re-checked by reference.
func (s *Service) FundNewAccount(ctx context.Context, sourceSecret, destination string, startingBalance decimal.Decimal, ref string) error {
	kp, err := FromSecret(sourceSecret)
	if err != nil {
		return err
	}
	if ref == "" {
		ref = uuid.NewString()
	}

	now := time.Now().UTC()
	transfer := Transfer{
		Ref:                ref,
		SourceAccount:      kp.Address(),
		DestinationAccount: destination,
		Amount:             startingBalance,
		Asset:              AssetNative,
		Status:             TransferPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateTransfer(ctx, transfer); err != nil {
		if errors.Is(err, ErrDuplicateTransfer) {
			existing, getErr := s.store.GetTransfer(ctx, ref)
			if getErr != nil {
				return getErr
			}
			switch existing.Status {
			case TransferSuccess:
				return nil
			case TransferPending:
				// A prior attempt is unresolved; do not submit again.
				return ErrExternalUnavailable
			default:
				return fmt.Errorf("%w: %s", ErrTransferRejected, existing.ErrorDetail)
			}
		}
		return err
	}

	result, err := s.horizon.SubmitCreateAccount(ctx, CreateAccountRequest{
		SourceSecret:    sourceSecret,
		Destination:     destination,
		StartingBalance: startingBalance.String(),
		Reference:       ref,
	})
	if err != nil {
		if IsRejected(err) {
			if updErr := s.store.UpdateTransferStatus(ctx, ref, TransferFailed, "", 0, err.Error()); updErr != nil {
				s.logger.Error("failed to record transfer rejection", "ref", ref, "error", updErr)
			}
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
		s.logger.Warn("account funding outcome unknown", "ref", ref, "error", err)
		return fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	if err := s.store.UpdateTransferStatus(ctx, ref, TransferSuccess, result.Hash, result.Ledger, ""); err != nil {
		return err
	}
	s.logger.Info("account funded", "ref", ref, "destination", destination, "hash", result.Hash)
	return nil
}

// GetTransfer re-checks a transfer receipt by reference; this is the
// re-query path after an ambiguous submission outcome.
func (s *Service) GetTransfer(ctx context.Context, ref string) (Transfer, error) {
	return s.store.GetTransfer(ctx, ref)
}

// ListTransfersByAccount returns the transfer receipts touching the account.
func (s *Service) ListTransfersByAccount(ctx context.Context, publicKey string) ([]Transfer, error) {
	return s.store.ListTransfersByAccount(ctx, publicKey)
}
