package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/notification"
	"github.com/cargolink/settlement/internal/stellar"
)

// ErrExternalUnavailable indicates the settlement network could not
// confirm the outcome of a transfer. The contract keeps its claimed
// state with an empty release ref so reconciliation can resolve it.
var ErrExternalUnavailable = errors.New("settlement network unavailable")

// CreateInput describes a new escrow agreement.
type CreateInput struct {
	SourceSecret       string
	DestinationAccount string
	Amount             decimal.Decimal
	Asset              string
	ReleaseConditions  []string
	Memo               string
	ExpiresAt          *time.Time
}

// Service coordinates escrow contracts over the settlement network.
//
// Terminal transitions claim the contract in storage first, then move
// funds. A definitively rejected transfer reopens the contract; an
// ambiguous outcome keeps the claim and leaves the release ref empty.
type Service struct {
	store    Store
	stellar  *stellar.Service
	notifier notification.Notifier
	reserve  decimal.Decimal
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier attaches a notifier for released escrows.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithReserve overrides the starting balance for new escrow accounts.
func WithReserve(reserve decimal.Decimal) Option {
	return func(s *Service) { s.reserve = reserve }
}

// NewService constructs the escrow service.
func NewService(store Store, st *stellar.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		stellar: st,
		reserve: decimal.RequireFromString("2.5"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new escrow: a fresh network account is created and
// reserve-funded by the source, the escrowed amount is transferred onto
// it, and the pending contract is persisted. If the amount transfer fails
// after the account exists, the contract is still persisted pending with
// an empty funding ref so the funds position can be reconciled.
func (s *Service) Create(ctx context.Context, input CreateInput) (Contract, error) {
	if !input.Amount.IsPositive() {
		return Contract{}, fmt.Errorf("escrow amount must be positive")
	}
	sourceKP, err := stellar.FromSecret(input.SourceSecret)
	if err != nil {
		return Contract{}, err
	}
	if !stellar.IsAddress(input.DestinationAccount) {
		return Contract{}, fmt.Errorf("invalid destination account")
	}
	asset := input.Asset
	if asset == "" {
		asset = stellar.AssetNative
	}

	escrowAccount, err := s.stellar.CreateAccount(ctx, "escrow")
	if err != nil {
		return Contract{}, err
	}

	id := uuid.NewString()
	if err := s.stellar.FundNewAccount(ctx, input.SourceSecret, escrowAccount.PublicKey, s.reserve, "escrow-fund:"+id); err != nil {
		// Nothing moved yet; the unfunded keypair record is inert.
		return Contract{}, err
	}

	fundingRef := "escrow-deposit:" + id
	_, sendErr := s.stellar.SendPayment(ctx, stellar.PaymentInput{
		SourceSecret: input.SourceSecret,
		Destination:  escrowAccount.PublicKey,
		Amount:       input.Amount,
		Asset:        asset,
		Memo:         input.Memo,
		Ref:          fundingRef,
	})
	if sendErr != nil {
		// The reserve already landed on the escrow account. Whether the
		// amount transfer was rejected outright or timed out, the contract
		// is persisted without a funding ref so the reserve stays tracked;
		// reconciliation retries the funding or sweeps the reserve back.
		s.logger.Warn("escrow funding incomplete", "escrow_id", id, "ref", fundingRef, "error", sendErr)
		fundingRef = ""
	}

	now := time.Now().UTC()
	contract := Contract{
		ID:                 id,
		SourceAccount:      sourceKP.Address(),
		DestinationAccount: input.DestinationAccount,
		Amount:             input.Amount,
		Asset:              asset,
		ReleaseConditions:  input.ReleaseConditions,
		EscrowAccount:      escrowAccount.PublicKey,
		FundingTransferRef: fundingRef,
		Memo:               input.Memo,
		ExpiresAt:          input.ExpiresAt,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Create(ctx, contract); err != nil {
		return Contract{}, err
	}
	s.logger.Info("escrow opened", "escrow_id", id, "escrow_account", escrowAccount.PublicKey, "amount", input.Amount.String())
	if sendErr != nil {
		if errors.Is(sendErr, stellar.ErrTransferRejected) {
			return contract, sendErr
		}
		return contract, fmt.Errorf("%w: escrow funding unconfirmed", ErrExternalUnavailable)
	}
	return contract, nil
}

// Get returns one contract.
func (s *Service) Get(ctx context.Context, id string) (Contract, error) {
	return s.store.Get(ctx, id)
}

// ListByAccount returns the contracts where the account is source or
// destination, newest first.
func (s *Service) ListByAccount(ctx context.Context, publicKey string) ([]Contract, error) {
	return s.store.ListByAccount(ctx, publicKey)
}

// Release pays the escrowed amount to the destination. The released claim
// is taken before the transfer; a rejected transfer reopens the contract.
func (s *Service) Release(ctx context.Context, id string) (Contract, error) {
	return s.settle(ctx, id, StatusReleased)
}

// Cancel returns the escrowed amount to the source. Only the source
// account, proven by its secret, may cancel.
func (s *Service) Cancel(ctx context.Context, id, requesterSecret string) (Contract, error) {
	kp, err := stellar.FromSecret(requesterSecret)
	if err != nil {
		return Contract{}, err
	}
	contract, err := s.store.Get(ctx, id)
	if err != nil {
		return Contract{}, err
	}
	if kp.Address() != contract.SourceAccount {
		return Contract{}, ErrUnauthorized
	}
	return s.settle(ctx, id, StatusCancelled)
}

// SweepExpired claims and refunds every pending contract past its expiry.
// Each contract settles independently; one failure does not stop the
// sweep. It returns the number of contracts swept to a terminal payout.
func (s *Service) SweepExpired(ctx context.Context, asOf time.Time) (int, error) {
	expired, err := s.store.ListExpired(ctx, asOf)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, c := range expired {
		if _, err := s.settle(ctx, c.ID, StatusExpired); err != nil {
			if errors.Is(err, ErrInvalidState) {
				// Lost the claim to a concurrent release or cancel.
				continue
			}
			s.logger.Error("expiry sweep failed", "escrow_id", c.ID, "error", err)
			continue
		}
		swept++
	}
	return swept, nil
}

// settle claims the terminal transition and then moves the escrowed funds
// off the escrow account: to the destination on release, back to the
// source on cancel or expiry.
func (s *Service) settle(ctx context.Context, id string, to Status) (Contract, error) {
	contract, err := s.store.ClaimTerminal(ctx, id, to)
	if err != nil {
		return Contract{}, err
	}

	payee := contract.SourceAccount
	ref := "escrow-cancel:" + id
	switch to {
	case StatusReleased:
		payee = contract.DestinationAccount
		ref = "escrow-release:" + id
	case StatusExpired:
		ref = "escrow-sweep:" + id
	}

	transfer, err := s.stellar.SendFromStored(ctx, contract.EscrowAccount, stellar.PaymentInput{
		Destination: payee,
		Amount:      contract.Amount,
		Asset:       contract.Asset,
		Memo:        contract.Memo,
		Ref:         ref,
	})
	if err == nil && transfer.Status == stellar.TransferFailed {
		// A retried ref whose earlier submission was rejected comes back
		// as a stored failed receipt; funds never moved.
		err = fmt.Errorf("%w: %s", stellar.ErrTransferRejected, transfer.ErrorDetail)
	}
	if err != nil {
		if errors.Is(err, stellar.ErrTransferRejected) {
			// Definitive failure: funds never moved, so the claim reverts.
			if reopenErr := s.store.Reopen(ctx, id); reopenErr != nil {
				s.logger.Error("failed to reopen escrow after rejection", "escrow_id", id, "error", reopenErr)
			}
			return Contract{}, err
		}
		// Unknown outcome: the claim stands with no release ref, flagging
		// the contract for reconciliation.
		s.logger.Warn("escrow payout outcome unknown", "escrow_id", id, "ref", ref, "error", err)
		contract.ReleaseTransferRef = ""
		return contract, fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}

	if err := s.store.SetReleaseRef(ctx, id, transfer.Ref); err != nil {
		s.logger.Error("failed to record escrow payout ref", "escrow_id", id, "ref", transfer.Ref, "error", err)
	}
	contract.ReleaseTransferRef = transfer.Ref
	s.logger.Info("escrow settled", "escrow_id", id, "status", string(to), "ref", transfer.Ref)

	if to == StatusReleased && s.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindEscrowReleased,
			Destination: contract.DestinationAccount,
			Body:        fmt.Sprintf("escrow %s released %s %s", id, contract.Amount.String(), contract.Asset),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			s.logger.Warn("escrow release notification failed", "escrow_id", id, "error", err)
		}
	}
	return contract, nil
}
