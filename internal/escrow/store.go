package escrow

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the escrow contract does not exist.
	ErrNotFound = errors.New("escrow contract not found")

	// ErrInvalidState indicates the contract is not pending. Exactly one
	// terminal transition wins; every later attempt sees this error.
	ErrInvalidState = errors.New("escrow contract is not pending")

	// ErrUnauthorized indicates the requester's derived identity does not
	// match the contract's source account.
	ErrUnauthorized = errors.New("only the source account may cancel the escrow")
)

// Store persists escrow contracts.
//
// ClaimTerminal is the serialization point for the contract state
// machine: it atomically moves a pending contract to the given terminal
// status and fails with ErrInvalidState for any contract that is no
// longer pending. The claim happens before the external transfer so no
// storage lock is ever held across a network call; Reopen reverts a
// claim after a definitive network rejection.
type Store interface {
	Create(ctx context.Context, c Contract) error
	Get(ctx context.Context, id string) (Contract, error)
	ListByAccount(ctx context.Context, publicKey string) ([]Contract, error)
	// ListExpired returns pending contracts whose expiry is within the
	// closed range (created, asOf].
	ListExpired(ctx context.Context, asOf time.Time) ([]Contract, error)
	ClaimTerminal(ctx context.Context, id string, to Status) (Contract, error)
	Reopen(ctx context.Context, id string) error
	SetReleaseRef(ctx context.Context, id, ref string) error
}
