package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the escrow contract lifecycle state. Exactly one terminal
// state is reachable per contract.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusReleased, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Contract is one escrow agreement: funds held on an ephemeral
// settlement-network account until released to the destination, cancelled
// back to the source, or swept on expiry.
type Contract struct {
	ID                 string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Asset              string
	ReleaseConditions  []string
	EscrowAccount      string
	// FundingTransferRef is empty when the escrow account was created and
	// reserve-funded but the amount transfer did not complete; the
	// reconciliation collaborator resolves such contracts.
	FundingTransferRef string
	ReleaseTransferRef string
	Memo               string
	ExpiresAt          *time.Time
	Status             Status
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
