package stellar

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetNative is the settlement network's native asset code.
const AssetNative = "native"

// Account is a settlement-network account the platform controls: either a
// long-lived user account or an ephemeral per-contract escrow account.
// The secret seed is stored sealed; only the vault opens it.
type Account struct {
	PublicKey       string
	SecretSealed    string
	OwnerRef        string
	Sequence        int64
	BalanceSnapshot decimal.Decimal
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransferStatus tracks an external transfer attempt.
type TransferStatus string

const (
	TransferPending TransferStatus = "pending"
	TransferSuccess TransferStatus = "success"
	TransferFailed  TransferStatus = "failed"
)

// Transfer is the append-only record of one external transfer attempt,
// keyed by its unique reference. A pending record whose submission timed
// out stays pending until re-queried; it is never silently retried.
type Transfer struct {
	Ref                string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Asset              string
	Status             TransferStatus
	Hash               string
	Ledger             int64
	ErrorDetail        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
