package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a ledger transaction.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
)

// Status tracks the lifecycle of a ledger transaction. A transaction is
// written pending before the balance mutation and completed in the same
// atomic unit; completed and failed records are immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Wallet is a stored-value account. Balance never goes negative at a
// committed state and currency is immutable after creation.
type Wallet struct {
	ID        string
	OwnerID   string
	Balance   decimal.Decimal
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is one committed ledger mutation. Amount is signed:
// withdrawals carry a negative amount.
type Transaction struct {
	ID        string
	WalletID  string
	Amount    decimal.Decimal
	Kind      Kind
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
