package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the provider-agnostic payment status every adapter maps its
// gateway statuses onto. Progression is forward-only.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	StatusRefunded   Status = "refunded"
)

// CanTransition reports whether a payment may move from one canonical
// status to another. Refunded is the only state reachable after
// succeeded; failed and canceled branch off before settlement.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		switch to {
		case StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled:
			return true
		}
	case StatusProcessing:
		switch to {
		case StatusSucceeded, StatusFailed, StatusCanceled:
			return true
		}
	case StatusSucceeded:
		return to == StatusRefunded
	}
	return false
}

// Cancelable reports whether a cancel request is still permitted.
func (s Status) Cancelable() bool {
	return s == StatusPending || s == StatusProcessing
}

// Payment is the canonical record of one gateway payment. The pair
// (ProviderName, ProviderPaymentID) is the idempotency key: the same
// external payment is never re-created.
type Payment struct {
	ID                string
	ProviderName      string
	ProviderPaymentID string
	Amount            decimal.Decimal
	Currency          string
	Status            Status
	Metadata          map[string]string
	ProviderData      map[string]string
	CustomerID        string
	RedirectURL       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Intent describes a payment the caller wants submitted to a gateway.
type Intent struct {
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
	CustomerID  string
	ReturnURL   string
	// Reference is a caller-chosen idempotency key reused on retry of the
	// same logical submission.
	Reference string
}
