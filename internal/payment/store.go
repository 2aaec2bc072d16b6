package payment

import (
	"context"
)

// Store persists canonical payment records.
//
// Insert is idempotent on (provider name, provider payment id): a retried
// insert for an already-seen external payment returns the existing record
// with created=false instead of creating a duplicate.
//
// UpdateStatus enforces forward-only progression: a no-op when the status
// is unchanged, ErrAnomalousStatus when the requested status is behind
// the stored one. Extra provider data is merged, never replaced
// wholesale; status and identity fields cannot be set through the merge.
type Store interface {
	Insert(ctx context.Context, p *Payment) (stored *Payment, created bool, err error)
	Get(ctx context.Context, id string) (*Payment, error)
	FindByProviderRef(ctx context.Context, providerName, providerPaymentID string) (*Payment, error)
	UpdateStatus(ctx context.Context, id string, to Status, providerData map[string]string) (*Payment, error)
}
