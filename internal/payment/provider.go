package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the payment does not exist.
	ErrNotFound = errors.New("payment not found")

	// ErrInvalidState indicates the payment is in the wrong lifecycle stage
	// for the requested operation.
	ErrInvalidState = errors.New("payment in invalid state for operation")

	// ErrUnknownProvider indicates no adapter is registered under the
	// requested provider name.
	ErrUnknownProvider = errors.New("unknown payment provider")

	// ErrAnomalousStatus indicates a gateway reported a status behind the
	// canonical forward-only progression. Callers log it and keep the
	// stored status.
	ErrAnomalousStatus = errors.New("gateway reported out-of-order status")

	// ErrExternalUnavailable indicates a gateway call timed out or failed
	// transport-level. The outcome is unknown: re-query before retrying.
	ErrExternalUnavailable = errors.New("payment gateway unavailable")

	// ErrRefundExceedsAmount indicates a partial refund larger than the
	// original payment.
	ErrRefundExceedsAmount = errors.New("refund amount exceeds original payment")
)

// WebhookResult carries the payment a webhook resolved to together with
// the status stored before the event was applied, so a replayed event can
// be told apart from a genuine transition.
type WebhookResult struct {
	Payment  *Payment
	Previous Status
}

// Provider is implemented once per external gateway. Adapters persist
// canonical Payment records through a shared Store and normalize gateway
// statuses onto the canonical enum.
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, intent Intent) (*Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	CancelPayment(ctx context.Context, paymentID string) (*Payment, error)
	RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*Payment, error)
	// HandleWebhook verifies the event where the gateway supports
	// signatures and applies the mapped status transition. Unknown event
	// types return (nil, nil) to stay forward-compatible.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}
