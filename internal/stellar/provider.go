package stellar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/payment"
)

// ProviderName is the registry key for the public-ledger adapter.
const ProviderName = "stellar"

// Provider adapts the settlement network onto the canonical payment
// contract. Inbound payments settle to a platform-owned receiving
// account; an indexer collaborator reports transfers back as webhooks.
type Provider struct {
	svc             *Service
	payments        payment.Store
	platformAccount string
	logger          *slog.Logger
}

// NewProvider builds the adapter around the settlement service.
func NewProvider(svc *Service, payments payment.Store, platformAccount string, logger *slog.Logger) *Provider {
	return &Provider{svc: svc, payments: payments, platformAccount: platformAccount, logger: logger}
}

// Name identifies the adapter in the provider registry.
func (p *Provider) Name() string { return ProviderName }

// CreatePayment records a pending payment and hands back the receiving
// address plus the memo reference the customer must attach. The
// reference doubles as the idempotency key.
func (p *Provider) CreatePayment(ctx context.Context, intent payment.Intent) (*payment.Payment, error) {
	ref := intent.Reference
	if ref == "" {
		ref = uuid.NewString()
	}

	now := time.Now().UTC()
	rec := &payment.Payment{
		ID:                uuid.NewString(),
		ProviderName:      ProviderName,
		ProviderPaymentID: ref,
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		Status:            payment.StatusPending,
		Metadata:          intent.Metadata,
		ProviderData: map[string]string{
			"receiver_address": p.platformAccount,
			"memo":             ref,
		},
		CustomerID:  intent.CustomerID,
		RedirectURL: intent.ReturnURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stored, created, err := p.payments.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		p.logger.Info("duplicate payment submission collapsed",
			"provider", ProviderName, "reference", ref, "payment_id", stored.ID)
	}
	return stored, nil
}

// GetPayment reconciles against the transfer receipt recorded under the
// payment's reference, if the indexer has landed one.
func (p *Provider) GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	rec, err := p.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	transfer, err := p.svc.GetTransfer(ctx, rec.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			// Nothing observed on the network yet.
			return rec, nil
		}
		return nil, err
	}

	return p.reconcile(ctx, rec, transferToStatus(transfer.Status), map[string]string{
		"transfer_hash": transfer.Hash,
	})
}

// CancelPayment marks a still-pending payment canceled; once funds move
// on the network there is nothing to abort, only to compensate.
func (p *Provider) CancelPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	rec, err := p.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Cancelable() {
		return nil, fmt.Errorf("%w: cannot cancel %s payment", payment.ErrInvalidState, rec.Status)
	}
	return p.payments.UpdateStatus(ctx, paymentID, payment.StatusCanceled, nil)
}

// RefundPayment issues a reverse transfer from the platform account back
// to the customer's address.
func (p *Provider) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*payment.Payment, error) {
	rec, err := p.payments.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if rec.Status != payment.StatusSucceeded {
		return nil, fmt.Errorf("%w: can only refund succeeded payments", payment.ErrInvalidState)
	}

	refundAmount := rec.Amount
	if amount != nil {
		if amount.GreaterThan(rec.Amount) {
			return nil, payment.ErrRefundExceedsAmount
		}
		refundAmount = *amount
	}

	customerAddress := rec.Metadata["customer_address"]
	if !IsAddress(customerAddress) {
		return nil, fmt.Errorf("%w: no valid customer address on payment", payment.ErrInvalidState)
	}

	transfer, err := p.svc.SendFromStored(ctx, p.platformAccount, PaymentInput{
		Destination: customerAddress,
		Amount:      refundAmount,
		Asset:       AssetNative,
		Memo:        "refund:" + rec.ProviderPaymentID,
		Ref:         "refund:" + rec.ProviderPaymentID,
	})
	if err != nil {
		if errors.Is(err, ErrExternalUnavailable) {
			return nil, fmt.Errorf("%w: %v", payment.ErrExternalUnavailable, err)
		}
		return nil, err
	}

	return p.payments.UpdateStatus(ctx, paymentID, payment.StatusRefunded, map[string]string{
		"refund_transfer_ref": transfer.Ref,
		"refund_hash":         transfer.Hash,
		"refund_amount":       refundAmount.String(),
	})
}

type indexerEvent struct {
	PaymentID string `json:"payment_id"`
	TxHash    string `json:"tx_hash"`
	Status    string `json:"status"`
}

// HandleWebhook applies an indexer notification. Events for unknown
// payments are acknowledged and ignored; replays settle on the same
// status without reapplying anything.
func (p *Provider) HandleWebhook(ctx context.Context, payload []byte, _ string) (*payment.WebhookResult, error) {
	var event indexerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if event.PaymentID == "" {
		p.logger.Info("ignoring webhook without payment reference", "provider", ProviderName)
		return nil, nil
	}

	rec, err := p.payments.FindByProviderRef(ctx, ProviderName, event.PaymentID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			p.logger.Warn("webhook for unknown payment", "provider", ProviderName, "reference", event.PaymentID)
			return nil, nil
		}
		return nil, err
	}

	prev := rec.Status
	updated, err := p.reconcile(ctx, rec, mapIndexerStatus(event.Status), map[string]string{
		"transfer_hash":       event.TxHash,
		"last_indexer_status": event.Status,
	})
	if err != nil {
		return nil, err
	}
	return &payment.WebhookResult{Payment: updated, Previous: prev}, nil
}

func (p *Provider) reconcile(ctx context.Context, rec *payment.Payment, to payment.Status, provData map[string]string) (*payment.Payment, error) {
	updated, err := p.payments.UpdateStatus(ctx, rec.ID, to, provData)
	if err != nil {
		if errors.Is(err, payment.ErrAnomalousStatus) {
			p.logger.Warn("anomalous network status ignored",
				"provider", ProviderName, "payment_id", rec.ID, "stored", rec.Status, "reported", to)
			return rec, nil
		}
		return nil, err
	}
	return updated, nil
}

// mapIndexerStatus normalizes indexer statuses; unmapped values default
// to pending, never to succeeded.
func mapIndexerStatus(s string) payment.Status {
	switch s {
	case "pending", "submitted":
		return payment.StatusPending
	case "confirming":
		return payment.StatusProcessing
	case "success", "completed":
		return payment.StatusSucceeded
	case "failed":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

func transferToStatus(s TransferStatus) payment.Status {
	switch s {
	case TransferSuccess:
		return payment.StatusSucceeded
	case TransferFailed:
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}
