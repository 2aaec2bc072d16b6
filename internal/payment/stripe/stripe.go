// Package stripe adapts the card-network gateway onto the canonical
// payment provider contract.
package stripe

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

// ProviderName is the registry key for this adapter.
const ProviderName = "stripe"

// Adapter implements payment.Provider against the card gateway. The API
// client is injected so tests substitute a fake for the network.
type Adapter struct {
	api           API
	store         payment.Store
	webhookSecret string
	logger        *slog.Logger
}

// New constructs the adapter.
func New(api API, store payment.Store, webhookSecret string, logger *slog.Logger) *Adapter {
	return &Adapter{api: api, store: store, webhookSecret: webhookSecret, logger: logger}
}

// Name identifies the adapter in the provider registry.
func (a *Adapter) Name() string { return ProviderName }

// CreatePayment submits the intent to the gateway and persists the
// canonical record keyed by the gateway's intent id.
func (a *Adapter) CreatePayment(ctx context.Context, intent payment.Intent) (*payment.Payment, error) {
	idemKey := intent.Reference
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	gw, err := a.api.CreateIntent(ctx, IntentParams{
		Amount:         toMinorUnits(intent.Amount),
		Currency:       intent.Currency,
		Description:    intent.Description,
		CustomerID:     intent.CustomerID,
		Metadata:       intent.Metadata,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrExternalUnavailable, err)
	}

	now := time.Now().UTC()
	p := &payment.Payment{
		ID:                uuid.NewString(),
		ProviderName:      ProviderName,
		ProviderPaymentID: gw.ID,
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		Status:            mapGatewayStatus(gw.Status),
		Metadata:          intent.Metadata,
		ProviderData:      map[string]string{"client_secret": gw.ClientSecret},
		CustomerID:        intent.CustomerID,
		RedirectURL:       intent.ReturnURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, created, err := a.store.Insert(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		a.logger.Info("duplicate payment submission collapsed",
			"provider", ProviderName, "provider_payment_id", gw.ID, "payment_id", stored.ID)
	}
	return stored, nil
}

// GetPayment re-queries the gateway and reconciles the stored status.
func (a *Adapter) GetPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	p, err := a.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	gw, err := a.api.GetIntent(ctx, p.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrExternalUnavailable, err)
	}

	return a.reconcile(ctx, p, mapGatewayStatus(gw.Status), map[string]string{"last_gateway_status": gw.Status})
}

// CancelPayment cancels the intent while it is still cancelable.
func (a *Adapter) CancelPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	p, err := a.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.Status.Cancelable() {
		return nil, fmt.Errorf("%w: cannot cancel %s payment", payment.ErrInvalidState, p.Status)
	}

	if _, err := a.api.CancelIntent(ctx, p.ProviderPaymentID); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrExternalUnavailable, err)
	}
	return a.store.UpdateStatus(ctx, paymentID, payment.StatusCanceled, nil)
}

// RefundPayment refunds a succeeded payment; a partial amount may not
// exceed the original.
func (a *Adapter) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*payment.Payment, error) {
	p, err := a.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != payment.StatusSucceeded {
		return nil, fmt.Errorf("%w: can only refund succeeded payments", payment.ErrInvalidState)
	}

	var minor *int64
	provData := map[string]string{}
	if amount != nil {
		if amount.GreaterThan(p.Amount) {
			return nil, payment.ErrRefundExceedsAmount
		}
		v := toMinorUnits(*amount)
		minor = &v
		provData["refund_amount"] = amount.String()
	}

	gw, err := a.api.GetIntent(ctx, p.ProviderPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrExternalUnavailable, err)
	}
	if gw.LatestCharge == "" {
		return nil, fmt.Errorf("%w: no charge to refund", payment.ErrInvalidState)
	}

	refund, err := a.api.CreateRefund(ctx, gw.LatestCharge, minor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrExternalUnavailable, err)
	}
	provData["refund_id"] = refund.ID

	return a.store.UpdateStatus(ctx, paymentID, payment.StatusRefunded, provData)
}

type webhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// HandleWebhook verifies the gateway signature and applies the mapped
// status transition. Unknown event types are acknowledged and ignored.
func (a *Adapter) HandleWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookResult, error) {
	if err := verifySignature(payload, signature, a.webhookSecret, time.Now()); err != nil {
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}

	switch event.Type {
	case "payment_intent.succeeded",
		"payment_intent.processing",
		"payment_intent.payment_failed",
		"payment_intent.canceled":
	default:
		a.logger.Info("ignoring unhandled webhook event", "provider", ProviderName, "type", event.Type)
		return nil, nil
	}

	p, err := a.store.FindByProviderRef(ctx, ProviderName, event.Data.Object.ID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			a.logger.Warn("webhook for unknown payment", "provider", ProviderName, "provider_payment_id", event.Data.Object.ID)
			return nil, nil
		}
		return nil, err
	}

	prev := p.Status
	updated, err := a.reconcile(ctx, p, mapGatewayStatus(event.Data.Object.Status), map[string]string{
		"last_webhook_event":  event.Type,
		"last_gateway_status": event.Data.Object.Status,
	})
	if err != nil {
		return nil, err
	}
	return &payment.WebhookResult{Payment: updated, Previous: prev}, nil
}

// reconcile applies a forward-only transition; a backward gateway report
// is logged as an anomaly and the stored status kept.
func (a *Adapter) reconcile(ctx context.Context, p *payment.Payment, to payment.Status, provData map[string]string) (*payment.Payment, error) {
	updated, err := a.store.UpdateStatus(ctx, p.ID, to, provData)
	if err != nil {
		if errors.Is(err, payment.ErrAnomalousStatus) {
			a.logger.Warn("anomalous gateway status ignored",
				"provider", ProviderName, "payment_id", p.ID, "stored", p.Status, "reported", to)
			return p, nil
		}
		return nil, err
	}
	return updated, nil
}

// mapGatewayStatus normalizes a gateway intent status onto the canonical
// enum. Unmapped statuses default to pending, never to succeeded.
func mapGatewayStatus(s string) payment.Status {
	switch s {
	case "requires_payment_method", "requires_confirmation", "requires_action", "requires_capture":
		return payment.StatusPending
	case "processing":
		return payment.StatusProcessing
	case "succeeded":
		return payment.StatusSucceeded
	case "canceled":
		return payment.StatusCanceled
	default:
		return payment.StatusPending
	}
}

// toMinorUnits converts a decimal major-unit amount to the gateway's
// integer minor units.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
