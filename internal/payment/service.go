package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/money"
	"github.com/cargolink/settlement/internal/notification"
)

// Service routes payment operations to the adapter registered for each
// provider name. The registry is built once at startup and never mutated;
// the service holds no payment state of its own.
type Service struct {
	providers map[string]Provider
	store     Store
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService builds the orchestrator from a fixed set of adapters.
func NewService(store Store, logger *slog.Logger, notifier notification.Notifier, providers ...Provider) (*Service, error) {
	registry := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, dup := registry[p.Name()]; dup {
			return nil, fmt.Errorf("provider %q registered twice", p.Name())
		}
		registry[p.Name()] = p
	}
	return &Service{providers: registry, store: store, notifier: notifier, logger: logger}, nil
}

func (s *Service) resolve(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Create submits a payment intent through the named provider.
func (s *Service) Create(ctx context.Context, providerName string, intent Intent) (*Payment, error) {
	if err := money.RequirePositive(intent.Amount); err != nil {
		return nil, err
	}
	provider, err := s.resolve(providerName)
	if err != nil {
		return nil, err
	}
	return provider.CreatePayment(ctx, intent)
}

// Get re-queries gateway status for the payment and returns the
// reconciled record.
func (s *Service) Get(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	provider, err := s.resolve(p.ProviderName)
	if err != nil {
		return nil, err
	}
	return provider.GetPayment(ctx, paymentID)
}

// Cancel cancels a payment still in a cancelable state.
func (s *Service) Cancel(ctx context.Context, paymentID string) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	provider, err := s.resolve(p.ProviderName)
	if err != nil {
		return nil, err
	}
	return provider.CancelPayment(ctx, paymentID)
}

// Refund refunds a succeeded payment, optionally partially.
func (s *Service) Refund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*Payment, error) {
	p, err := s.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	provider, err := s.resolve(p.ProviderName)
	if err != nil {
		return nil, err
	}
	return provider.RefundPayment(ctx, paymentID, amount)
}

// Webhook dispatches an inbound gateway event to the named provider.
// Unknown event types resolve to (nil, nil).
func (s *Service) Webhook(ctx context.Context, providerName string, payload []byte, signature string) (*Payment, error) {
	provider, err := s.resolve(providerName)
	if err != nil {
		return nil, err
	}
	res, err := provider.HandleWebhook(ctx, payload, signature)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Payment == nil {
		return nil, nil
	}
	p := res.Payment
	// Notify only on the actual transition; a replayed success event
	// resolves to the same record and must not re-send.
	if p.Status == StatusSucceeded && res.Previous != StatusSucceeded && s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindPaymentSucceeded,
			Destination: p.CustomerID,
			Body:        fmt.Sprintf("payment %s settled for %s %s", p.ID, p.Amount.String(), p.Currency),
		})
	}
	return p, nil
}
