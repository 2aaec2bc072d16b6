package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/logging"
	"github.com/cargolink/settlement/internal/money"
	"github.com/cargolink/settlement/internal/notification"
)

// fakeProvider records calls and answers from its payment store, standing
// in for a gateway adapter.
type fakeProvider struct {
	name        string
	store       Store
	createCalls int
	webhookOut  *WebhookResult
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreatePayment(ctx context.Context, intent Intent) (*Payment, error) {
	f.createCalls++
	ref := intent.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	now := time.Now().UTC()
	p := &Payment{
		ID:                uuid.NewString(),
		ProviderName:      f.name,
		ProviderPaymentID: ref,
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		Status:            StatusPending,
		CustomerID:        intent.CustomerID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	stored, _, err := f.store.Insert(ctx, p)
	return stored, err
}

func (f *fakeProvider) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return f.store.Get(ctx, id)
}

func (f *fakeProvider) CancelPayment(ctx context.Context, id string) (*Payment, error) {
	p, err := f.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.Cancelable() {
		return nil, ErrInvalidState
	}
	return f.store.UpdateStatus(ctx, id, StatusCanceled, nil)
}

func (f *fakeProvider) RefundPayment(ctx context.Context, id string, _ *decimal.Decimal) (*Payment, error) {
	return f.store.UpdateStatus(ctx, id, StatusRefunded, nil)
}

func (f *fakeProvider) HandleWebhook(context.Context, []byte, string) (*WebhookResult, error) {
	return f.webhookOut, nil
}

type recordingNotifier struct {
	messages []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.messages = append(n.messages, m)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeProvider, *recordingNotifier) {
	t.Helper()
	store := NewMemoryStore()
	provider := &fakeProvider{name: "fakegate", store: store}
	notifier := &recordingNotifier{}
	svc, err := NewService(store, logging.Discard(), notifier, provider)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, provider, notifier
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	svc, provider, _ := newTestService(t)
	ctx := context.Background()

	for _, raw := range []string{"0", "-5"} {
		_, err := svc.Create(ctx, "fakegate", Intent{Amount: decimal.RequireFromString(raw), Currency: "USD"})
		if !errors.Is(err, money.ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", raw, err)
		}
	}
	if provider.createCalls != 0 {
		t.Fatalf("provider should not be called for invalid amounts, got %d calls", provider.createCalls)
	}
}

func TestCreateUnknownProvider(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), "nope", Intent{Amount: decimal.RequireFromString("10"), Currency: "USD"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestDuplicateProviderRegistration(t *testing.T) {
	store := NewMemoryStore()
	a := &fakeProvider{name: "same", store: store}
	b := &fakeProvider{name: "same", store: store}

	if _, err := NewService(store, logging.Discard(), nil, a, b); err == nil {
		t.Fatal("expected error for duplicate provider name")
	}
}

func TestCreateIsIdempotentPerReference(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	intent := Intent{Amount: decimal.RequireFromString("25.50"), Currency: "USD", Reference: "order-77"}
	first, err := svc.Create(ctx, "fakegate", intent)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := svc.Create(ctx, "fakegate", intent)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("retry with same reference created a new payment: %s vs %s", first.ID, second.ID)
	}
}

func TestCancelLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "fakegate", Intent{Amount: decimal.RequireFromString("10"), Currency: "USD"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	canceled, err := svc.Cancel(ctx, p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != StatusCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}

	if _, err := svc.Cancel(ctx, p.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second cancel: expected ErrInvalidState, got %v", err)
	}
}

func TestWebhookNotifiesOnSuccess(t *testing.T) {
	svc, provider, notifier := newTestService(t)

	provider.webhookOut = &WebhookResult{
		Payment: &Payment{
			ID:         "pay-1",
			CustomerID: "cust-9",
			Amount:     decimal.RequireFromString("40"),
			Currency:   "USD",
			Status:     StatusSucceeded,
		},
		Previous: StatusProcessing,
	}
	p, err := svc.Webhook(context.Background(), "fakegate", []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if p == nil || p.ID != "pay-1" {
		t.Fatalf("unexpected webhook result: %+v", p)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Kind != notification.KindPaymentSucceeded {
		t.Fatalf("expected one success notification, got %+v", notifier.messages)
	}

	// A replay resolves to the same succeeded record and must not
	// notify a second time.
	provider.webhookOut.Previous = StatusSucceeded
	if _, err := svc.Webhook(context.Background(), "fakegate", []byte(`{}`), "sig"); err != nil {
		t.Fatalf("replayed webhook: %v", err)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("replay re-sent the notification: %+v", notifier.messages)
	}
}

func TestWebhookUnknownEventIsAcked(t *testing.T) {
	svc, provider, notifier := newTestService(t)

	provider.webhookOut = nil
	p, err := svc.Webhook(context.Background(), "fakegate", []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if p != nil {
		t.Fatalf("unknown event should yield nil payment, got %+v", p)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("unknown event must not notify, got %+v", notifier.messages)
	}
}

func TestStoreRejectsBackwardTransition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	p := &Payment{ID: "p1", ProviderName: "fakegate", ProviderPaymentID: "ref1", Status: StatusSucceeded}
	if _, _, err := store.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stored, err := store.UpdateStatus(ctx, "p1", StatusProcessing, nil)
	if !errors.Is(err, ErrAnomalousStatus) {
		t.Fatalf("expected ErrAnomalousStatus, got %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Fatalf("backward transition must not change stored status, got %s", stored.Status)
	}
}

func TestStoreSameStatusIsNoOp(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	p := &Payment{ID: "p1", ProviderName: "fakegate", ProviderPaymentID: "ref1", Status: StatusSucceeded}
	if _, _, err := store.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Webhook replay: reasserting the current status must succeed quietly.
	stored, err := store.UpdateStatus(ctx, "p1", StatusSucceeded, map[string]string{"replay": "1"})
	if err != nil {
		t.Fatalf("same-status update: %v", err)
	}
	if stored.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", stored.Status)
	}
	if stored.ProviderData["replay"] != "1" {
		t.Fatal("provider data should still merge on replay")
	}
}
