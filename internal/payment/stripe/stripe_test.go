package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/logging"
	"github.com/cargolink/settlement/internal/payment"
)

// fakeAPI answers gateway calls from canned intents.
type fakeAPI struct {
	intents     map[string]*Intent
	createErr   error
	refunds     int
	lastIdemKey string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{intents: make(map[string]*Intent)}
}

func (f *fakeAPI) CreateIntent(_ context.Context, params IntentParams) (*Intent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lastIdemKey = params.IdempotencyKey
	// Same idempotency key returns the same intent, like the gateway does.
	if in, ok := f.intents[params.IdempotencyKey]; ok {
		return in, nil
	}
	in := &Intent{
		ID:           "pi_" + params.IdempotencyKey,
		Status:       "requires_payment_method",
		ClientSecret: "cs_test",
		Amount:       params.Amount,
		Currency:     params.Currency,
	}
	f.intents[params.IdempotencyKey] = in
	return in, nil
}

func (f *fakeAPI) GetIntent(_ context.Context, id string) (*Intent, error) {
	for _, in := range f.intents {
		if in.ID == id {
			return in, nil
		}
	}
	return nil, fmt.Errorf("no such intent %s", id)
}

func (f *fakeAPI) CancelIntent(_ context.Context, id string) (*Intent, error) {
	in, err := f.GetIntent(context.Background(), id)
	if err != nil {
		return nil, err
	}
	in.Status = "canceled"
	return in, nil
}

func (f *fakeAPI) CreateRefund(_ context.Context, chargeID string, _ *int64) (*Refund, error) {
	f.refunds++
	return &Refund{ID: "re_1", Status: "succeeded"}, nil
}

func newTestAdapter(t *testing.T) (*Adapter, *fakeAPI, payment.Store) {
	t.Helper()
	api := newFakeAPI()
	store := payment.NewMemoryStore()
	return New(api, store, "", logging.Discard()), api, store
}

func TestCreatePaymentMapsAndStores(t *testing.T) {
	adapter, api, _ := newTestAdapter(t)
	ctx := context.Background()

	p, err := adapter.CreatePayment(ctx, payment.Intent{
		Amount:    decimal.RequireFromString("12.34"),
		Currency:  "USD",
		Reference: "order-1",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if p.Status != payment.StatusPending {
		t.Fatalf("requires_payment_method should map to pending, got %s", p.Status)
	}
	if p.ProviderPaymentID != "pi_order-1" {
		t.Fatalf("unexpected provider payment id %s", p.ProviderPaymentID)
	}
	if api.lastIdemKey != "order-1" {
		t.Fatalf("reference should flow through as idempotency key, got %s", api.lastIdemKey)
	}
	if got := api.intents["order-1"].Amount; got != 1234 {
		t.Fatalf("amount should be submitted in minor units, got %d", got)
	}
}

func TestCreatePaymentRetryCollapses(t *testing.T) {
	adapter, _, _ := newTestAdapter(t)
	ctx := context.Background()

	intent := payment.Intent{Amount: decimal.RequireFromString("9.99"), Currency: "USD", Reference: "order-2"}
	first, err := adapter.CreatePayment(ctx, intent)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := adapter.CreatePayment(ctx, intent)
	if err != nil {
		t.Fatalf("retried create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("retry created a second payment record: %s vs %s", first.ID, second.ID)
	}
}

func TestCreatePaymentGatewayDown(t *testing.T) {
	adapter, api, _ := newTestAdapter(t)
	api.createErr = errors.New("connection refused")

	_, err := adapter.CreatePayment(context.Background(), payment.Intent{
		Amount: decimal.RequireFromString("5"), Currency: "USD",
	})
	if !errors.Is(err, payment.ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}
}

func TestGetPaymentReconcilesForward(t *testing.T) {
	adapter, api, _ := newTestAdapter(t)
	ctx := context.Background()

	p, err := adapter.CreatePayment(ctx, payment.Intent{
		Amount: decimal.RequireFromString("5"), Currency: "USD", Reference: "order-3",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	api.intents["order-3"].Status = "succeeded"
	got, err := adapter.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != payment.StatusSucceeded {
		t.Fatalf("expected succeeded after reconcile, got %s", got.Status)
	}
}

func TestGetPaymentIgnoresBackwardReport(t *testing.T) {
	adapter, api, store := newTestAdapter(t)
	ctx := context.Background()

	p, err := adapter.CreatePayment(ctx, payment.Intent{
		Amount: decimal.RequireFromString("5"), Currency: "USD", Reference: "order-4",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	api.intents["order-4"].Status = "succeeded"
	if _, err := adapter.GetPayment(ctx, p.ID); err != nil {
		t.Fatalf("reconcile to succeeded: %v", err)
	}

	// The gateway now reports an earlier state; the stored status must hold.
	api.intents["order-4"].Status = "processing"
	got, err := adapter.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != payment.StatusSucceeded {
		t.Fatalf("backward report must be ignored, got %s", got.Status)
	}
	stored, err := store.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if stored.Status != payment.StatusSucceeded {
		t.Fatalf("stored status regressed to %s", stored.Status)
	}
}

func TestCancelOnlyWhileCancelable(t *testing.T) {
	adapter, api, _ := newTestAdapter(t)
	ctx := context.Background()

	p, err := adapter.CreatePayment(ctx, payment.Intent{
		Amount: decimal.RequireFromString("5"), Currency: "USD", Reference: "order-5",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	canceled, err := adapter.CancelPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if canceled.Status != payment.StatusCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}

	api.intents["order-5"].Status = "canceled"
	if _, err := adapter.CancelPayment(ctx, p.ID); !errors.Is(err, payment.ErrInvalidState) {
		t.Fatalf("second cancel: expected ErrInvalidState, got %v", err)
	}
}

func TestRefundGuards(t *testing.T) {
	adapter, api, _ := newTestAdapter(t)
	ctx := context.Background()

	p, err := adapter.CreatePayment(ctx, payment.Intent{
		Amount: decimal.RequireFromString("50"), Currency: "USD", Reference: "order-6",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := adapter.RefundPayment(ctx, p.ID, nil); !errors.Is(err, payment.ErrInvalidState) {
		t.Fatalf("refunding a pending payment: expected ErrInvalidState, got %v", err)
	}

	api.intents["order-6"].Status = "succeeded"
	api.intents["order-6"].LatestCharge = "ch_1"
	if _, err := adapter.GetPayment(ctx, p.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	over := decimal.RequireFromString("60")
	if _, err := adapter.RefundPayment(ctx, p.ID, &over); !errors.Is(err, payment.ErrRefundExceedsAmount) {
		t.Fatalf("over-refund: expected ErrRefundExceedsAmount, got %v", err)
	}

	partial := decimal.RequireFromString("20")
	refunded, err := adapter.RefundPayment(ctx, p.ID, &partial)
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if refunded.Status != payment.StatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if api.refunds != 1 {
		t.Fatalf("expected one refund call, got %d", api.refunds)
	}
}

func signPayload(secret string, ts time.Time, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	now := time.Now()

	if err := verifySignature(payload, signPayload(secret, now, payload), secret, now); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := verifySignature(payload, signPayload("wrong", now, payload), secret, now); err == nil {
		t.Fatal("signature with wrong secret accepted")
	}

	stale := now.Add(-6 * time.Minute)
	if err := verifySignature(payload, signPayload(secret, stale, payload), secret, now); err == nil {
		t.Fatal("stale signature accepted")
	}

	tampered := []byte(`{"type":"payment_intent.canceled"}`)
	if err := verifySignature(tampered, signPayload(secret, now, payload), secret, now); err == nil {
		t.Fatal("tampered payload accepted")
	}

	if err := verifySignature(payload, "", secret, now); err == nil {
		t.Fatal("missing header accepted")
	}
}

func TestHandleWebhook(t *testing.T) {
	secret := "whsec_test"
	api := newFakeAPI()
	store := payment.NewMemoryStore()
	adapter := New(api, store, secret, logging.Discard())
	ctx := context.Background()

	p, err := adapter.CreatePayment(ctx, payment.Intent{
		Amount: decimal.RequireFromString("30"), Currency: "USD", Reference: "order-7",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	payload := []byte(fmt.Sprintf(
		`{"type":"payment_intent.succeeded","data":{"object":{"id":%q,"status":"succeeded"}}}`, p.ProviderPaymentID))

	got, err := adapter.HandleWebhook(ctx, payload, signPayload(secret, now, payload))
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	if got == nil || got.Payment.Status != payment.StatusSucceeded {
		t.Fatalf("expected succeeded payment, got %+v", got)
	}
	if got.Previous == payment.StatusSucceeded {
		t.Fatalf("first delivery reported as replay, previous %s", got.Previous)
	}

	// Replay of the same event is a harmless no-op and reports the
	// already-succeeded prior status.
	replayed, err := adapter.HandleWebhook(ctx, payload, signPayload(secret, now, payload))
	if err != nil {
		t.Fatalf("replayed webhook: %v", err)
	}
	if replayed.Payment.Status != payment.StatusSucceeded {
		t.Fatalf("replay changed status to %s", replayed.Payment.Status)
	}
	if replayed.Previous != payment.StatusSucceeded {
		t.Fatalf("replay previous status %s", replayed.Previous)
	}

	// Unknown event types are acknowledged without touching state.
	unknown := []byte(`{"type":"charge.updated"}`)
	res, err := adapter.HandleWebhook(ctx, unknown, signPayload(secret, now, unknown))
	if err != nil {
		t.Fatalf("unknown event: %v", err)
	}
	if res != nil {
		t.Fatalf("unknown event should yield nil, got %+v", res)
	}

	// Unknown payment ids are acknowledged too; gateways retry otherwise.
	stray := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_stray","status":"succeeded"}}}`)
	res, err = adapter.HandleWebhook(ctx, stray, signPayload(secret, now, stray))
	if err != nil {
		t.Fatalf("stray payment event: %v", err)
	}
	if res != nil {
		t.Fatalf("stray payment event should yield nil, got %+v", res)
	}

	if _, err := adapter.HandleWebhook(ctx, payload, "t=1,v1=bad"); err == nil {
		t.Fatal("bad signature accepted")
	}
}
