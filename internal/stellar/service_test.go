package stellar

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/cargolink/settlement/internal/logging"
)

// fakeHorizon is a scripted network double.
type fakeHorizon struct {
	submitErr   error
	submits     int
	lastRequest PaymentRequest
	accounts    map[string]*AccountDetail
}

func (f *fakeHorizon) LoadAccount(_ context.Context, accountID string) (*AccountDetail, error) {
	detail, ok := f.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return detail, nil
}

func (f *fakeHorizon) SubmitPayment(_ context.Context, req PaymentRequest) (*SubmitResult, error) {
	f.submits++
	f.lastRequest = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &SubmitResult{Hash: "txhash", Ledger: 12345}, nil
}

func (f *fakeHorizon) SubmitCreateAccount(_ context.Context, _ CreateAccountRequest) (*SubmitResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &SubmitResult{Hash: "createhash", Ledger: 12346}, nil
}

func newTestStellar(t *testing.T) (*Service, *fakeHorizon) {
	t.Helper()
	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	horizon := &fakeHorizon{accounts: make(map[string]*AccountDetail)}
	return NewService(NewMemoryStore(), horizon, NewVault(key), logging.Discard()), horizon
}

func TestCreateAccountSealsSecret(t *testing.T) {
	svc, _ := newTestStellar(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "carrier-1")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if !IsAddress(created.PublicKey) {
		t.Fatalf("bad public key %s", created.PublicKey)
	}

	stored, err := svc.GetAccount(ctx, created.PublicKey)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if stored.SecretSealed == created.Secret {
		t.Fatal("secret stored unsealed")
	}
	if stored.OwnerRef != "carrier-1" {
		t.Fatalf("owner ref %s", stored.OwnerRef)
	}
}

func TestSendPaymentSuccess(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()

	kp, _ := NewKeypair()
	dest, _ := NewKeypair()

	transfer, err := svc.SendPayment(ctx, PaymentInput{
		SourceSecret: kp.Secret(),
		Destination:  dest.Address(),
		Amount:       decimal.RequireFromString("100"),
		Ref:          "load-1",
	})
	if err != nil {
		t.Fatalf("SendPayment: %v", err)
	}
	if transfer.Status != TransferSuccess {
		t.Fatalf("expected success, got %s", transfer.Status)
	}
	if transfer.Hash != "txhash" || transfer.Ledger != 12345 {
		t.Fatalf("receipt not recorded: %+v", transfer)
	}
	if horizon.lastRequest.Reference != "load-1" {
		t.Fatalf("reference not forwarded, got %s", horizon.lastRequest.Reference)
	}

	stored, err := svc.GetTransfer(ctx, "load-1")
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if stored.Status != TransferSuccess {
		t.Fatalf("stored status %s", stored.Status)
	}
}

func TestSendPaymentRejected(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()
	horizon.submitErr = &RejectedError{Code: "op_underfunded", Detail: "insufficient balance"}

	kp, _ := NewKeypair()
	dest, _ := NewKeypair()

	transfer, err := svc.SendPayment(ctx, PaymentInput{
		SourceSecret: kp.Secret(),
		Destination:  dest.Address(),
		Amount:       decimal.RequireFromString("100"),
		Ref:          "load-2",
	})
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if transfer.Status != TransferFailed {
		t.Fatalf("expected failed, got %s", transfer.Status)
	}

	stored, err := svc.GetTransfer(ctx, "load-2")
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if stored.Status != TransferFailed {
		t.Fatalf("rejection not persisted, status %s", stored.Status)
	}
	if stored.ErrorDetail == "" {
		t.Fatal("rejection detail not recorded")
	}
}

func TestSendPaymentAmbiguousOutcomeStaysPending(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()
	horizon.submitErr = errors.New("i/o timeout")

	kp, _ := NewKeypair()
	dest, _ := NewKeypair()
	input := PaymentInput{
		SourceSecret: kp.Secret(),
		Destination:  dest.Address(),
		Amount:       decimal.RequireFromString("50"),
		Ref:          "load-3",
	}

	_, err := svc.SendPayment(ctx, input)
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}

	stored, err := svc.GetTransfer(ctx, "load-3")
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if stored.Status != TransferPending {
		t.Fatalf("ambiguous outcome must stay pending, got %s", stored.Status)
	}

	// A blind retry with the same reference must not resubmit while the
	// first attempt is unresolved.
	horizon.submitErr = nil
	_, err = svc.SendPayment(ctx, input)
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("retry of unresolved transfer: expected ErrExternalUnavailable, got %v", err)
	}
	if horizon.submits != 1 {
		t.Fatalf("unresolved transfer resubmitted, %d submissions", horizon.submits)
	}
}

func TestSendPaymentDuplicateRefReturnsReceipt(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()

	kp, _ := NewKeypair()
	dest, _ := NewKeypair()
	input := PaymentInput{
		SourceSecret: kp.Secret(),
		Destination:  dest.Address(),
		Amount:       decimal.RequireFromString("75"),
		Ref:          "load-4",
	}

	if _, err := svc.SendPayment(ctx, input); err != nil {
		t.Fatalf("first send: %v", err)
	}
	again, err := svc.SendPayment(ctx, input)
	if err != nil {
		t.Fatalf("replayed send: %v", err)
	}
	if again.Status != TransferSuccess {
		t.Fatalf("expected the settled receipt, got %s", again.Status)
	}
	if horizon.submits != 1 {
		t.Fatalf("settled transfer resubmitted, %d submissions", horizon.submits)
	}
}

func TestSendFromStoredOpensSealedSecret(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "escrow")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	dest, _ := NewKeypair()

	transfer, err := svc.SendFromStored(ctx, created.PublicKey, PaymentInput{
		Destination: dest.Address(),
		Amount:      decimal.RequireFromString("10"),
		Ref:         "payout-1",
	})
	if err != nil {
		t.Fatalf("SendFromStored: %v", err)
	}
	if transfer.SourceAccount != created.PublicKey {
		t.Fatalf("payment sourced from %s, want %s", transfer.SourceAccount, created.PublicKey)
	}
	if horizon.lastRequest.SourceSecret != created.Secret {
		t.Fatal("opened secret does not match the created account's secret")
	}
}

func TestAccountBalanceRefreshesSnapshot(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()

	created, err := svc.CreateAccount(ctx, "shipper")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	horizon.accounts[created.PublicKey] = &AccountDetail{
		ID:       created.PublicKey,
		Sequence: 7,
		Balances: []AssetBalance{{Asset: AssetNative, Amount: "120.5"}},
	}

	balance, err := svc.AccountBalance(ctx, created.PublicKey, AssetNative)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("120.5")) {
		t.Fatalf("balance %s", balance)
	}

	stored, err := svc.GetAccount(ctx, created.PublicKey)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !stored.BalanceSnapshot.Equal(decimal.RequireFromString("120.5")) {
		t.Fatalf("snapshot not refreshed, got %s", stored.BalanceSnapshot)
	}
	if stored.Sequence != 7 {
		t.Fatalf("sequence not refreshed, got %d", stored.Sequence)
	}
}

func TestFundNewAccountRecordsReceipt(t *testing.T) {
	svc, _ := newTestStellar(t)
	ctx := context.Background()

	source, _ := NewKeypair()
	dest, _ := NewKeypair()
	if err := svc.FundNewAccount(ctx, source.Secret(), dest.Address(), decimal.RequireFromString("2.5"), "fund-1"); err != nil {
		t.Fatalf("FundNewAccount: %v", err)
	}

	receipt, err := svc.GetTransfer(ctx, "fund-1")
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if receipt.Status != TransferSuccess {
		t.Fatalf("expected success receipt, got %s", receipt.Status)
	}
	if receipt.Hash != "createhash" {
		t.Fatalf("receipt hash %s", receipt.Hash)
	}

	// Reusing the settled ref is a no-op, not a second funding.
	if err := svc.FundNewAccount(ctx, source.Secret(), dest.Address(), decimal.RequireFromString("2.5"), "fund-1"); err != nil {
		t.Fatalf("retry on settled ref: %v", err)
	}
}

func TestFundNewAccountAmbiguousOutcomeStaysPending(t *testing.T) {
	svc, horizon := newTestStellar(t)
	ctx := context.Background()

	source, _ := NewKeypair()
	dest, _ := NewKeypair()
	horizon.submitErr = errors.New("connection reset")
	err := svc.FundNewAccount(ctx, source.Secret(), dest.Address(), decimal.RequireFromString("2.5"), "fund-2")
	if !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("expected ErrExternalUnavailable, got %v", err)
	}

	receipt, err := svc.GetTransfer(ctx, "fund-2")
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	if receipt.Status != TransferPending {
		t.Fatalf("expected pending receipt, got %s", receipt.Status)
	}

	// The unresolved ref must not be resubmitted blindly.
	horizon.submitErr = nil
	if err := svc.FundNewAccount(ctx, source.Secret(), dest.Address(), decimal.RequireFromString("2.5"), "fund-2"); !errors.Is(err, ErrExternalUnavailable) {
		t.Fatalf("retry on pending ref: expected ErrExternalUnavailable, got %v", err)
	}
}
