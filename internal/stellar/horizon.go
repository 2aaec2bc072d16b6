package stellar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// AccountDetail is the live view of an account on the settlement network.
type AccountDetail struct {
	ID       string
	Sequence int64
	Balances []AssetBalance
}

// AssetBalance is one asset line on a network account.
type AssetBalance struct {
	Asset  string
	Amount string
}

// PaymentRequest describes a signed payment submission. Reference is the
// caller-chosen idempotency key the network bridge reuses on retry.
type PaymentRequest struct {
	SourceSecret string
	Destination  string
	Amount       string
	Asset        string
	Memo         string
	Reference    string
}

// CreateAccountRequest funds a brand-new account from a source account.
type CreateAccountRequest struct {
	SourceSecret    string
	Destination     string
	StartingBalance string
	Reference       string
}

// SubmitResult is the receipt for an accepted submission.
type SubmitResult struct {
	Hash   string
	Ledger int64
}

// RejectedError indicates the network definitively rejected a submission.
// Anything else (timeouts, transport failures) is an unknown outcome and
// must be re-queried by reference before retrying.
type RejectedError struct {
	Code   string
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("submission rejected (%s): %s", e.Code, e.Detail)
}

// Horizon is the settlement-network client injected into the service.
type Horizon interface {
	LoadAccount(ctx context.Context, accountID string) (*AccountDetail, error)
	SubmitPayment(ctx context.Context, req PaymentRequest) (*SubmitResult, error)
	SubmitCreateAccount(ctx context.Context, req CreateAccountRequest) (*SubmitResult, error)
}

// HTTPHorizon talks to a horizon-compatible API plus its submission
// bridge. All calls carry the configured timeout; no ledger lock is ever
// held while one is in flight.
type HTTPHorizon struct {
	baseURL    string
	passphrase string
	client     *http.Client
}

// NewHTTPHorizon builds a network client with an explicit timeout.
func NewHTTPHorizon(baseURL, networkPassphrase string, timeout time.Duration) *HTTPHorizon {
	return &HTTPHorizon{
		baseURL:    strings.TrimRight(baseURL, "/"),
		passphrase: networkPassphrase,
		client:     &http.Client{Timeout: timeout},
	}
}

type horizonAccount struct {
	ID       string `json:"id"`
	Sequence string `json:"sequence"`
	Balances []struct {
		Balance   string `json:"balance"`
		AssetType string `json:"asset_type"`
		AssetCode string `json:"asset_code"`
	} `json:"balances"`
}

func (h *HTTPHorizon) LoadAccount(ctx context.Context, accountID string) (*AccountDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/accounts/"+accountID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrAccountNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("horizon returned %d", resp.StatusCode)
	}

	var raw horizonAccount
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	seq, err := strconv.ParseInt(raw.Sequence, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad sequence %q: %w", raw.Sequence, err)
	}
	detail := &AccountDetail{ID: raw.ID, Sequence: seq}
	for _, b := range raw.Balances {
		asset := b.AssetCode
		if b.AssetType == "native" {
			asset = AssetNative
		}
		detail.Balances = append(detail.Balances, AssetBalance{Asset: asset, Amount: b.Balance})
	}
	return detail, nil
}

type submitEnvelope struct {
	Kind            string `json:"kind"`
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	Amount          string `json:"amount"`
	Asset           string `json:"asset,omitempty"`
	Memo            string `json:"memo,omitempty"`
	Reference       string `json:"reference"`
	Network         string `json:"network"`
	Signature       string `json:"signature"`
	StartingBalance string `json:"starting_balance,omitempty"`
}

type submitResponse struct {
	Hash       string `json:"hash"`
	Ledger     int64  `json:"ledger"`
	Successful bool   `json:"successful"`
	ResultCode string `json:"result_code"`
	Detail     string `json:"detail"`
}

func (h *HTTPHorizon) SubmitPayment(ctx context.Context, req PaymentRequest) (*SubmitResult, error) {
	kp, err := FromSecret(req.SourceSecret)
	if err != nil {
		return nil, err
	}
	env := submitEnvelope{
		Kind:        "payment",
		Source:      kp.Address(),
		Destination: req.Destination,
		Amount:      req.Amount,
		Asset:       req.Asset,
		Memo:        req.Memo,
		Reference:   req.Reference,
		Network:     h.passphrase,
	}
	return h.submit(ctx, kp, env)
}

func (h *HTTPHorizon) SubmitCreateAccount(ctx context.Context, req CreateAccountRequest) (*SubmitResult, error) {
	kp, err := FromSecret(req.SourceSecret)
	if err != nil {
		return nil, err
	}
	env := submitEnvelope{
		Kind:            "create_account",
		Source:          kp.Address(),
		Destination:     req.Destination,
		StartingBalance: req.StartingBalance,
		Reference:       req.Reference,
		Network:         h.passphrase,
	}
	return h.submit(ctx, kp, env)
}

func (h *HTTPHorizon) submit(ctx context.Context, kp *Keypair, env submitEnvelope) (*SubmitResult, error) {
	unsigned, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	env.Signature = fmt.Sprintf("%x", kp.Sign(unsigned))

	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/transactions", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", env.Reference)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		// Transport failure or timeout: outcome unknown.
		return nil, err
	}
	defer resp.Body.Close()

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("horizon returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 || !out.Successful {
		code := out.ResultCode
		if code == "" {
			code = strconv.Itoa(resp.StatusCode)
		}
		return nil, &RejectedError{Code: code, Detail: out.Detail}
	}
	return &SubmitResult{Hash: out.Hash, Ledger: out.Ledger}, nil
}

// IsRejected reports whether the error is a definitive network rejection.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
