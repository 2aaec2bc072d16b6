package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Intent mirrors the gateway's payment-intent resource, reduced to the
// fields the adapter consumes.
type Intent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	LatestCharge string `json:"latest_charge"`
}

// Refund mirrors the gateway's refund resource.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

// IntentParams carries the fields submitted when creating an intent.
// IdempotencyKey is reused on retry so a timed-out submission can never
// create a second intent.
type IntentParams struct {
	Amount         int64
	Currency       string
	Description    string
	CustomerID     string
	Metadata       map[string]string
	IdempotencyKey string
}

// API is the gateway client injected into the adapter. A fake
// implementation substitutes for the network in tests.
type API interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) (*Intent, error)
	CreateRefund(ctx context.Context, chargeID string, amount *int64) (*Refund, error)
}

// HTTPClient talks to the gateway's form-encoded REST API. Every call
// carries the client timeout; a timeout is an unknown outcome, not a
// failure.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient constructs a gateway client with an explicit timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", strings.ToLower(params.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var out Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, params.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetIntent(ctx context.Context, id string) (*Intent, error) {
	var out Intent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CancelIntent(ctx context.Context, id string) (*Intent, error) {
	var out Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+url.PathEscape(id)+"/cancel", url.Values{}, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, chargeID string, amount *int64) (*Refund, error) {
	form := url.Values{}
	form.Set("charge", chargeID)
	if amount != nil {
		form.Set("amount", strconv.FormatInt(*amount, 10))
	}
	var out Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", form, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.apiKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Type    string `json:"type"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gateway error (%s): %s", apiErr.Error.Type, apiErr.Error.Message)
		}
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
