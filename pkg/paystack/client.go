// Package paystack adapts the Paystack transaction API to gateway.Gateway.
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
)

const (
	defaultBaseURL        = "https://api.paystack.co"
	SignatureHeader       = "x-paystack-signature"
	responseBodyReadLimit = 1024
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

var _ gateway.Gateway = (*Client)(nil)

// Client calls Paystack and verifies its webhooks with the same secret key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Paystack API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

func NewClient(secretKey string, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return nil, errSecretKeyRequired
	}
	c := &Client{
		secretKey:  key,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) Provider() enums.PaymentProvider {
	return enums.PaymentProviderPaystack
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initiate calls POST /transaction/initialize. Network failures and 5xx
// responses are marked transient for the registry's retry policy.
func (c *Client) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	payload, err := json.Marshal(initializeRequest{
		Email:       req.BuyerEmail,
		Amount:      req.AmountMinor,
		Currency:    strings.ToUpper(req.Currency),
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build initialize request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, gateway.Transient(fmt.Errorf("execute initialize request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, gateway.StatusError(c.Provider(), resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var body initializeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode initialize response: %w", err)
	}
	if !body.Status || body.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize failed: %s", body.Message)
	}
	return &gateway.InitiateResult{
		AuthorizationURL: body.Data.AuthorizationURL,
		ProviderRef:      body.Data.AccessCode,
	}, nil
}
