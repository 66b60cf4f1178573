// Package square adapts Square payment links and webhooks to gateway.Gateway.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired   = errors.New("square access token is required")
	errLocationRequired      = errors.New("square location id is required")
	errWebhookSecretRequired = errors.New("square webhook signature key is required")
	errInvalidSquareEnv      = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired        = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

var _ gateway.Gateway = (*Client)(nil)

// paymentLinks is the slice of the SDK used to start hosted checkouts.
type paymentLinks interface {
	Create(ctx context.Context, request *sqcheckout.CreatePaymentLinkRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentLinkResponse, error)
}

// Client creates Square payment links and verifies Square webhooks.
type Client struct {
	links           paymentLinks
	environment     string
	locationID      string
	webhookSecret   string
	notificationURL string
	logger          *logger.Logger
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	logg.Info(ctx, "square client initialized")
	return &Client{
		links:           sdk.Checkout.PaymentLinks,
		environment:     env,
		locationID:      locationID,
		webhookSecret:   webhookSecret,
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		logger:          logg,
	}, nil
}

func (c *Client) Provider() enums.PaymentProvider {
	return enums.PaymentProviderSquare
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Initiate creates a quick-pay payment link. The checkout reference is used as
// both the idempotency key and the payment note so the webhook can be matched
// back to the session.
func (c *Client) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Order " + req.Reference
	}
	linkReq := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(req.Reference),
		QuickPay: &sq.QuickPay{
			Name:       description,
			PriceMoney: moneyPtr(req.AmountMinor, req.Currency),
			LocationID: c.locationID,
		},
		PaymentNote: ptrString(req.Reference),
	}
	if url := ptrString(req.CallbackURL); url != nil {
		linkReq.CheckoutOptions = &sq.CheckoutOptions{RedirectURL: url}
	}
	if email := ptrString(req.BuyerEmail); email != nil {
		linkReq.PrePopulatedData = &sq.PrePopulatedData{BuyerEmail: email}
	}

	c.log(ctx, "request", "create_payment_link", map[string]any{
		"reference":   req.Reference,
		"amount":      req.AmountMinor,
		"buyer_email": req.BuyerEmail,
	})
	resp, err := c.links.Create(ctx, linkReq)
	if err != nil {
		c.log(ctx, "error", "create_payment_link", map[string]any{"error": err.Error()})
		return nil, classifyError(err)
	}

	link := resp.GetPaymentLink()
	if link == nil || stringValue(link.URL) == "" {
		return nil, fmt.Errorf("square returned no payment link")
	}
	c.log(ctx, "response", "create_payment_link", map[string]any{
		"reference": req.Reference,
		"order_id":  stringValue(link.OrderID),
	})
	return &gateway.InitiateResult{
		AuthorizationURL: stringValue(link.URL),
		ProviderRef:      stringValue(link.OrderID),
	}, nil
}

// classifyError marks 5xx, 429 and transport failures as transient. Square
// reports request problems with a list of typed errors in the body.
func classifyError(err error) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return gateway.Transient(fmt.Errorf("square request failed: %w", err))
	}
	detail := ""
	for _, sqErr := range extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		detail = string(sqErr.Code)
		if sqErr.Category == sq.ErrorCategoryAuthenticationError {
			break
		}
	}
	return gateway.StatusError(enums.PaymentProviderSquare, apiErr.StatusCode, detail)
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	if phase == "error" {
		c.logger.Error(ctx, "square "+op, errors.New(fmt.Sprint(fields["error"])))
		return
	}
	c.logger.Info(ctx, "square "+phase)
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}

func ptrString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func moneyPtr(amount int64, currency string) *sq.Money {
	code := sq.Currency(strings.ToUpper(strings.TrimSpace(currency)))
	return &sq.Money{Amount: &amount, Currency: &code}
}
