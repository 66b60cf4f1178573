// Package gateway defines the provider-neutral payment gateway contract used by
// checkout and settlement.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// InitiateRequest asks a provider to start collecting AmountMinor for Reference.
type InitiateRequest struct {
	Reference   string
	AmountMinor int64
	Currency    string
	BuyerEmail  string
	CallbackURL string
	Description string
}

// InitiateResult is what the buyer needs to complete payment.
type InitiateResult struct {
	AuthorizationURL string
	ProviderRef      string
}

// WebhookEvent is a verified provider notification normalized for settlement.
type WebhookEvent struct {
	Provider    enums.PaymentProvider
	EventID     string
	EventType   string
	Reference   string
	Status      enums.PaymentStatus
	AmountMinor int64
	Currency    string
	PayloadHash string
}

// Gateway is implemented by each payment provider adapter.
type Gateway interface {
	Provider() enums.PaymentProvider
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// ParseWebhook verifies the signature over the exact raw body before
	// decoding it. Verification failures return ErrInvalidSignature.
	ParseWebhook(body []byte, header http.Header) (*WebhookEvent, error)
}

// ErrInvalidSignature marks a webhook that failed authentication.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// transientError marks failures that are safe to retry: network errors,
// timeouts and 5xx responses.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so IsTransient reports true.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable by a provider adapter.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// StatusError builds the error for a non-2xx provider response.
func StatusError(provider enums.PaymentProvider, status int, body string) error {
	err := fmt.Errorf("%s responded %d: %s", provider, status, body)
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return Transient(err)
	}
	return err
}
