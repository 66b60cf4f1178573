package paystack

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Amount    int64       `json:"amount"`
		Currency  string      `json:"currency"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ParseWebhook checks x-paystack-signature (hex HMAC-SHA512 of the raw body
// keyed by the secret key) and normalizes charge events.
func (c *Client) ParseWebhook(body []byte, header http.Header) (*gateway.WebhookEvent, error) {
	if !security.VerifyHMACSHA512Hex(c.secretKey, body, header.Get(SignatureHeader)) {
		return nil, gateway.ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode paystack webhook: %w", err)
	}
	if payload.Event == "" || payload.Data.Reference == "" {
		return nil, fmt.Errorf("paystack webhook missing event or reference")
	}

	eventID := payload.Event + ":" + payload.Data.Reference
	if id := payload.Data.ID.String(); id != "" {
		eventID = payload.Event + ":" + id
	}

	return &gateway.WebhookEvent{
		Provider:    enums.PaymentProviderPaystack,
		EventID:     eventID,
		EventType:   payload.Event,
		Reference:   payload.Data.Reference,
		Status:      mapStatus(payload.Event, payload.Data.Status),
		AmountMinor: payload.Data.Amount,
		Currency:    strings.ToUpper(payload.Data.Currency),
		PayloadHash: security.SHA256Hex(body),
	}, nil
}

func mapStatus(event, status string) enums.PaymentStatus {
	switch {
	case event == "charge.success" && strings.EqualFold(status, "success"):
		return enums.PaymentStatusSuccess
	case event == "charge.failed", strings.EqualFold(status, "failed"), strings.EqualFold(status, "abandoned"), strings.EqualFold(status, "reversed"):
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
