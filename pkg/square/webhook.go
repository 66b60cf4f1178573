package square

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

// SignatureHeader carries base64 HMAC-SHA256 over notification URL + body.
const SignatureHeader = "x-square-hmacsha256-signature"

type webhookPayload struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID          string `json:"id"`
				Status      string `json:"status"`
				Note        string `json:"note"`
				ReferenceID string `json:"reference_id"`
				AmountMoney struct {
					Amount   int64  `json:"amount"`
					Currency string `json:"currency"`
				} `json:"amount_money"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// ParseWebhook verifies and normalizes payment.created / payment.updated events.
func (c *Client) ParseWebhook(body []byte, header http.Header) (*gateway.WebhookEvent, error) {
	signed := append([]byte(c.notificationURL), body...)
	if !security.VerifyHMACSHA256Base64(c.webhookSecret, signed, header.Get(SignatureHeader)) {
		return nil, gateway.ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode square webhook: %w", err)
	}
	payment := payload.Data.Object.Payment
	reference := strings.TrimSpace(payment.Note)
	if reference == "" {
		reference = strings.TrimSpace(payment.ReferenceID)
	}
	if payload.EventID == "" || reference == "" {
		return nil, fmt.Errorf("square webhook missing event id or reference")
	}

	return &gateway.WebhookEvent{
		Provider:    enums.PaymentProviderSquare,
		EventID:     payload.EventID,
		EventType:   payload.Type,
		Reference:   reference,
		Status:      mapPaymentStatus(payment.Status),
		AmountMinor: payment.AmountMoney.Amount,
		Currency:    strings.ToUpper(payment.AmountMoney.Currency),
		PayloadHash: security.SHA256Hex(body),
	}, nil
}

func mapPaymentStatus(status string) enums.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED":
		return enums.PaymentStatusSuccess
	case "FAILED", "CANCELED":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
