package settlementfeed

import (
	"encoding/json"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// Envelope is a decoded domain event taken off the settlement subscription.
type Envelope struct {
	EventID     uuid.UUID
	EventType   enums.OutboxEventType
	Version     int
	AggregateID string
	OccurredAt  time.Time
	Payload     json.RawMessage
}

// SettlementRow mirrors the settlements BigQuery schema. One row is written
// per settlement outcome or refund.
type SettlementRow struct {
	EventID        string             `bigquery:"event_id"`
	EventType      string             `bigquery:"event_type"`
	OccurredAt     time.Time          `bigquery:"occurred_at"`
	SessionID      *string            `bigquery:"session_id"`
	OrderGroupID   *string            `bigquery:"order_group_id"`
	OrderID        *string            `bigquery:"order_id"`
	BuyerUserID    *string            `bigquery:"buyer_user_id"`
	SellerID       *string            `bigquery:"seller_id"`
	Provider       *string            `bigquery:"provider"`
	Reference      *string            `bigquery:"reference"`
	PaymentStatus  *string            `bigquery:"payment_status"`
	AmountMinor    int64              `bigquery:"amount_minor"`
	ExpectedMinor  *int64             `bigquery:"expected_minor"`
	RefundedMinor  *int64             `bigquery:"refunded_minor"`
	Currency       string             `bigquery:"currency"`
	ReviewRequired bool               `bigquery:"review_required"`
	Reason         *string            `bigquery:"reason"`
	Payload        cbigquery.NullJSON `bigquery:"payload"`
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return strPtr(id.String())
}

func int64Ptr(value int64) *int64 {
	return &value
}
