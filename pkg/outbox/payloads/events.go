package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// CheckoutSessionCreatedEvent is emitted when a buyer accepts a quote.
type CheckoutSessionCreatedEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	QuoteID      uuid.UUID `json:"quote_id"`
	BuyerUserID  uuid.UUID `json:"buyer_user_id"`
	OrderGroupID uuid.UUID `json:"order_group_id"`
	Guest        bool      `json:"guest"`
	AmountMinor  int64     `json:"amount_minor"`
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// PaymentInitiatedEvent records a fresh payment reference handed to the buyer.
type PaymentInitiatedEvent struct {
	SessionID        uuid.UUID             `json:"session_id"`
	Reference        string                `json:"reference"`
	SupersededRef    *string               `json:"superseded_reference,omitempty"`
	Provider         enums.PaymentProvider `json:"provider"`
	AmountMinor      int64                 `json:"amount_minor"`
	Currency         string                `json:"currency"`
	Attempt          int                   `json:"attempt"`
	AuthorizationURL string                `json:"authorization_url"`
}

// CheckoutSessionExpiredEvent is emitted by the expiry sweep.
type CheckoutSessionExpiredEvent struct {
	SessionID  uuid.UUID                   `json:"session_id"`
	QuoteID    uuid.UUID                   `json:"quote_id"`
	PrevStatus enums.CheckoutSessionStatus `json:"previous_status"`
	ExpiredAt  time.Time                   `json:"expired_at"`
}

// SettlementEvent describes the outcome of reconciling one gateway webhook
// against a session. It backs the paid, failed and review event types.
type SettlementEvent struct {
	SessionID       uuid.UUID             `json:"session_id"`
	OrderGroupID    *uuid.UUID            `json:"order_group_id,omitempty"`
	BuyerUserID     uuid.UUID             `json:"buyer_user_id"`
	Provider        enums.PaymentProvider `json:"provider"`
	ProviderEventID string                `json:"provider_event_id"`
	Reference       string                `json:"reference"`
	Status          enums.PaymentStatus   `json:"status"`
	AmountMinor     int64                 `json:"amount_minor"`
	ExpectedMinor   int64                 `json:"expected_minor"`
	Currency        string                `json:"currency"`
	ReviewRequired  bool                  `json:"review_required"`
	Reason          string                `json:"reason,omitempty"`
	SettledAt       time.Time             `json:"settled_at"`
}

// OrderGroupCreatedEvent signals a paid session split into per-seller orders.
type OrderGroupCreatedEvent struct {
	OrderGroupID uuid.UUID   `json:"order_group_id"`
	SessionID    uuid.UUID   `json:"session_id"`
	BuyerUserID  uuid.UUID   `json:"buyer_user_id"`
	OrderIDs     []uuid.UUID `json:"order_ids"`
	SellerIDs    []uuid.UUID `json:"seller_ids"`
	TotalMinor   int64       `json:"total_minor"`
	Currency     string      `json:"currency"`
}

// OrderStatusChangedEvent is emitted on every fulfilment transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	GroupID   uuid.UUID         `json:"group_id"`
	SellerID  uuid.UUID         `json:"seller_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderCancelledEvent is emitted when a buyer cancels an order before delivery.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	GroupID       uuid.UUID `json:"group_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	RefundedMinor int64     `json:"refunded_minor"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason,omitempty"`
	CancelledAt   time.Time `json:"cancelled_at"`
}
