// Package dto holds the JSON shapes shared by the checkout controllers.
package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/money"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// ShipTo is the delivery destination supplied by the buyer.
type ShipTo struct {
	Province string  `json:"province" validate:"required,max=64"`
	Country  string  `json:"country" validate:"required,iso3166_1_alpha2"`
	Lat      float64 `json:"lat" validate:"latitude"`
	Lng      float64 `json:"lng" validate:"longitude"`
}

// LineRequest is one requested listing and quantity.
type LineRequest struct {
	ListingID uuid.UUID `json:"listing_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"gt=0,max=10000"`
}

// Contact is the guest buyer's identity at checkout.
type Contact struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	FullName string `json:"full_name" validate:"omitempty,max=128"`
}

type CartItemView struct {
	ID        uuid.UUID `json:"id"`
	ListingID uuid.UUID `json:"listing_id"`
	Quantity  int64     `json:"quantity"`
}

type CartView struct {
	ID        uuid.UUID      `json:"id"`
	Status    string         `json:"status"`
	Items     []CartItemView `json:"items"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func NewCartView(cart *models.Cart) *CartView {
	if cart == nil {
		return nil
	}
	items := make([]CartItemView, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, CartItemView{ID: item.ID, ListingID: item.ListingID, Quantity: item.Quantity})
	}
	return &CartView{
		ID:        cart.ID,
		Status:    string(cart.Status),
		Items:     items,
		UpdatedAt: cart.UpdatedAt,
	}
}

// QuoteView is a priced quote. Every *_minor field has a decimal twin in
// Totals for display.
type QuoteView struct {
	ID                    uuid.UUID               `json:"id"`
	CartSnapshotID        uuid.UUID               `json:"cart_snapshot_id"`
	Sellers               []types.SellerBreakdown `json:"sellers"`
	MerchTotalMinor       int64                   `json:"merch_total_minor"`
	DeliveryTotalMinor    int64                   `json:"delivery_total_minor"`
	AbattoirTotalMinor    int64                   `json:"abattoir_total_minor"`
	ProcessingFeeMinor    int64                   `json:"buyer_processing_fee_minor"`
	EscrowServiceFeeMinor int64                   `json:"escrow_service_fee_minor"`
	GrandTotalMinor       int64                   `json:"grand_total_minor"`
	GrandTotal            string                  `json:"grand_total"`
	Currency              string                  `json:"currency"`
	ExpiresAt             time.Time               `json:"expires_at"`
}

func NewQuoteView(q *models.Quote) *QuoteView {
	if q == nil {
		return nil
	}
	sellers := []types.SellerBreakdown(q.PerSeller)
	if sellers == nil {
		sellers = []types.SellerBreakdown{}
	}
	return &QuoteView{
		ID:                    q.ID,
		CartSnapshotID:        q.CartSnapshotID,
		Sellers:               sellers,
		MerchTotalMinor:       q.MerchTotalMinor,
		DeliveryTotalMinor:    q.DeliveryTotalMinor,
		AbattoirTotalMinor:    q.AbattoirTotalMinor,
		ProcessingFeeMinor:    q.ProcessingFeeMinor,
		EscrowServiceFeeMinor: q.EscrowServiceFeeMinor,
		GrandTotalMinor:       q.GrandTotalMinor,
		GrandTotal:            money.Format(q.GrandTotalMinor),
		Currency:              q.Currency,
		ExpiresAt:             q.ExpiresAt,
	}
}

// SessionView is the owner-scoped view of a checkout session.
type SessionView struct {
	ID               uuid.UUID  `json:"id"`
	QuoteID          uuid.UUID  `json:"quote_id"`
	OrderGroupID     uuid.UUID  `json:"order_group_id"`
	Status           string     `json:"status"`
	Provider         string     `json:"provider"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	AuthorizationURL *string    `json:"authorization_url,omitempty"`
	AmountMinor      int64      `json:"amount_minor"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	Guest            bool       `json:"guest"`
	ReviewRequired   bool       `json:"review_required"`
	FailureReason    *string    `json:"failure_reason,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func NewSessionView(s *models.CheckoutSession) *SessionView {
	if s == nil {
		return nil
	}
	return &SessionView{
		ID:               s.ID,
		QuoteID:          s.QuoteID,
		OrderGroupID:     s.OrderGroupID,
		Status:           string(s.Status),
		Provider:         string(s.Provider),
		PaymentReference: s.PaymentReference,
		AuthorizationURL: s.AuthorizationURL,
		AmountMinor:      s.AmountMinor,
		Amount:           money.Format(s.AmountMinor),
		Currency:         s.Currency,
		Guest:            s.Guest,
		ReviewRequired:   s.ReviewRequired,
		FailureReason:    s.FailureReason,
		ExpiresAt:        s.ExpiresAt,
		PaidAt:           s.PaidAt,
		CreatedAt:        s.CreatedAt,
	}
}

// PaymentView is what the client needs to redirect the buyer to the gateway.
type PaymentView struct {
	SessionID        uuid.UUID `json:"session_id"`
	OrderGroupID     uuid.UUID `json:"order_group_id"`
	Reference        string    `json:"payment_reference"`
	AuthorizationURL string    `json:"authorization_url"`
	Provider         string    `json:"provider,omitempty"`
	AmountMinor      int64     `json:"amount_minor"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	ExpiresAt        time.Time `json:"expires_at"`
}
