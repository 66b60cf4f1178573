package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// CheckoutSession owns the payment lifecycle of one accepted quote.
//
// OrderGroupID is allocated when the session is created so the buyer can be
// handed the group identifier before payment settles. A quote has at most one
// session that is not PAID or EXPIRED.
type CheckoutSession struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	BuyerUserID      uuid.UUID                   `gorm:"column:buyer_user_id;type:uuid;not null;index"`
	BuyerEmail       string                      `gorm:"column:buyer_email;not null"`
	Guest            bool                        `gorm:"column:guest;not null;default:false"`
	QuoteID          uuid.UUID                   `gorm:"column:quote_id;type:uuid;not null;uniqueIndex:ux_checkout_sessions_quote_open,where:status <> 'PAID' AND status <> 'EXPIRED'"`
	CartID           *uuid.UUID                  `gorm:"column:cart_id;type:uuid"`
	OrderGroupID     uuid.UUID                   `gorm:"column:order_group_id;type:uuid;not null;uniqueIndex:ux_checkout_sessions_order_group"`
	Status           enums.CheckoutSessionStatus `gorm:"column:status;type:text;not null;index"`
	Provider         enums.PaymentProvider       `gorm:"column:provider;type:text;not null"`
	PaymentReference *string                     `gorm:"column:payment_reference;uniqueIndex:ux_checkout_sessions_reference"`
	AuthorizationURL *string                     `gorm:"column:authorization_url"`
	AmountMinor      int64                       `gorm:"column:amount_minor;not null"`
	Currency         string                      `gorm:"column:currency;not null"`
	Attempts         int                         `gorm:"column:attempts;not null;default:0"`
	ReviewRequired   bool                        `gorm:"column:review_required;not null;default:false"`
	FailureReason    *string                     `gorm:"column:failure_reason"`
	ExpiresAt        time.Time                   `gorm:"column:expires_at;not null;index"`
	PaidAt           *time.Time                  `gorm:"column:paid_at"`
	ExpiredAt        *time.Time                  `gorm:"column:expired_at"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *CheckoutSession) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	ensureID(&s.OrderGroupID)
	return nil
}
