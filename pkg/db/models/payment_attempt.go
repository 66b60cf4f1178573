package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// PaymentAttempt records every payment reference ever issued for a session.
type PaymentAttempt struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutSessionID uuid.UUID                  `gorm:"column:checkout_session_id;type:uuid;not null;index"`
	Reference         string                     `gorm:"column:reference;not null;uniqueIndex:ux_payment_attempts_reference"`
	Provider          enums.PaymentProvider      `gorm:"column:provider;type:text;not null"`
	AuthorizationURL  string                     `gorm:"column:authorization_url;not null"`
	AmountMinor       int64                      `gorm:"column:amount_minor;not null"`
	Status            enums.PaymentAttemptStatus `gorm:"column:status;type:text;not null"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
	SupersededAt      *time.Time                 `gorm:"column:superseded_at"`
}

func (p *PaymentAttempt) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
