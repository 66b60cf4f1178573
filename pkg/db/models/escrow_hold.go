package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// EscrowHold earmarks an order's merchandise and delivery amount for its seller.
type EscrowHold struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_escrow_holds_order"`
	SellerID    uuid.UUID              `gorm:"column:seller_id;type:uuid;not null;index"`
	AmountMinor int64                  `gorm:"column:amount_minor;not null"`
	Currency    string                 `gorm:"column:currency;not null"`
	Status      enums.EscrowHoldStatus `gorm:"column:status;type:text;not null"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	ReleasedAt  *time.Time             `gorm:"column:released_at"`
	RefundedAt  *time.Time             `gorm:"column:refunded_at"`
}

func (e *EscrowHold) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
