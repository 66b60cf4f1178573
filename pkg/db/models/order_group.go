package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderGroup ties the per-seller orders of one paid checkout session together.
// The unique index on checkout_session_id guarantees a single split per session.
type OrderGroup struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutSessionID uuid.UUID `gorm:"column:checkout_session_id;type:uuid;not null;uniqueIndex:ux_order_groups_session"`
	BuyerUserID       uuid.UUID `gorm:"column:buyer_user_id;type:uuid;not null;index"`
	Orders            []Order   `gorm:"foreignKey:GroupID;references:ID"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (g *OrderGroup) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
