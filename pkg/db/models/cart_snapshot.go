package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// CartSnapshot is the immutable audit record of the exact items priced by a quote.
type CartSnapshot struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SessionRef    string          `gorm:"column:session_ref;not null"`
	CartID        *uuid.UUID      `gorm:"column:cart_id;type:uuid"`
	Items         types.LineItems `gorm:"column:items;type:jsonb;not null"`
	SubtotalMinor int64           `gorm:"column:subtotal_minor;not null"`
	Currency      string          `gorm:"column:currency;not null"`
	CapturedAt    time.Time       `gorm:"column:captured_at;not null"`
}

func (c *CartSnapshot) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// BeforeUpdate rejects any attempt to mutate a snapshot.
func (c *CartSnapshot) BeforeUpdate(*gorm.DB) error {
	return ErrImmutable
}
