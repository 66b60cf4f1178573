package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing is the read model of a catalog listing owned by the listing service.
type Listing struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SellerID         uuid.UUID      `gorm:"column:seller_id;type:uuid;not null;index"`
	Title            string         `gorm:"column:title;not null"`
	UnitPriceMinor   int64          `gorm:"column:unit_price_minor;not null"`
	AbattoirFeeMinor int64          `gorm:"column:abattoir_fee_minor;not null;default:0"`
	Currency         string         `gorm:"column:currency;not null;default:'ZAR'"`
	IsActive         bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
