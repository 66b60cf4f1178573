package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// SellerRateCard is a seller's delivery pricing, keyed by seller.
type SellerRateCard struct {
	SellerID          uuid.UUID        `gorm:"column:seller_id;type:uuid;primaryKey"`
	BaseFeeMinor      int64            `gorm:"column:base_fee_minor;not null;default:0"`
	PerKmMinor        int64            `gorm:"column:per_km_minor;not null;default:0"`
	MinKm             float64          `gorm:"column:min_km;not null;default:0"`
	MaxKm             float64          `gorm:"column:max_km;not null;default:0"`
	ProvinceWhitelist types.StringList `gorm:"column:province_whitelist;type:jsonb"`
	OriginLat         float64          `gorm:"column:origin_lat;not null"`
	OriginLng         float64          `gorm:"column:origin_lng;not null"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
