package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// ErrImmutable is returned by hooks on records that are write-once.
var ErrImmutable = errors.New("record is immutable")

// Quote is a priced, time-bounded breakdown of a cart snapshot.
type Quote struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	CartSnapshotID        uuid.UUID              `gorm:"column:cart_snapshot_id;type:uuid;not null;index"`
	PerSeller             types.SellerBreakdowns `gorm:"column:per_seller;type:jsonb;not null"`
	MerchTotalMinor       int64                  `gorm:"column:merch_total_minor;not null"`
	DeliveryTotalMinor    int64                  `gorm:"column:delivery_total_minor;not null"`
	AbattoirTotalMinor    int64                  `gorm:"column:abattoir_total_minor;not null"`
	ProcessingFeeMinor    int64                  `gorm:"column:buyer_processing_fee_minor;not null"`
	EscrowServiceFeeMinor int64                  `gorm:"column:escrow_service_fee_minor;not null"`
	GrandTotalMinor       int64                  `gorm:"column:grand_total_minor;not null"`
	Currency              string                 `gorm:"column:currency;not null"`
	ShipToProvince        string                 `gorm:"column:ship_to_province;not null;default:''"`
	ShipToCountry         string                 `gorm:"column:ship_to_country;not null;default:''"`
	ShipToLat             float64                `gorm:"column:ship_to_lat;not null;default:0"`
	ShipToLng             float64                `gorm:"column:ship_to_lng;not null;default:0"`
	ExpiresAt             time.Time              `gorm:"column:expires_at;not null"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (q *Quote) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

// BeforeUpdate rejects any attempt to mutate a quote.
func (q *Quote) BeforeUpdate(*gorm.DB) error {
	return ErrImmutable
}

// IsExpired reports whether the quote is no longer accepted at now.
func (q *Quote) IsExpired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
