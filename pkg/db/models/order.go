package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// Order is one seller's share of a paid checkout. Fee fields are copied from the quote.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	GroupID            uuid.UUID         `gorm:"column:group_id;type:uuid;not null;uniqueIndex:ux_orders_group_seller"`
	SellerID           uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_orders_group_seller;index"`
	BuyerUserID        uuid.UUID         `gorm:"column:buyer_user_id;type:uuid;not null;index"`
	LineItems          types.LineItems   `gorm:"column:line_items;type:jsonb;not null"`
	MerchSubtotalMinor int64             `gorm:"column:merch_subtotal_minor;not null"`
	DeliveryMinor      int64             `gorm:"column:delivery_minor;not null"`
	AbattoirMinor      int64             `gorm:"column:abattoir_minor;not null"`
	ProcessingFeeMinor int64             `gorm:"column:buyer_processing_fee_minor;not null"`
	EscrowFeeMinor     int64             `gorm:"column:escrow_service_fee_minor;not null"`
	TotalMinor         int64             `gorm:"column:total_minor;not null"`
	Currency           string            `gorm:"column:currency;not null"`
	Status             enums.OrderStatus `gorm:"column:status;type:text;not null"`
	CancelReason       *string           `gorm:"column:cancel_reason"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt          gorm.DeletedAt    `gorm:"column:deleted_at;index"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
