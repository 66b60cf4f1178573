package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// Repository defines persistence operations for order groups, orders and escrow holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateGroup inserts the group unless one already exists for its
	// checkout session and reports whether a row was written.
	CreateGroup(ctx context.Context, group *models.OrderGroup) (bool, error)
	FindGroupBySession(ctx context.Context, sessionID uuid.UUID) (*models.OrderGroup, error)
	FindGroup(ctx context.Context, groupID uuid.UUID) (*models.OrderGroup, error)
	CreateOrders(ctx context.Context, orders []models.Order) error
	CreateHolds(ctx context.Context, holds []models.EscrowHold) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindHold(ctx context.Context, orderID uuid.UUID) (*models.EscrowHold, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, reason string, at time.Time) (bool, error)
	SettleHold(ctx context.Context, orderID uuid.UUID, to enums.EscrowHoldStatus, at time.Time) (bool, error)
}
