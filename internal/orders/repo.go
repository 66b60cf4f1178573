package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateGroup(ctx context.Context, group *models.OrderGroup) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit("Orders").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(group)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindGroupBySession(ctx context.Context, sessionID uuid.UUID) (*models.OrderGroup, error) {
	var group models.OrderGroup
	err := r.db.WithContext(ctx).
		Preload("Orders", withCancelled).
		Where("checkout_session_id = ?", sessionID).
		First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindGroup(ctx context.Context, groupID uuid.UUID) (*models.OrderGroup, error) {
	var group models.OrderGroup
	err := r.db.WithContext(ctx).
		Preload("Orders", withCancelled).
		Where("id = ?", groupID).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) CreateOrders(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&orders).Error
}

func (r *repository) CreateHolds(ctx context.Context, holds []models.EscrowHold) error {
	if len(holds) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&holds).Error
}

// FindOrder includes cancelled orders so callers can report their state.
func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Unscoped().First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindHold(ctx context.Context, orderID uuid.UUID) (*models.EscrowHold, error) {
	var hold models.EscrowHold
	if err := r.db.WithContext(ctx).First(&hold, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelOrder marks the order CANCELLED and soft-deletes it in one statement.
func (r *repository) CancelOrder(ctx context.Context, orderID uuid.UUID, from []enums.OrderStatus, reason string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     enums.OrderStatusCancelled,
		"deleted_at": at,
	}
	if reason != "" {
		updates["cancel_reason"] = reason
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SettleHold moves a HELD escrow hold to RELEASED or REFUNDED.
func (r *repository) SettleHold(ctx context.Context, orderID uuid.UUID, to enums.EscrowHoldStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to}
	switch to {
	case enums.EscrowHoldReleased:
		updates["released_at"] = at
	case enums.EscrowHoldRefunded:
		updates["refunded_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.EscrowHold{}).
		Where("order_id = ? AND status = ?", orderID, enums.EscrowHoldHeld).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func withCancelled(db *gorm.DB) *gorm.DB {
	return db.Unscoped().Order("seller_id ASC")
}
