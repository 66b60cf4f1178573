package listings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
)

// Repository reads the listing and seller-profile data owned by the catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a listings repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByIDs returns the listings that exist (soft-deleted rows excluded),
// keyed by id. Missing ids are simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Listing, error) {
	out := make(map[uuid.UUID]models.Listing, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Listing
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindRateCard returns the seller's delivery rate card, or nil when the seller
// has not configured one.
func (r *Repository) FindRateCard(ctx context.Context, sellerID uuid.UUID) (*models.SellerRateCard, error) {
	var card models.SellerRateCard
	err := r.db.WithContext(ctx).First(&card, "seller_id = ?", sellerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}
