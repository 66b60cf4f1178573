package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindActiveByBuyer(ctx context.Context, buyerUserID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	FindItem(ctx context.Context, cartID, listingID uuid.UUID) (*models.CartItem, error)
	SaveItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.CartStatus) (bool, error)
}

// ListingSource resolves current listings by id.
type ListingSource interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Listing, error)
}

// SnapshotStore persists immutable cart snapshots.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snapshot *models.CartSnapshot) error
}
