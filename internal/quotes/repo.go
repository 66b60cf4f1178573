package quotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
)

// Repository persists cart snapshots and quotes. Both are write-once.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a quotes repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CreateSnapshot inserts a cart snapshot.
func (r *Repository) CreateSnapshot(ctx context.Context, snapshot *models.CartSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

// CreateQuote inserts a quote.
func (r *Repository) CreateQuote(ctx context.Context, quote *models.Quote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

// FindQuote loads a quote by id.
func (r *Repository) FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	if err := r.db.WithContext(ctx).First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

// FindSnapshot loads a cart snapshot by id.
func (r *Repository) FindSnapshot(ctx context.Context, id uuid.UUID) (*models.CartSnapshot, error) {
	var snapshot models.CartSnapshot
	if err := r.db.WithContext(ctx).First(&snapshot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &snapshot, nil
}
