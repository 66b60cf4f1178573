package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// Repository appends payment events. Rows are never deleted; only the
// outcome columns are filled in once processing finishes.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Insert stores the event unless a verified event with the same provider
// event id or payload hash exists, and reports whether a row was written.
func (r *Repository) Insert(ctx context.Context, event *models.PaymentEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Recorded reports whether a verified event with this provider event id exists.
func (r *Repository) Recorded(ctx context.Context, provider enums.PaymentProvider, eventID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("provider = ? AND event_id = ? AND verified = ?", provider, eventID, true).
		Count(&n).Error
	return n > 0, err
}

// Finish records what processing did with the event.
func (r *Repository) Finish(ctx context.Context, id uuid.UUID, outcome enums.PaymentEventOutcome, detail string, at time.Time) error {
	updates := map[string]any{
		"outcome":      outcome,
		"processed_at": at,
	}
	if detail != "" {
		updates["detail"] = detail
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *Repository) ListByReference(ctx context.Context, reference string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("payment_reference = ?", reference).
		Order("received_at ASC").
		Find(&events).Error
	return events, err
}
