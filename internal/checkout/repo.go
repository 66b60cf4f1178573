package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// Repository persists checkout sessions and their payment attempts. Every
// status change is a conditional update keyed on the current status.
type Repository struct {
	db *gorm.DB
}

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

func (r *Repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	if err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByReference returns the session whose current reference matches, or nil.
func (r *Repository) FindByReference(ctx context.Context, reference string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// FindLiveByQuote returns the quote's session that is neither PAID nor EXPIRED, or nil.
func (r *Repository) FindLiveByQuote(ctx context.Context, quoteID uuid.UUID) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("quote_id = ? AND status NOT IN ?", quoteID, []enums.CheckoutSessionStatus{
			enums.CheckoutSessionPaid,
			enums.CheckoutSessionExpired,
		}).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// HasPaidForQuote reports whether any session for the quote settled.
func (r *Repository) HasPaidForQuote(ctx context.Context, quoteID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("quote_id = ? AND status = ?", quoteID, enums.CheckoutSessionPaid).
		Count(&count).Error
	return count > 0, err
}

// MarkAwaitingPayment moves a PENDING or FAILED session to AWAITING_PAYMENT
// with a fresh reference. It reports false when another caller won the race.
func (r *Repository) MarkAwaitingPayment(ctx context.Context, id uuid.UUID, reference, authorizationURL string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, []enums.CheckoutSessionStatus{
			enums.CheckoutSessionPending,
			enums.CheckoutSessionFailed,
		}).
		Updates(map[string]any{
			"status":            enums.CheckoutSessionAwaitingPayment,
			"payment_reference": reference,
			"authorization_url": authorizationURL,
			"attempts":          gorm.Expr("attempts + 1"),
			"failure_reason":    nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpirable returns ids of open sessions whose deadline has passed.
func (r *Repository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status IN ? AND expires_at <= ?", enums.OpenSessionStatuses, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Expire moves one open, overdue session to EXPIRED. It never touches a
// session that settled in the meantime.
func (r *Repository) Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ? AND expires_at <= ?", id, enums.OpenSessionStatuses, now).
		Updates(map[string]any{
			"status":     enums.CheckoutSessionExpired,
			"expired_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkPaid settles a session from any state except PAID, so a payment that
// lands after expiry still wins.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, enums.SettleableSessionStatuses).
		Updates(map[string]any{
			"status":         enums.CheckoutSessionPaid,
			"paid_at":        paidAt,
			"failure_reason": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed moves a session to FAILED from the given states.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, from []enums.CheckoutSessionStatus, reason string, review bool) (bool, error) {
	updates := map[string]any{
		"status":         enums.CheckoutSessionFailed,
		"failure_reason": reason,
	}
	if review {
		updates["review_required"] = true
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FlagReview marks a session for manual review without changing its status.
func (r *Repository) FlagReview(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"review_required": true,
			"failure_reason":  reason,
		}).Error
}

// CreateAttempt records an issued payment reference.
func (r *Repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// SupersedeActiveAttempts marks every active attempt of the session superseded.
func (r *Repository) SupersedeActiveAttempts(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("checkout_session_id = ? AND status = ?", sessionID, enums.PaymentAttemptActive).
		Updates(map[string]any{
			"status":        enums.PaymentAttemptSuperseded,
			"superseded_at": at,
		}).Error
}

// FindAttemptByReference returns the attempt for any reference ever issued, or nil.
func (r *Repository) FindAttemptByReference(ctx context.Context, reference string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&attempt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *Repository) ListAttempts(ctx context.Context, sessionID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("checkout_session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}
