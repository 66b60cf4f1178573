package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// FindByEmail retrieves the user with the given normalized email, or nil.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateIfAbsent inserts user unless the email already exists. It reports
// whether this call created the row; a lost race is not an error.
func (r *Repository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FillProfile sets the supplied columns only where they are currently empty.
func (r *Repository) FillProfile(ctx context.Context, id uuid.UUID, phone, fullName string) error {
	if phone != "" {
		if err := r.db.WithContext(ctx).
			Model(&models.User{}).
			Where("id = ? AND (phone IS NULL OR phone = '')", id).
			UpdateColumn("phone", phone).Error; err != nil {
			return err
		}
	}
	if fullName != "" {
		if err := r.db.WithContext(ctx).
			Model(&models.User{}).
			Where("id = ? AND full_name = ''", id).
			UpdateColumn("full_name", fullName).Error; err != nil {
			return err
		}
	}
	return nil
}

// ClaimGuest attaches a password to a guest account and clears the guest flag.
// It reports false when the row is no longer a guest.
func (r *Repository) ClaimGuest(ctx context.Context, id uuid.UUID, passwordHash string, fullName string) (bool, error) {
	updates := map[string]any{
		"password_hash": passwordHash,
		"is_guest":      false,
	}
	if fullName != "" {
		updates["full_name"] = fullName
	}
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND is_guest = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
