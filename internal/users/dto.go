package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	Phone         *string   `json:"phone,omitempty"`
	IsGuest       bool      `json:"is_guest"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Contact is the profile a guest supplies at checkout.
type Contact struct {
	Email    string
	Phone    string
	FullName string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Phone:         u.Phone,
		IsGuest:       u.IsGuest,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address for identity lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
