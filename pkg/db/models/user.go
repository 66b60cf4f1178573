package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a buyer identity. Guest users carry no password.
type User struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email         string    `gorm:"column:email;type:text;not null;uniqueIndex:ux_users_email"`
	PasswordHash  *string   `gorm:"column:password_hash"`
	FullName      string    `gorm:"column:full_name;not null;default:''"`
	Phone         *string   `gorm:"column:phone"`
	IsGuest       bool      `gorm:"column:is_guest;not null;default:false"`
	EmailVerified bool      `gorm:"column:email_verified;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
