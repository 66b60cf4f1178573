package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

// GuestResolver maps a guest contact email onto a user record without a password.
type GuestResolver struct {
	repo     *Repository
	validate *validator.Validate
}

func NewGuestResolver(repo *Repository) (*GuestResolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &GuestResolver{repo: repo, validate: validator.New()}, nil
}

// Resolve returns the user owning contact.Email, creating a guest user when
// none exists, and reports whether this call created the row. Existing users
// keep their password and verification state; only empty phone and name
// fields are filled in. Concurrent calls for the same email converge on one
// row through the unique email index, and only the winner reports created.
func (g *GuestResolver) Resolve(ctx context.Context, tx *gorm.DB, contact Contact) (*models.User, bool, error) {
	email := NormalizeEmail(contact.Email)
	if err := g.validate.Var(email, "required,email"); err != nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "a valid contact email is required").
			WithDetails(map[string]any{"field": "contact.email"})
	}
	phone := strings.TrimSpace(contact.Phone)
	fullName := strings.TrimSpace(contact.FullName)
	repo := g.repo.WithTx(tx)

	existing, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user by email")
	}
	if existing == nil {
		user := &models.User{Email: email, FullName: fullName, IsGuest: true}
		if phone != "" {
			user.Phone = &phone
		}
		created, err := repo.CreateIfAbsent(ctx, user)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create guest user")
		}
		if created {
			return user, true, nil
		}
		existing, err = repo.FindByEmail(ctx, email)
		if err != nil || existing == nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refetch guest user")
		}
	}

	if err := repo.FillProfile(ctx, existing.ID, phone, fullName); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "merge guest profile")
	}
	user, err := repo.FindByID(ctx, existing.ID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, false, nil
}
