package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/internal/users"
	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

// RegisterService creates buyer accounts and upgrades guest accounts.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
	ClaimGuest(ctx context.Context, userID uuid.UUID, req ClaimGuestRequest) (*users.UserDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterServiceParams packages the dependencies for the registration flow.
type RegisterServiceParams struct {
	Tx             txRunner
	Users          *users.Repository
	PasswordConfig config.PasswordConfig
}

type registerService struct {
	tx          txRunner
	users       *users.Repository
	passwordCfg config.PasswordConfig
}

// NewRegisterService builds a registration service with the provided dependencies.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	return &registerService{tx: params.Tx, users: params.Users, passwordCfg: params.PasswordConfig}, nil
}

// Register creates a password account. An email already held by a guest
// checkout is refused; that account is claimed through ClaimGuest with the
// token its checkout issued.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	email := users.NormalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	fullName := strings.TrimSpace(req.FullName)

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}

	var created *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		existing, err := repo.FindByEmail(ctx, email)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
		}
		if existing != nil {
			if existing.IsGuest {
				return pkgerrors.New(pkgerrors.CodeConflict, "email belongs to a guest checkout").
					WithDetails(map[string]any{"field": "email", "claim": "/auth/claim"})
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}

		user := &models.User{Email: email, PasswordHash: &hash, FullName: fullName, Phone: req.Phone}
		inserted, err := repo.CreateIfAbsent(ctx, user)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		if !inserted {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		}
		created = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users.FromModel(created), nil
}

// ClaimGuest turns the guest account userID into a password account. It
// succeeds once; a member or a missing row is a conflict.
func (s *registerService) ClaimGuest(ctx context.Context, userID uuid.UUID, req ClaimGuestRequest) (*users.UserDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "guest identity required")
	}
	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}

	var claimed *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.users.WithTx(tx)
		ok, err := repo.ClaimGuest(ctx, userID, hash, strings.TrimSpace(req.FullName))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim guest account")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "account is not a guest account")
		}
		claimed, err = repo.FindByID(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load claimed account")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users.FromModel(claimed), nil
}
