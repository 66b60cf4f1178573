package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes buyer cart operations.
type Service interface {
	AddItem(ctx context.Context, buyerUserID, listingID uuid.UUID, qty int64) (*models.Cart, error)
	UpdateItem(ctx context.Context, buyerUserID, listingID uuid.UUID, qty int64) (*models.Cart, error)
	RemoveItem(ctx context.Context, buyerUserID, itemID uuid.UUID) (*models.Cart, error)
	GetActiveCart(ctx context.Context, buyerUserID uuid.UUID) (*models.Cart, error)
	Snapshot(ctx context.Context, buyerUserID uuid.UUID) (*models.CartSnapshot, error)
}

type ServiceParams struct {
	Repo      CartRepository
	Tx        txRunner
	Listings  ListingSource
	Snapshots SnapshotStore
	Currency  string
	Now       func() time.Time
}

type service struct {
	repo      CartRepository
	tx        txRunner
	listings  ListingSource
	snapshots SnapshotStore
	currency  string
	now       func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing source required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot store required")
	}
	if params.Currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		listings:  params.Listings,
		snapshots: params.Snapshots,
		currency:  params.Currency,
		now:       now,
	}, nil
}

func (s *service) AddItem(ctx context.Context, buyerUserID, listingID uuid.UUID, qty int64) (*models.Cart, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}
	if err := s.ensureListing(ctx, listingID); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.activeOrCreate(ctx, repo, buyerUserID)
		if err != nil {
			return err
		}
		item, err := repo.FindItem(ctx, cart.ID, listingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
		}
		if item == nil {
			item = &models.CartItem{CartID: cart.ID, ListingID: listingID}
		}
		item.Quantity += qty
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetActiveCart(ctx, buyerUserID)
}

func (s *service) UpdateItem(ctx context.Context, buyerUserID, listingID uuid.UUID, qty int64) (*models.Cart, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindActiveByBuyer(ctx, buyerUserID)
		if err != nil {
			return notFoundOrInternal(err, "cart not found")
		}
		item, err := repo.FindItem(ctx, cart.ID, listingID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		item.Quantity = qty
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetActiveCart(ctx, buyerUserID)
}

func (s *service) RemoveItem(ctx context.Context, buyerUserID, itemID uuid.UUID) (*models.Cart, error) {
	cart, err := s.GetActiveCart(ctx, buyerUserID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.repo.DeleteItem(ctx, cart.ID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart item")
	}
	if !deleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.GetActiveCart(ctx, buyerUserID)
}

func (s *service) GetActiveCart(ctx context.Context, buyerUserID uuid.UUID) (*models.Cart, error) {
	cart, err := s.repo.FindActiveByBuyer(ctx, buyerUserID)
	if err != nil {
		return nil, notFoundOrInternal(err, "cart not found")
	}
	return cart, nil
}

// Snapshot freezes the buyer's active cart at current listing prices.
func (s *service) Snapshot(ctx context.Context, buyerUserID uuid.UUID) (*models.CartSnapshot, error) {
	cart, err := s.GetActiveCart(ctx, buyerUserID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	lines := make([]LineRequest, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, LineRequest{ListingID: item.ListingID, Quantity: item.Quantity})
	}
	cartID := cart.ID
	snapshot, err := Capture(ctx, s.listings, CaptureInput{
		SessionRef: "cart:" + cart.ID.String(),
		CartID:     &cartID,
		Currency:   s.currency,
		Items:      lines,
		Now:        s.now(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.snapshots.CreateSnapshot(ctx, snapshot); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cart snapshot")
	}
	return snapshot, nil
}

func (s *service) ensureListing(ctx context.Context, listingID uuid.UUID) error {
	current, err := s.listings.FindByIDs(ctx, []uuid.UUID{listingID})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return quotes.InvalidListings([]uuid.UUID{listingID}, current)
}

func (s *service) activeOrCreate(ctx context.Context, repo CartRepository, buyerUserID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindActiveByBuyer(ctx, buyerUserID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	cart = &models.Cart{BuyerUserID: buyerUserID, Status: enums.CartStatusActive}
	if err := repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return cart, nil
}

func notFoundOrInternal(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, msg)
}
