package quotes

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/internal/fees"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

const deliveryConcurrency = 4

// ListingSource resolves current listings by id.
type ListingSource interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Listing, error)
}

// DeliveryQuoter prices delivery for one seller.
type DeliveryQuoter interface {
	Quote(ctx context.Context, sellerID uuid.UUID, dest delivery.Destination) (delivery.Quote, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Builder turns cart snapshots into priced, time-bounded quotes.
type Builder interface {
	// Price computes an unsaved quote for the snapshot.
	Price(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error)
	// Save persists the snapshot (when new) and quote using tx.
	Save(ctx context.Context, tx *gorm.DB, snapshot *models.CartSnapshot, quote *models.Quote) error
	// Build prices and persists in one transaction.
	Build(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Quote, error)
}

type BuilderParams struct {
	Repo       *Repository
	Tx         txRunner
	Listings   ListingSource
	Delivery   DeliveryQuoter
	Calculator *fees.Calculator
	TTL        time.Duration
	Now        func() time.Time
}

type builder struct {
	repo       *Repository
	tx         txRunner
	listings   ListingSource
	delivery   DeliveryQuoter
	calculator *fees.Calculator
	ttl        time.Duration
	now        func() time.Time
}

func NewBuilder(params BuilderParams) (Builder, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing source required")
	}
	if params.Delivery == nil {
		return nil, fmt.Errorf("delivery quoter required")
	}
	if params.Calculator == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("quote ttl must be positive")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &builder{
		repo:       params.Repo,
		tx:         params.Tx,
		listings:   params.Listings,
		delivery:   params.Delivery,
		calculator: params.Calculator,
		ttl:        params.TTL,
		now:        now,
	}, nil
}

func (b *builder) Price(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error) {
	if snapshot == nil || len(snapshot.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "snapshot has no items")
	}

	if err := b.ensureListingsAvailable(ctx, snapshot); err != nil {
		return nil, err
	}

	items := make([]fees.Item, 0, len(snapshot.Items))
	sellerSet := map[uuid.UUID]struct{}{}
	for _, line := range snapshot.Items {
		items = append(items, fees.Item{
			ListingID:        line.ListingID,
			SellerID:         line.SellerID,
			Title:            line.Title,
			Quantity:         line.Quantity,
			UnitPriceMinor:   line.UnitPriceMinor,
			AbattoirFeeMinor: line.AbattoirFeeMinor,
		})
		sellerSet[line.SellerID] = struct{}{}
	}

	deliveryQuotes, err := b.resolveDelivery(ctx, sellerSet, shipTo)
	if err != nil {
		return nil, err
	}

	breakdown, err := b.calculator.Compute(items, deliveryQuotes)
	if err != nil {
		return nil, err
	}
	if err := breakdown.Verify(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "quote totals do not balance")
	}

	return &models.Quote{
		CartSnapshotID:        snapshot.ID,
		PerSeller:             breakdown.Sellers,
		MerchTotalMinor:       breakdown.MerchTotalMinor,
		DeliveryTotalMinor:    breakdown.DeliveryTotalMinor,
		AbattoirTotalMinor:    breakdown.AbattoirTotalMinor,
		ProcessingFeeMinor:    breakdown.ProcessingFeeMinor,
		EscrowServiceFeeMinor: breakdown.EscrowFeeMinor,
		GrandTotalMinor:       breakdown.GrandTotalMinor,
		Currency:              snapshot.Currency,
		ShipToProvince:        shipTo.Province,
		ShipToCountry:         shipTo.Country,
		ShipToLat:             shipTo.Lat,
		ShipToLng:             shipTo.Lng,
		ExpiresAt:             b.now().UTC().Add(b.ttl),
	}, nil
}

func (b *builder) Save(ctx context.Context, tx *gorm.DB, snapshot *models.CartSnapshot, quote *models.Quote) error {
	repo := b.repo.WithTx(tx)
	if snapshot.ID == uuid.Nil {
		if err := repo.CreateSnapshot(ctx, snapshot); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cart snapshot")
		}
	}
	quote.CartSnapshotID = snapshot.ID
	if err := repo.CreateQuote(ctx, quote); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist quote")
	}
	return nil
}

func (b *builder) Build(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error) {
	quote, err := b.Price(ctx, snapshot, shipTo)
	if err != nil {
		return nil, err
	}
	if err := b.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return b.Save(ctx, tx, snapshot, quote)
	}); err != nil {
		return nil, err
	}
	return quote, nil
}

func (b *builder) Get(ctx context.Context, id uuid.UUID) (*models.Quote, error) {
	quote, err := b.repo.FindQuote(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load quote")
	}
	return quote, nil
}

// ensureListingsAvailable rejects snapshots that reference listings which have
// since been removed or deactivated.
func (b *builder) ensureListingsAvailable(ctx context.Context, snapshot *models.CartSnapshot) error {
	ids := make([]uuid.UUID, 0, len(snapshot.Items))
	for _, line := range snapshot.Items {
		ids = append(ids, line.ListingID)
	}
	current, err := b.listings.FindByIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
	}
	return InvalidListings(ids, current)
}

// InvalidListings returns an INVALID_CART error naming every id that is
// missing from current or inactive, or nil when all are available.
func InvalidListings(ids []uuid.UUID, current map[uuid.UUID]models.Listing) error {
	var invalid []string
	seen := map[uuid.UUID]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		listing, ok := current[id]
		if !ok || !listing.IsActive {
			invalid = append(invalid, id.String())
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart contains unavailable listings").
		WithDetails(map[string]any{"invalid_listing_ids": invalid})
}

type outOfRangeSeller struct {
	SellerID   string  `json:"seller_id"`
	Reason     string  `json:"reason"`
	DistanceKm float64 `json:"distance_km"`
}

func (b *builder) resolveDelivery(ctx context.Context, sellers map[uuid.UUID]struct{}, dest delivery.Destination) (map[uuid.UUID]fees.DeliveryQuote, error) {
	ids := make([]uuid.UUID, 0, len(sellers))
	for id := range sellers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	results := make([]delivery.Quote, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deliveryConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			q, err := b.delivery.Quote(gctx, id, dest)
			if err != nil {
				return err
			}
			results[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve delivery")
	}

	out := make(map[uuid.UUID]fees.DeliveryQuote, len(ids))
	var undeliverable []outOfRangeSeller
	for i, q := range results {
		if q.OutOfRange {
			undeliverable = append(undeliverable, outOfRangeSeller{
				SellerID:   ids[i].String(),
				Reason:     q.Reason,
				DistanceKm: q.DistanceKm,
			})
			continue
		}
		out[ids[i]] = fees.DeliveryQuote{FeeMinor: q.FeeMinor, DistanceKm: q.DistanceKm}
	}
	if len(undeliverable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfRange, "one or more sellers cannot deliver to this address").
			WithDetails(map[string]any{"sellers": undeliverable})
	}
	return out, nil
}
