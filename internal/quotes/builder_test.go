package quotes

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/internal/fees"
	"github.com/angelmondragon/checkout-engine/pkg/db"
	"github.com/angelmondragon/checkout-engine/pkg/db/dbtest"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

type listingMap map[uuid.UUID]models.Listing

func (m listingMap) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Listing, error) {
	out := map[uuid.UUID]models.Listing{}
	for _, id := range ids {
		if l, ok := m[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

type deliveryFunc func(ctx context.Context, sellerID uuid.UUID, dest delivery.Destination) (delivery.Quote, error)

func (f deliveryFunc) Quote(ctx context.Context, sellerID uuid.UUID, dest delivery.Destination) (delivery.Quote, error) {
	return f(ctx, sellerID, dest)
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestBuilder(t *testing.T, client *db.Client, src ListingSource, quoter DeliveryQuoter) Builder {
	t.Helper()
	calc, err := fees.NewCalculator(fees.Schedule{ProcessingFeeBps: 150, EscrowFeeMinor: 2500})
	require.NoError(t, err)
	b, err := NewBuilder(BuilderParams{
		Repo:       NewRepository(client.DB()),
		Tx:         client,
		Listings:   src,
		Delivery:   quoter,
		Calculator: calc,
		TTL:        15 * time.Minute,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return b
}

func scenarioSnapshot() (*models.CartSnapshot, listingMap, uuid.UUID, uuid.UUID) {
	s1, s2 := uuid.New(), uuid.New()
	a := models.Listing{ID: uuid.New(), SellerID: s1, UnitPriceMinor: 1000, Currency: "ZAR", IsActive: true}
	b := models.Listing{ID: uuid.New(), SellerID: s2, UnitPriceMinor: 5000, Currency: "ZAR", IsActive: true}
	snap := &models.CartSnapshot{
		SessionRef: "test",
		Currency:   "ZAR",
		CapturedAt: fixedNow,
		Items: types.LineItems{
			{ListingID: a.ID, SellerID: s1, Quantity: 2, UnitPriceMinor: 1000, LineTotalMinor: 2000},
			{ListingID: b.ID, SellerID: s2, Quantity: 1, UnitPriceMinor: 5000, LineTotalMinor: 5000},
		},
		SubtotalMinor: 7000,
	}
	return snap, listingMap{a.ID: a, b.ID: b}, s1, s2
}

var freeDelivery = deliveryFunc(func(_ context.Context, sellerID uuid.UUID, _ delivery.Destination) (delivery.Quote, error) {
	return delivery.Quote{SellerID: sellerID}, nil
})

func TestBuildScenarioPersistsQuote(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	snap, src, _, _ := scenarioSnapshot()
	b := newTestBuilder(t, client, src, freeDelivery)

	quote, err := b.Build(context.Background(), snap, delivery.Destination{Province: "Gauteng"})
	require.NoError(t, err)
	require.Equal(t, int64(12105), quote.GrandTotalMinor)
	require.Equal(t, int64(105), quote.ProcessingFeeMinor)
	require.Equal(t, int64(5000), quote.EscrowServiceFeeMinor)
	require.True(t, fixedNow.Add(15*time.Minute).Equal(quote.ExpiresAt))
	require.NotEqual(t, uuid.Nil, snap.ID)
	require.Equal(t, snap.ID, quote.CartSnapshotID)

	stored, err := b.Get(context.Background(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12105), stored.GrandTotalMinor)
	require.Len(t, stored.PerSeller, 2)

	var sum int64
	for _, s := range stored.PerSeller {
		sum += s.MerchSubtotalMinor + s.DeliveryMinor + s.AbattoirMinor + s.ProcessingFeeMinor + s.EscrowFeeMinor
	}
	require.Equal(t, stored.GrandTotalMinor, sum)
}

func TestPriceRejectsInactiveListing(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	snap, src, _, _ := scenarioSnapshot()
	stale := snap.Items[1].ListingID
	l := src[stale]
	l.IsActive = false
	src[stale] = l
	b := newTestBuilder(t, client, src, freeDelivery)

	_, err := b.Price(context.Background(), snap, delivery.Destination{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInvalidCart, typed.Code())
	require.Equal(t, []string{stale.String()}, typed.Details().(map[string]any)["invalid_listing_ids"])
}

func TestPriceRejectsOutOfRangeSeller(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	snap, src, _, s2 := scenarioSnapshot()
	quoter := deliveryFunc(func(_ context.Context, sellerID uuid.UUID, _ delivery.Destination) (delivery.Quote, error) {
		if sellerID == s2 {
			return delivery.Quote{SellerID: sellerID, OutOfRange: true, Reason: "distance_exceeds_max", DistanceKm: 900}, nil
		}
		return delivery.Quote{SellerID: sellerID, FeeMinor: 1200}, nil
	})
	b := newTestBuilder(t, client, src, quoter)

	_, err := b.Price(context.Background(), snap, delivery.Destination{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeOutOfRange, typed.Code())
	sellers := typed.Details().(map[string]any)["sellers"].([]outOfRangeSeller)
	require.Len(t, sellers, 1)
	require.Equal(t, s2.String(), sellers[0].SellerID)
}

func TestPriceAddsDeliveryPerSeller(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	snap, src, s1, _ := scenarioSnapshot()
	var calls atomic.Int32
	quoter := deliveryFunc(func(_ context.Context, sellerID uuid.UUID, _ delivery.Destination) (delivery.Quote, error) {
		calls.Add(1)
		if sellerID == s1 {
			return delivery.Quote{SellerID: sellerID, FeeMinor: 1000}, nil
		}
		return delivery.Quote{SellerID: sellerID}, nil
	})
	b := newTestBuilder(t, client, src, quoter)

	quote, err := b.Price(context.Background(), snap, delivery.Destination{})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.Equal(t, int64(1000), quote.DeliveryTotalMinor)
	// S1: 2000 + 1000 delivery, fee 45; S2 unchanged at 75.
	require.Equal(t, int64(45+75), quote.ProcessingFeeMinor)
	require.Equal(t, int64(2000+1000+45+2500+5000+75+2500), quote.GrandTotalMinor)
}

func TestPriceWrapsDeliveryFailure(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	snap, src, _, _ := scenarioSnapshot()
	quoter := deliveryFunc(func(context.Context, uuid.UUID, delivery.Destination) (delivery.Quote, error) {
		return delivery.Quote{}, errors.New("rate card store offline")
	})
	b := newTestBuilder(t, client, src, quoter)

	_, err := b.Price(context.Background(), snap, delivery.Destination{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestGetUnknownQuote(t *testing.T) {
	t.Parallel()
	client := dbtest.Client(t)
	b := newTestBuilder(t, client, listingMap{}, freeDelivery)

	_, err := b.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
