package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
)

type mapListings map[uuid.UUID]models.Listing

func (m mapListings) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Listing, error) {
	out := map[uuid.UUID]models.Listing{}
	for _, id := range ids {
		if l, ok := m[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func TestCaptureMergesDuplicateListings(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	src := mapListings{id: {ID: id, SellerID: uuid.New(), UnitPriceMinor: 250, Currency: "ZAR", IsActive: true}}

	snap, err := Capture(context.Background(), src, CaptureInput{
		SessionRef: "guest:abc",
		Currency:   "ZAR",
		Items:      []LineRequest{{ListingID: id, Quantity: 1}, {ListingID: id, Quantity: 2}},
		Now:        time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	require.Equal(t, int64(3), snap.Items[0].Quantity)
	require.Equal(t, int64(750), snap.SubtotalMinor)
}

func TestCaptureRejectsForeignCurrency(t *testing.T) {
	t.Parallel()
	id := uuid.New()
	src := mapListings{id: {ID: id, SellerID: uuid.New(), UnitPriceMinor: 250, Currency: "USD", IsActive: true}}

	_, err := Capture(context.Background(), src, CaptureInput{
		Currency: "ZAR",
		Items:    []LineRequest{{ListingID: id, Quantity: 1}},
		Now:      time.Now(),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidCart))
}

func TestCaptureValidatesQuantities(t *testing.T) {
	t.Parallel()
	_, err := Capture(context.Background(), mapListings{}, CaptureInput{
		Currency: "ZAR",
		Items:    []LineRequest{{ListingID: uuid.New(), Quantity: 0}},
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Capture(context.Background(), mapListings{}, CaptureInput{Currency: "ZAR"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
