package cart

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// LineRequest is a requested listing and quantity.
type LineRequest struct {
	ListingID uuid.UUID
	Quantity  int64
}

// CaptureInput describes the items to freeze into a snapshot.
type CaptureInput struct {
	SessionRef string
	CartID     *uuid.UUID
	Currency   string
	Items      []LineRequest
	Now        time.Time
}

// Capture prices items against current listings and returns an unsaved
// snapshot. Duplicate listings are merged. Listings that are missing, inactive
// or priced in another currency fail the whole capture with INVALID_CART.
func Capture(ctx context.Context, listings ListingSource, input CaptureInput) (*models.CartSnapshot, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	order := make([]uuid.UUID, 0, len(input.Items))
	quantities := make(map[uuid.UUID]int64, len(input.Items))
	for i, item := range input.Items {
		if item.ListingID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing_id is required").
				WithDetails(map[string]any{"index": i})
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "qty must be positive").
				WithDetails(map[string]any{"index": i, "listing_id": item.ListingID.String()})
		}
		if _, ok := quantities[item.ListingID]; !ok {
			order = append(order, item.ListingID)
		}
		quantities[item.ListingID] += item.Quantity
	}

	current, err := listings.FindByIDs(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
	}
	if err := quotes.InvalidListings(order, current); err != nil {
		return nil, err
	}

	var wrongCurrency []string
	snapshot := &models.CartSnapshot{
		SessionRef: input.SessionRef,
		CartID:     input.CartID,
		Currency:   input.Currency,
		CapturedAt: input.Now.UTC(),
		Items:      make(types.LineItems, 0, len(order)),
	}
	for _, id := range order {
		listing := current[id]
		if !strings.EqualFold(listing.Currency, input.Currency) {
			wrongCurrency = append(wrongCurrency, id.String())
			continue
		}
		qty := quantities[id]
		line := types.LineItem{
			ListingID:        listing.ID,
			SellerID:         listing.SellerID,
			Title:            listing.Title,
			Quantity:         qty,
			UnitPriceMinor:   listing.UnitPriceMinor,
			AbattoirFeeMinor: listing.AbattoirFeeMinor,
			LineTotalMinor:   qty * listing.UnitPriceMinor,
		}
		snapshot.Items = append(snapshot.Items, line)
		snapshot.SubtotalMinor += line.LineTotalMinor
	}
	if len(wrongCurrency) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCart, "cart contains listings priced in another currency").
			WithDetails(map[string]any{"invalid_listing_ids": wrongCurrency})
	}
	return snapshot, nil
}
