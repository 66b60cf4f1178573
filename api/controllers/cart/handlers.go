package cart

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/api/controllers/dto"
	"github.com/angelmondragon/checkout-engine/api/middleware"
	"github.com/angelmondragon/checkout-engine/api/responses"
	"github.com/angelmondragon/checkout-engine/api/validators"
	cartsvc "github.com/angelmondragon/checkout-engine/internal/cart"
	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

type quoteBuilder interface {
	Build(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error)
}

type itemRequest struct {
	ListingID uuid.UUID `json:"listing_id" validate:"required"`
	Quantity  int64     `json:"quantity" validate:"gt=0,max=10000"`
}

type snapshotRequest struct {
	ShipTo dto.ShipTo `json:"ship_to"`
}

type snapshotResponse struct {
	SnapshotID uuid.UUID      `json:"cart_snapshot_id"`
	Quote      *dto.QuoteView `json:"quote"`
}

// CartAdd adds a listing to the buyer's active cart, or increases its quantity.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, func(r *http.Request, buyer uuid.UUID) (*models.Cart, error) {
		var body itemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.AddItem(r.Context(), buyer, body.ListingID, body.Quantity)
	})
}

// CartUpdate sets the quantity of a listing already in the cart.
func CartUpdate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, func(r *http.Request, buyer uuid.UUID) (*models.Cart, error) {
		var body itemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateItem(r.Context(), buyer, body.ListingID, body.Quantity)
	})
}

// CartRemove deletes one cart item by id.
func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, func(r *http.Request, buyer uuid.UUID) (*models.Cart, error) {
		itemID, err := validators.URLParamUUID(r, "id")
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(r.Context(), buyer, itemID)
	})
}

// CartFetch returns the buyer's active cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutate(svc, logg, func(r *http.Request, buyer uuid.UUID) (*models.Cart, error) {
		return svc.GetActiveCart(r.Context(), buyer)
	})
}

// CartSnapshot freezes the active cart and prices it into a quote for the
// supplied destination.
func CartSnapshot(svc cartsvc.Service, quotes quoteBuilder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || quotes == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		buyer, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body snapshotRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot, err := svc.Snapshot(r.Context(), buyer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := quotes.Build(r.Context(), snapshot, delivery.Destination{
			Province: body.ShipTo.Province,
			Country:  body.ShipTo.Country,
			Lat:      body.ShipTo.Lat,
			Lng:      body.ShipTo.Lng,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, snapshotResponse{
			SnapshotID: snapshot.ID,
			Quote:      dto.NewQuoteView(quote),
		})
	}
}

func mutate(svc cartsvc.Service, logg *logger.Logger, fn func(r *http.Request, buyer uuid.UUID) (*models.Cart, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		buyer, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		record, err := fn(r, buyer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewCartView(record))
	}
}
