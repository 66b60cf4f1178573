package checkout

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/api/controllers/dto"
	"github.com/angelmondragon/checkout-engine/api/responses"
	"github.com/angelmondragon/checkout-engine/api/validators"
	"github.com/angelmondragon/checkout-engine/internal/cart"
	checkoutsvc "github.com/angelmondragon/checkout-engine/internal/checkout"
	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/internal/users"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/money"
)

type guestQuoteRequest struct {
	Items  []dto.LineRequest `json:"items" validate:"required,min=1,max=100,dive"`
	ShipTo dto.ShipTo        `json:"ship_to"`
}

// guestCreateRequest carries the quote exactly as /checkout/guest/quote
// returned it; only its id, grand total and currency are read.
type guestCreateRequest struct {
	Contact dto.Contact       `json:"contact"`
	Items   []dto.LineRequest `json:"items" validate:"required,min=1,max=100,dive"`
	ShipTo  dto.ShipTo        `json:"ship_to"`
	Quote   *dto.QuoteView    `json:"quote"`
}

func (b guestCreateRequest) acceptedQuote() error {
	switch {
	case b.Quote == nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "quote is required").
			WithDetails(map[string]any{"field": "quote"})
	case b.Quote.GrandTotalMinor <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quote grand total must be positive").
			WithDetails(map[string]any{"field": "quote.grand_total_minor"})
	case len(strings.TrimSpace(b.Quote.Currency)) != 3:
		return pkgerrors.New(pkgerrors.CodeValidation, "quote currency must be a 3-letter code").
			WithDetails(map[string]any{"field": "quote.currency"})
	}
	return nil
}

type guestAccess struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type guestCreateResponse struct {
	dto.PaymentView
	QuoteID uuid.UUID    `json:"quote_id"`
	Access  *guestAccess `json:"access,omitempty"`
}

// GuestQuote prices an ad-hoc item list without persisting anything.
func GuestQuote(svc checkoutsvc.GuestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest checkout unavailable"))
			return
		}

		var body guestQuoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), checkoutsvc.GuestQuoteRequest{
			Items:  toLines(body.Items),
			ShipTo: toDestination(body.ShipTo),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewQuoteView(quote))
	}
}

// GuestCreate re-prices the guest's items, rejects any drift from the total
// the guest accepted, and opens a session with a payment link.
func GuestCreate(svc checkoutsvc.GuestService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "guest checkout unavailable"))
			return
		}

		var body guestCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := body.acceptedQuote(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), checkoutsvc.GuestCreateRequest{
			Contact: users.Contact{
				Email:    body.Contact.Email,
				Phone:    validators.SanitizeString(body.Contact.Phone, 32),
				FullName: validators.SanitizeString(body.Contact.FullName, 128),
			},
			Items:                   toLines(body.Items),
			ShipTo:                  toDestination(body.ShipTo),
			QuotedID:                body.Quote.ID,
			ExpectedGrandTotalMinor: body.Quote.GrandTotalMinor,
			ExpectedCurrency:        strings.ToUpper(strings.TrimSpace(body.Quote.Currency)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := guestCreateResponse{
			PaymentView: dto.PaymentView{
				SessionID:        result.SessionID,
				OrderGroupID:     result.OrderGroupID,
				Reference:        result.Reference,
				AuthorizationURL: result.AuthorizationURL,
				AmountMinor:      result.AmountMinor,
				Amount:           money.Format(result.AmountMinor),
				Currency:         result.Currency,
				ExpiresAt:        result.ExpiresAt,
			},
			QuoteID: result.QuoteID,
		}
		if result.Access != nil {
			resp.Access = &guestAccess{AccessToken: result.Access.AccessToken, ExpiresIn: result.Access.ExpiresIn}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

func toLines(items []dto.LineRequest) []cart.LineRequest {
	lines := make([]cart.LineRequest, 0, len(items))
	for _, item := range items {
		lines = append(lines, cart.LineRequest{ListingID: item.ListingID, Quantity: item.Quantity})
	}
	return lines
}

func toDestination(shipTo dto.ShipTo) delivery.Destination {
	return delivery.Destination{
		Province: shipTo.Province,
		Country:  shipTo.Country,
		Lat:      shipTo.Lat,
		Lng:      shipTo.Lng,
	}
}
