package checkout

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/api/controllers/dto"
	"github.com/angelmondragon/checkout-engine/api/middleware"
	"github.com/angelmondragon/checkout-engine/api/responses"
	"github.com/angelmondragon/checkout-engine/api/validators"
	checkoutsvc "github.com/angelmondragon/checkout-engine/internal/checkout"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/money"
)

type createRequest struct {
	QuoteID uuid.UUID `json:"quote_id" validate:"required"`
}

// Create opens a checkout session for one of the buyer's quotes. Repeating the
// call for the same quote returns the live session.
func Create(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyer, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Create(r.Context(), body.QuoteID, checkoutsvc.BuyerRef{
			UserID: buyer,
			Email:  middleware.EmailFromContext(r.Context()),
			Guest:  middleware.GuestFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, dto.NewSessionView(session))
	}
}

// Complete hands the buyer a payment link for the session. A session already
// awaiting payment returns its current link.
func Complete(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyer, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := validators.URLParamUUID(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, sessionID.String())
		}

		initiation, err := svc.InitiatePayment(ctx, sessionID, buyer)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, dto.PaymentView{
			SessionID:        initiation.SessionID,
			OrderGroupID:     initiation.OrderGroupID,
			Reference:        initiation.Reference,
			AuthorizationURL: initiation.AuthorizationURL,
			Provider:         string(initiation.Provider),
			AmountMinor:      initiation.AmountMinor,
			Amount:           money.Format(initiation.AmountMinor),
			Currency:         initiation.Currency,
			ExpiresAt:        initiation.ExpiresAt,
		})
	}
}

// Get returns the caller's own checkout session.
func Get(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		buyer, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID, err := validators.URLParamUUID(r, "session_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.Get(r.Context(), sessionID, buyer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto.NewSessionView(session))
	}
}
