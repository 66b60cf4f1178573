package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/internal/auth"
	"github.com/angelmondragon/checkout-engine/internal/cart"
	"github.com/angelmondragon/checkout-engine/internal/delivery"
	"github.com/angelmondragon/checkout-engine/internal/users"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
)

type quotePricer interface {
	Price(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error)
	Save(ctx context.Context, tx *gorm.DB, snapshot *models.CartSnapshot, quote *models.Quote) error
	Build(ctx context.Context, snapshot *models.CartSnapshot, shipTo delivery.Destination) (*models.Quote, error)
}

type guestResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, contact users.Contact) (*models.User, bool, error)
}

type tokenIssuer interface {
	IssueToken(ctx context.Context, user *models.User) (*auth.LoginResponse, error)
}

// GuestQuoteRequest prices an ad-hoc item list for a buyer without a cart.
type GuestQuoteRequest struct {
	Items  []cart.LineRequest
	ShipTo delivery.Destination
}

// GuestCreateRequest re-submits the items of a guest quote together with the
// total the buyer accepted. QuotedID is the id the client was shown, kept for
// the audit trail only; the quote is always re-priced.
type GuestCreateRequest struct {
	Contact                 users.Contact
	Items                   []cart.LineRequest
	ShipTo                  delivery.Destination
	QuotedID                uuid.UUID
	ExpectedGrandTotalMinor int64
	ExpectedCurrency        string
}

// GuestCheckoutResult hands the guest everything needed to pay and track the order.
type GuestCheckoutResult struct {
	SessionID        uuid.UUID
	OrderGroupID     uuid.UUID
	QuoteID          uuid.UUID
	Reference        string
	AuthorizationURL string
	AmountMinor      int64
	Currency         string
	ExpiresAt        time.Time
	Access           *auth.LoginResponse
}

// GuestService runs checkout for buyers identified only by a contact email.
type GuestService interface {
	Quote(ctx context.Context, req GuestQuoteRequest) (*models.Quote, error)
	Create(ctx context.Context, req GuestCreateRequest) (*GuestCheckoutResult, error)
}

type GuestServiceParams struct {
	Sessions Service
	Tx       txRunner
	Listings cart.ListingSource
	Quotes   quotePricer
	Users    guestResolver
	Tokens   tokenIssuer
	Logger   *logger.Logger
	Currency string
	Now      func() time.Time
}

type guestService struct {
	sessions Service
	tx       txRunner
	listings cart.ListingSource
	quotes   quotePricer
	users    guestResolver
	tokens   tokenIssuer
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

func NewGuestService(params GuestServiceParams) (GuestService, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listing source required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote builder required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("guest resolver required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Currency == "" {
		return nil, fmt.Errorf("currency required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &guestService{
		sessions: params.Sessions,
		tx:       params.Tx,
		listings: params.Listings,
		quotes:   params.Quotes,
		users:    params.Users,
		tokens:   params.Tokens,
		logg:     params.Logger,
		currency: params.Currency,
		now:      now,
	}, nil
}

func (g *guestService) Quote(ctx context.Context, req GuestQuoteRequest) (*models.Quote, error) {
	snapshot, err := g.capture(ctx, "guest:quote", req.Items)
	if err != nil {
		return nil, err
	}
	return g.quotes.Build(ctx, snapshot, req.ShipTo)
}

// Create re-prices the items and accepts them only when the grand total is
// exactly what the guest was quoted. On a mismatch nothing is written.
func (g *guestService) Create(ctx context.Context, req GuestCreateRequest) (*GuestCheckoutResult, error) {
	email := users.NormalizeEmail(req.Contact.Email)
	snapshot, err := g.capture(ctx, "guest:"+email, req.Items)
	if err != nil {
		return nil, err
	}
	quote, err := g.quotes.Price(ctx, snapshot, req.ShipTo)
	if err != nil {
		return nil, err
	}

	expectedCurrency := strings.ToUpper(strings.TrimSpace(req.ExpectedCurrency))
	if expectedCurrency == "" {
		expectedCurrency = strings.ToUpper(quote.Currency)
	}
	if quote.GrandTotalMinor != req.ExpectedGrandTotalMinor || !strings.EqualFold(quote.Currency, expectedCurrency) {
		logCtx := g.logg.WithFields(ctx, map[string]any{
			"expected_grand_total_minor": req.ExpectedGrandTotalMinor,
			"computed_grand_total_minor": quote.GrandTotalMinor,
			"currency":                   quote.Currency,
			"client_quote_id":            req.QuotedID.String(),
		})
		g.logg.Warn(logCtx, "guest checkout amount mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeAmountMismatch, "quoted amount no longer matches").
			WithDetails(map[string]any{
				"expected_grand_total_minor": req.ExpectedGrandTotalMinor,
				"computed_grand_total_minor": quote.GrandTotalMinor,
				"expected_currency":          expectedCurrency,
				"currency":                   quote.Currency,
			})
	}

	var (
		user        *models.User
		userCreated bool
		session     *models.CheckoutSession
	)
	err = g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		resolved, created, err := g.users.Resolve(ctx, tx, req.Contact)
		if err != nil {
			return err
		}
		if err := g.quotes.Save(ctx, tx, snapshot, quote); err != nil {
			return err
		}
		opened, err := g.sessions.CreateTx(ctx, tx, quote, nil, BuyerRef{
			UserID: resolved.ID,
			Email:  resolved.Email,
			Guest:  true,
		})
		if err != nil {
			return err
		}
		user = resolved
		userCreated = created
		session = opened
		return nil
	})
	if err != nil {
		return nil, err
	}

	initiation, err := g.sessions.InitiatePayment(ctx, session.ID, user.ID)
	if err != nil {
		return nil, err
	}

	result := &GuestCheckoutResult{
		SessionID:        session.ID,
		OrderGroupID:     session.OrderGroupID,
		QuoteID:          quote.ID,
		Reference:        initiation.Reference,
		AuthorizationURL: initiation.AuthorizationURL,
		AmountMinor:      initiation.AmountMinor,
		Currency:         initiation.Currency,
		ExpiresAt:        initiation.ExpiresAt,
	}
	// Only the call that created the guest row gets a token. Typing an email
	// that already has an account, guest or not, grants no access to it.
	if g.tokens != nil && userCreated {
		access, err := g.tokens.IssueToken(ctx, user)
		if err != nil {
			// The payment link is already issued; a missing token only costs
			// the guest order tracking.
			g.logg.Error(ctx, "issue guest access token", err)
		} else {
			result.Access = access
		}
	}
	return result, nil
}

func (g *guestService) capture(ctx context.Context, ref string, items []cart.LineRequest) (*models.CartSnapshot, error) {
	return cart.Capture(ctx, g.listings, cart.CaptureInput{
		SessionRef: ref,
		Currency:   g.currency,
		Items:      items,
		Now:        g.now(),
	})
}
