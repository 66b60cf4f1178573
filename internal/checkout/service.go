package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
)

const defaultSweepBatch = 200

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type quoteSource interface {
	FindQuote(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	FindSnapshot(ctx context.Context, id uuid.UUID) (*models.CartSnapshot, error)
}

type cartLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
}

type paymentInitiator interface {
	Default() enums.PaymentProvider
	Initiate(ctx context.Context, provider enums.PaymentProvider, req gateway.InitiateRequest) (*gateway.InitiateResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// BuyerRef identifies who is checking out.
type BuyerRef struct {
	UserID uuid.UUID
	Email  string
	Guest  bool
}

// PaymentInitiation is what the buyer needs to pay a session.
type PaymentInitiation struct {
	SessionID        uuid.UUID
	OrderGroupID     uuid.UUID
	Reference        string
	AuthorizationURL string
	Provider         enums.PaymentProvider
	AmountMinor      int64
	Currency         string
	ExpiresAt        time.Time
}

// Service manages the checkout session lifecycle.
type Service interface {
	// Create opens a session for a quote. Repeated calls for the same quote
	// return the live session.
	Create(ctx context.Context, quoteID uuid.UUID, buyer BuyerRef) (*models.CheckoutSession, error)
	// CreateTx opens a session for an already loaded quote inside tx.
	CreateTx(ctx context.Context, tx *gorm.DB, quote *models.Quote, cartID *uuid.UUID, buyer BuyerRef) (*models.CheckoutSession, error)
	// InitiatePayment returns the session's payment link, creating one when
	// the session is PENDING or FAILED.
	InitiatePayment(ctx context.Context, sessionID uuid.UUID, buyerUserID uuid.UUID) (*PaymentInitiation, error)
	Get(ctx context.Context, sessionID uuid.UUID, buyerUserID uuid.UUID) (*models.CheckoutSession, error)
	// ExpireStaleSessions expires open sessions past their deadline and
	// returns how many changed.
	ExpireStaleSessions(ctx context.Context, now time.Time) (int, error)
}

type ServiceParams struct {
	Repo        *Repository
	Tx          txRunner
	Quotes      quoteSource
	Carts       cartLookup
	Gateways    paymentInitiator
	Outbox      outboxPublisher
	Logger      *logger.Logger
	SessionTTL  time.Duration
	CallbackURL string
	SweepBatch  int
	Now         func() time.Time
}

type service struct {
	repo        *Repository
	tx          txRunner
	quotes      quoteSource
	carts       cartLookup
	gateways    paymentInitiator
	outbox      outboxPublisher
	logg        *logger.Logger
	sessionTTL  time.Duration
	callbackURL string
	sweepBatch  int
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote source required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("payment gateways required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	batch := params.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		quotes:      params.Quotes,
		carts:       params.Carts,
		gateways:    params.Gateways,
		outbox:      params.Outbox,
		logg:        params.Logger,
		sessionTTL:  params.SessionTTL,
		callbackURL: params.CallbackURL,
		sweepBatch:  batch,
		now:         now,
	}, nil
}

func (s *service) Create(ctx context.Context, quoteID uuid.UUID, buyer BuyerRef) (*models.CheckoutSession, error) {
	if quoteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote_id is required")
	}
	quote, err := s.quotes.FindQuote(ctx, quoteID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "quote not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load quote")
	}
	snapshot, err := s.quotes.FindSnapshot(ctx, quote.CartSnapshotID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart snapshot")
	}
	if err := s.ensureCartOwner(ctx, snapshot.CartID, buyer.UserID); err != nil {
		return nil, err
	}

	var session *models.CheckoutSession
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		created, err := s.CreateTx(ctx, tx, quote, snapshot.CartID, buyer)
		if err != nil {
			return err
		}
		session = created
		return nil
	})
	if err != nil && db.IsUniqueViolation(err, "") {
		// A concurrent create for the same quote committed first.
		existing, findErr := s.repo.FindLiveByQuote(ctx, quoteID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, findErr, "load checkout session")
		}
		if existing == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "checkout session changed concurrently")
		}
		if existing.BuyerUserID != buyer.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "quote belongs to another buyer")
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, quote *models.Quote, cartID *uuid.UUID, buyer BuyerRef) (*models.CheckoutSession, error) {
	if quote == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quote is required")
	}
	if buyer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer is required")
	}
	now := s.now().UTC()
	if quote.IsExpired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeQuoteExpired, "quote has expired").
			WithDetails(map[string]any{"quote_id": quote.ID.String(), "expires_at": quote.ExpiresAt})
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindLiveByQuote(ctx, quote.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if existing != nil {
		if existing.BuyerUserID != buyer.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "quote belongs to another buyer")
		}
		return existing, nil
	}
	paid, err := repo.HasPaidForQuote(ctx, quote.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quote has already been paid")
	}

	expiresAt := now.Add(s.sessionTTL)
	session := &models.CheckoutSession{
		BuyerUserID: buyer.UserID,
		BuyerEmail:  buyer.Email,
		Guest:       buyer.Guest,
		QuoteID:     quote.ID,
		CartID:      cartID,
		Status:      enums.CheckoutSessionPending,
		Provider:    s.gateways.Default(),
		AmountMinor: quote.GrandTotalMinor,
		Currency:    quote.Currency,
		ExpiresAt:   expiresAt,
	}
	if err := repo.Create(ctx, session); err != nil {
		// The only unique key a new session can hit is the live-session-per-quote index.
		if db.IsUniqueViolation(err, "") {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create checkout session")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCheckoutSessionCreated,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   session.ID,
		Actor:         &outbox.ActorRef{UserID: buyer.UserID, Guest: buyer.Guest},
		Data: payloads.CheckoutSessionCreatedEvent{
			SessionID:    session.ID,
			QuoteID:      quote.ID,
			BuyerUserID:  buyer.UserID,
			OrderGroupID: session.OrderGroupID,
			Guest:        buyer.Guest,
			AmountMinor:  session.AmountMinor,
			Currency:     session.Currency,
			ExpiresAt:    expiresAt,
		},
		OccurredAt: now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit checkout session created")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": session.ID.String(),
		"quote_id":            quote.ID.String(),
		"amount_minor":        session.AmountMinor,
	})
	s.logg.Info(logCtx, "checkout session created")
	return session, nil
}

func (s *service) InitiatePayment(ctx context.Context, sessionID uuid.UUID, buyerUserID uuid.UUID) (*PaymentInitiation, error) {
	session, err := s.Get(ctx, sessionID, buyerUserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	switch {
	case session.Status == enums.CheckoutSessionPaid:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session already paid")
	case session.Status == enums.CheckoutSessionExpired || !now.Before(session.ExpiresAt):
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session expired").
			WithDetails(map[string]any{"expires_at": session.ExpiresAt})
	case session.Status == enums.CheckoutSessionAwaitingPayment:
		return initiationFromSession(session), nil
	case !session.Status.CanInitiatePayment():
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session cannot start payment")
	}

	reference := NewPaymentReference()
	// The gateway call stays outside the transaction so a slow provider never
	// holds row locks.
	result, err := s.gateways.Initiate(ctx, session.Provider, gateway.InitiateRequest{
		Reference:   reference,
		AmountMinor: session.AmountMinor,
		Currency:    session.Currency,
		BuyerEmail:  session.BuyerEmail,
		CallbackURL: s.callbackURL,
		Description: "Order " + session.OrderGroupID.String(),
	})
	if err != nil {
		return nil, err
	}

	won := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.MarkAwaitingPayment(ctx, session.ID, reference, result.AuthorizationURL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update checkout session")
		}
		attempt := &models.PaymentAttempt{
			CheckoutSessionID: session.ID,
			Reference:         reference,
			Provider:          session.Provider,
			AuthorizationURL:  result.AuthorizationURL,
			AmountMinor:       session.AmountMinor,
			Status:            enums.PaymentAttemptActive,
		}
		if !ok {
			// Lost the race: keep the orphaned reference on record so a
			// payment made against it can still be reconciled.
			attempt.Status = enums.PaymentAttemptSuperseded
			attempt.SupersededAt = &now
			return repo.CreateAttempt(ctx, attempt)
		}
		won = true
		if err := repo.SupersedeActiveAttempts(ctx, session.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "supersede payment attempts")
		}
		if err := repo.CreateAttempt(ctx, attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment attempt")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   session.ID,
			Actor:         &outbox.ActorRef{UserID: session.BuyerUserID, Guest: session.Guest},
			Data: payloads.PaymentInitiatedEvent{
				SessionID:        session.ID,
				Reference:        reference,
				SupersededRef:    session.PaymentReference,
				Provider:         session.Provider,
				AmountMinor:      session.AmountMinor,
				Currency:         session.Currency,
				Attempt:          session.Attempts + 1,
				AuthorizationURL: result.AuthorizationURL,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	fresh, err := s.repo.FindByID(ctx, session.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload checkout session")
	}
	logCtx := s.logg.WithPaymentReference(ctx, valueOr(fresh.PaymentReference, reference))
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"checkout_session_id": session.ID.String(),
		"provider":            session.Provider,
		"won":                 won,
	})
	s.logg.Info(logCtx, "payment initiated")

	if fresh.Status != enums.CheckoutSessionAwaitingPayment || fresh.PaymentReference == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session changed during payment initiation").
			WithDetails(map[string]any{"status": fresh.Status})
	}
	return initiationFromSession(fresh), nil
}

func (s *service) Get(ctx context.Context, sessionID uuid.UUID, buyerUserID uuid.UUID) (*models.CheckoutSession, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	session, err := s.repo.FindByID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	if buyerUserID != uuid.Nil && session.BuyerUserID != buyerUserID {
		// Other buyers' sessions are indistinguishable from missing ones.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found")
	}
	return session, nil
}

func (s *service) ExpireStaleSessions(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	ids, err := s.repo.ListExpirable(ctx, now, s.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expirable sessions: %w", err)
	}

	expired := 0
	var errs error
	for _, id := range ids {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			session, err := repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			ok, err := repo.Expire(ctx, id, now)
			if err != nil || !ok {
				return err
			}
			expired++
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventCheckoutSessionExpired,
				AggregateType: enums.AggregateCheckoutSession,
				AggregateID:   id,
				Actor:         outbox.SystemActor("session-expiry"),
				Data: payloads.CheckoutSessionExpiredEvent{
					SessionID:  id,
					QuoteID:    session.QuoteID,
					PrevStatus: session.Status,
					ExpiredAt:  now,
				},
				OccurredAt: now,
			})
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire session %s: %w", id, err))
		}
	}
	if len(ids) > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"candidates": len(ids),
			"expired":    expired,
			"failures":   len(multierr.Errors(errs)),
		})
		s.logg.Info(logCtx, "checkout session sweep complete")
	}
	return expired, errs
}

func (s *service) ensureCartOwner(ctx context.Context, cartID *uuid.UUID, buyerUserID uuid.UUID) error {
	if cartID == nil || s.carts == nil {
		return nil
	}
	cart, err := s.carts.FindByID(ctx, *cartID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeInvalidCart, "cart no longer exists")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	if cart.BuyerUserID != buyerUserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "quote belongs to another buyer")
	}
	return nil
}

// NewPaymentReference returns a fresh provider-safe payment reference.
func NewPaymentReference() string {
	return "CHK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func initiationFromSession(session *models.CheckoutSession) *PaymentInitiation {
	return &PaymentInitiation{
		SessionID:        session.ID,
		OrderGroupID:     session.OrderGroupID,
		Reference:        valueOr(session.PaymentReference, ""),
		AuthorizationURL: valueOr(session.AuthorizationURL, ""),
		Provider:         session.Provider,
		AmountMinor:      session.AmountMinor,
		Currency:         session.Currency,
		ExpiresAt:        session.ExpiresAt,
	}
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
