package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/internal/cart"
	"github.com/angelmondragon/checkout-engine/internal/checkout"
	"github.com/angelmondragon/checkout-engine/internal/quotes"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/gateway"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/metrics"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/checkout-engine/pkg/security"
)

const maxDetailRunes = 512

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gatewayResolver interface {
	Get(provider enums.PaymentProvider) (gateway.Gateway, error)
}

type orderSplitter interface {
	Split(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, quote *models.Quote) (*models.OrderGroup, bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result summarizes one webhook delivery for the HTTP layer.
type Result struct {
	Provider     enums.PaymentProvider     `json:"provider"`
	EventID      string                    `json:"event_id,omitempty"`
	Outcome      enums.PaymentEventOutcome `json:"outcome"`
	SessionID    *uuid.UUID                `json:"session_id,omitempty"`
	OrderGroupID *uuid.UUID                `json:"order_group_id,omitempty"`
}

type ReconcilerParams struct {
	Events   *Repository
	Sessions *checkout.Repository
	Quotes   *quotes.Repository
	Carts    cart.CartRepository
	Orders   orderSplitter
	Gateways gatewayResolver
	Outbox   outboxPublisher
	Tx       txRunner
	Guard    *Guard
	Metrics  *metrics.SettlementMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

// Reconciler applies verified payment webhooks to checkout sessions. Every
// state change is a conditional update, so replays and races with the expiry
// sweep resolve without locks.
type Reconciler struct {
	events   *Repository
	sessions *checkout.Repository
	quotes   *quotes.Repository
	carts    cart.CartRepository
	orders   orderSplitter
	gateways gatewayResolver
	outbox   outboxPublisher
	tx       txRunner
	guard    *Guard
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("payment event repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quote repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order splitter required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("payment gateways required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		events:   params.Events,
		sessions: params.Sessions,
		quotes:   params.Quotes,
		carts:    params.Carts,
		orders:   params.Orders,
		gateways: params.Gateways,
		outbox:   params.Outbox,
		tx:       params.Tx,
		guard:    params.Guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// HandleWebhook verifies, deduplicates and applies one provider delivery.
// Only a signature failure returns an error the provider should see; every
// other outcome, including duplicates, is a successful no-op or transition.
func (r *Reconciler) HandleWebhook(ctx context.Context, providerName string, body []byte, header http.Header) (*Result, error) {
	provider, err := enums.ParsePaymentProvider(providerName)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment provider").
			WithDetails(map[string]any{"provider": providerName})
	}
	gw, err := r.gateways.Get(provider)
	if err != nil {
		return nil, err
	}
	logCtx := r.logg.WithField(ctx, "provider", provider.String())

	event, err := gw.ParseWebhook(body, header)
	if errors.Is(err, gateway.ErrInvalidSignature) {
		r.logg.Error(logCtx, "webhook signature verification failed", err)
		r.recordUnverified(logCtx, provider, body, enums.PaymentEventRejected, "invalid signature")
		r.metrics.Inc(provider.String(), string(enums.PaymentEventRejected))
		return nil, pkgerrors.New(pkgerrors.CodeSignature, "webhook signature invalid")
	}
	if err != nil {
		// Signed but unusable; acknowledging stops a retry loop that can
		// never succeed.
		r.logg.Warn(r.logg.WithField(logCtx, "reason", err.Error()), "webhook payload ignored")
		r.recordUnverified(logCtx, provider, body, enums.PaymentEventIgnored, truncate(err.Error()))
		r.metrics.Inc(provider.String(), string(enums.PaymentEventIgnored))
		return &Result{Provider: provider, Outcome: enums.PaymentEventIgnored}, nil
	}

	logCtx = r.logg.WithPaymentReference(logCtx, event.Reference)
	logCtx = r.logg.WithField(logCtx, "event_id", event.EventID)
	result := &Result{Provider: provider, EventID: event.EventID}

	if r.alreadyReconciled(logCtx, provider, event.EventID) {
		result.Outcome = enums.PaymentEventDuplicate
		r.metrics.Inc(provider.String(), string(result.Outcome))
		r.logg.Info(logCtx, "duplicate webhook skipped")
		return result, nil
	}

	if err := r.apply(logCtx, event, result); err != nil {
		r.logg.Error(logCtx, "webhook reconciliation failed", err)
		return nil, err
	}
	if r.guard != nil {
		// The transaction committed; a disconnected caller must not stop the marker.
		if err := r.guard.Mark(context.WithoutCancel(logCtx), provider.String(), event.EventID); err != nil {
			r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "mark webhook event")
		}
	}

	r.metrics.Inc(provider.String(), string(result.Outcome))
	r.logg.Info(r.logg.WithField(logCtx, "outcome", result.Outcome), "webhook reconciled")
	return result, nil
}

// alreadyReconciled trusts a guard marker only when the matching verified
// payment event is on record. Any lookup failure falls through to apply,
// where the unique index decides.
func (r *Reconciler) alreadyReconciled(ctx context.Context, provider enums.PaymentProvider, eventID string) bool {
	if r.guard == nil {
		return false
	}
	seen, err := r.guard.Seen(ctx, provider.String(), eventID)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "webhook guard unavailable")
		return false
	}
	if !seen {
		return false
	}
	recorded, err := r.events.Recorded(ctx, provider, eventID)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "check payment event")
		return false
	}
	if !recorded {
		r.logg.Warn(ctx, "webhook guard marker without payment event")
	}
	return recorded
}

func (r *Reconciler) apply(ctx context.Context, event *gateway.WebhookEvent, result *Result) error {
	now := r.now().UTC()
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		events := r.events.WithTx(tx)
		row := &models.PaymentEvent{
			Provider:         event.Provider,
			EventID:          event.EventID,
			PaymentReference: event.Reference,
			RawPayloadHash:   event.PayloadHash,
			Status:           event.Status,
			AmountMinor:      event.AmountMinor,
			Verified:         true,
			Outcome:          enums.PaymentEventReceived,
			ReceivedAt:       now,
		}
		inserted, err := events.Insert(ctx, row)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record payment event")
		}
		if !inserted {
			result.Outcome = enums.PaymentEventDuplicate
			return nil
		}

		outcome, detail, err := r.settle(ctx, tx, event, result, now)
		if err != nil {
			return err
		}
		result.Outcome = outcome
		if err := events.Finish(ctx, row.ID, outcome, detail, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finish payment event")
		}
		return nil
	})
}

func (r *Reconciler) settle(ctx context.Context, tx *gorm.DB, event *gateway.WebhookEvent, result *Result, now time.Time) (enums.PaymentEventOutcome, string, error) {
	sessions := r.sessions.WithTx(tx)
	session, err := sessions.FindByReference(ctx, event.Reference)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
	}
	superseded := false
	if session == nil {
		attempt, err := sessions.FindAttemptByReference(ctx, event.Reference)
		if err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment attempt")
		}
		if attempt == nil {
			return enums.PaymentEventIgnored, "unknown payment reference", nil
		}
		session, err = sessions.FindByID(ctx, attempt.CheckoutSessionID)
		if err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load checkout session")
		}
		superseded = true
	}
	result.SessionID = &session.ID

	switch event.Status {
	case enums.PaymentStatusSuccess:
		return r.settleSuccess(ctx, tx, event, session, superseded, result, now)
	case enums.PaymentStatusFailed:
		return r.settleFailure(ctx, tx, event, session, superseded, now)
	default:
		return enums.PaymentEventIgnored, "non-terminal payment status", nil
	}
}

func (r *Reconciler) settleSuccess(ctx context.Context, tx *gorm.DB, event *gateway.WebhookEvent, session *models.CheckoutSession, superseded bool, result *Result, now time.Time) (enums.PaymentEventOutcome, string, error) {
	sessions := r.sessions.WithTx(tx)
	if session.Status == enums.CheckoutSessionPaid {
		if !superseded {
			return enums.PaymentEventIgnored, "session already paid", nil
		}
		// Money arrived twice for one session.
		reason := "payment received on superseded reference after settlement"
		if err := sessions.FlagReview(ctx, session.ID, reason); err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag session for review")
		}
		if err := r.emitSettlement(ctx, tx, enums.EventSettlementReview, event, session, nil, true, reason, now); err != nil {
			return "", "", err
		}
		r.logg.Warn(ctx, reason)
		return enums.PaymentEventReview, reason, nil
	}

	quote, err := r.quotes.WithTx(tx).FindQuote(ctx, session.QuoteID)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load quote")
	}
	if event.AmountMinor != quote.GrandTotalMinor || !strings.EqualFold(event.Currency, quote.Currency) {
		reason := fmt.Sprintf("paid %d %s, expected %d %s", event.AmountMinor, event.Currency, quote.GrandTotalMinor, quote.Currency)
		if _, err := sessions.MarkFailed(ctx, session.ID, enums.SettleableSessionStatuses, reason, true); err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail checkout session")
		}
		if err := r.emitSettlement(ctx, tx, enums.EventSettlementReview, event, session, nil, true, reason, now); err != nil {
			return "", "", err
		}
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"checkout_session_id": session.ID.String(),
			"paid_minor":          event.AmountMinor,
			"expected_minor":      quote.GrandTotalMinor,
		})
		r.logg.Warn(logCtx, "settlement amount mismatch")
		return enums.PaymentEventReview, reason, nil
	}

	ok, err := sessions.MarkPaid(ctx, session.ID, now)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark session paid")
	}
	if !ok {
		return enums.PaymentEventIgnored, "session already paid", nil
	}
	session.Status = enums.CheckoutSessionPaid

	group, _, err := r.orders.Split(ctx, tx, session, quote)
	if err != nil {
		return "", "", err
	}
	result.OrderGroupID = &group.ID

	if session.CartID != nil && r.carts != nil {
		if _, err := r.carts.WithTx(tx).UpdateStatus(ctx, *session.CartID, enums.CartStatusActive, enums.CartStatusConverted); err != nil {
			return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "convert cart")
		}
	}

	if err := r.emitSettlement(ctx, tx, enums.EventCheckoutSessionPaid, event, session, &group.ID, false, "", now); err != nil {
		return "", "", err
	}
	return enums.PaymentEventApplied, "", nil
}

func (r *Reconciler) settleFailure(ctx context.Context, tx *gorm.DB, event *gateway.WebhookEvent, session *models.CheckoutSession, superseded bool, now time.Time) (enums.PaymentEventOutcome, string, error) {
	if superseded {
		return enums.PaymentEventIgnored, "failure on superseded reference", nil
	}
	reason := "payment failed"
	if event.EventType != "" {
		reason = "payment failed: " + event.EventType
	}
	ok, err := r.sessions.WithTx(tx).MarkFailed(ctx, session.ID, enums.OpenSessionStatuses, reason, false)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fail checkout session")
	}
	if !ok {
		return enums.PaymentEventIgnored, "session not awaiting payment", nil
	}
	if err := r.emitSettlement(ctx, tx, enums.EventCheckoutSessionFailed, event, session, nil, false, reason, now); err != nil {
		return "", "", err
	}
	return enums.PaymentEventFailed, reason, nil
}

func (r *Reconciler) emitSettlement(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, event *gateway.WebhookEvent, session *models.CheckoutSession, groupID *uuid.UUID, review bool, reason string, now time.Time) error {
	err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   session.ID,
		Actor:         outbox.SystemActor("settlement"),
		Data: payloads.SettlementEvent{
			SessionID:       session.ID,
			OrderGroupID:    groupID,
			BuyerUserID:     session.BuyerUserID,
			Provider:        event.Provider,
			ProviderEventID: event.EventID,
			Reference:       event.Reference,
			Status:          event.Status,
			AmountMinor:     event.AmountMinor,
			ExpectedMinor:   session.AmountMinor,
			Currency:        event.Currency,
			ReviewRequired:  review,
			Reason:          reason,
			SettledAt:       now,
		},
		OccurredAt: now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit settlement event")
	}
	return nil
}

// recordUnverified keeps an audit row for deliveries that were not applied.
// Failures here are logged only; they must not change the response.
func (r *Reconciler) recordUnverified(ctx context.Context, provider enums.PaymentProvider, body []byte, outcome enums.PaymentEventOutcome, detail string) {
	now := r.now().UTC()
	row := &models.PaymentEvent{
		Provider:       provider,
		EventID:        "",
		RawPayloadHash: security.SHA256Hex(body),
		Status:         enums.PaymentStatusPending,
		Verified:       false,
		Outcome:        outcome,
		Detail:         &detail,
		ReceivedAt:     now,
		ProcessedAt:    &now,
	}
	if _, err := r.events.Insert(ctx, row); err != nil {
		r.logg.Error(ctx, "record unverified payment event", err)
	}
}

// truncate clips s to maxDetailRunes runes so detail stays valid UTF-8.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxDetailRunes {
		return s
	}
	return string([]rune(s)[:maxDetailRunes])
}
