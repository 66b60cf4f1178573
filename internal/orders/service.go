package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/checkout-engine/pkg/errors"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// cancellableStatuses lists the states a buyer may still cancel from.
var cancellableStatuses = []enums.OrderStatus{
	enums.OrderStatusCreated,
	enums.OrderStatusFulfilling,
}

// Service owns order groups from the moment a session is paid.
type Service interface {
	// Split turns a paid session into one order and escrow hold per seller
	// inside tx. A second call for the same session returns the existing
	// group with created=false.
	Split(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, quote *models.Quote) (group *models.OrderGroup, created bool, err error)
	GetGroup(ctx context.Context, groupID, buyerUserID uuid.UUID) (*models.OrderGroup, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
}

type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) Split(ctx context.Context, tx *gorm.DB, session *models.CheckoutSession, quote *models.Quote) (*models.OrderGroup, bool, error) {
	if tx == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required for order split")
	}
	if session == nil || quote == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "session and quote are required")
	}
	if session.QuoteID != quote.ID {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "quote does not belong to session").
			WithDetails(map[string]any{"session_id": session.ID.String(), "quote_id": quote.ID.String()})
	}
	if len(quote.PerSeller) == 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "quote has no seller entries")
	}

	repo := s.repo.WithTx(tx)
	group := &models.OrderGroup{
		ID:                session.OrderGroupID,
		CheckoutSessionID: session.ID,
		BuyerUserID:       session.BuyerUserID,
	}
	inserted, err := repo.CreateGroup(ctx, group)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order group")
	}
	if !inserted {
		existing, err := repo.FindGroupBySession(ctx, session.ID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order group")
		}
		if existing == nil {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "order group id already in use")
		}
		return existing, false, nil
	}

	orders := make([]models.Order, 0, len(quote.PerSeller))
	for _, entry := range quote.PerSeller {
		orders = append(orders, models.Order{
			ID:                 uuid.New(),
			GroupID:            group.ID,
			SellerID:           entry.SellerID,
			BuyerUserID:        session.BuyerUserID,
			LineItems:          entry.LineItems,
			MerchSubtotalMinor: entry.MerchSubtotalMinor,
			DeliveryMinor:      entry.DeliveryMinor,
			AbattoirMinor:      entry.AbattoirMinor,
			ProcessingFeeMinor: entry.ProcessingFeeMinor,
			EscrowFeeMinor:     entry.EscrowFeeMinor,
			TotalMinor:         entry.TotalMinor,
			Currency:           quote.Currency,
			Status:             enums.OrderStatusCreated,
		})
	}
	if err := repo.CreateOrders(ctx, orders); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create orders")
	}

	holds := make([]models.EscrowHold, 0, len(orders))
	orderIDs := make([]uuid.UUID, 0, len(orders))
	sellerIDs := make([]uuid.UUID, 0, len(orders))
	var total int64
	for _, order := range orders {
		holds = append(holds, models.EscrowHold{
			OrderID:     order.ID,
			SellerID:    order.SellerID,
			AmountMinor: order.MerchSubtotalMinor + order.DeliveryMinor,
			Currency:    order.Currency,
			Status:      enums.EscrowHoldHeld,
		})
		orderIDs = append(orderIDs, order.ID)
		sellerIDs = append(sellerIDs, order.SellerID)
		total += order.TotalMinor
	}
	if err := repo.CreateHolds(ctx, holds); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create escrow holds")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderGroupCreated,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   group.ID,
		Actor:         outbox.SystemActor("settlement"),
		Data: payloads.OrderGroupCreatedEvent{
			OrderGroupID: group.ID,
			SessionID:    session.ID,
			BuyerUserID:  session.BuyerUserID,
			OrderIDs:     orderIDs,
			SellerIDs:    sellerIDs,
			TotalMinor:   total,
			Currency:     quote.Currency,
		},
		OccurredAt: s.now().UTC(),
	}); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order group created")
	}

	group.Orders = orders
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_group_id":      group.ID.String(),
		"checkout_session_id": session.ID.String(),
		"orders":              len(orders),
	})
	s.logg.Info(logCtx, "order group created")
	return group, true, nil
}

func (s *service) GetGroup(ctx context.Context, groupID, buyerUserID uuid.UUID) (*models.OrderGroup, error) {
	if groupID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	group, err := s.repo.FindGroup(ctx, groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order group")
	}
	if group.BuyerUserID != buyerUserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	return group, nil
}

// UpdateStatus is performed by the order's seller. Completing an order
// releases its escrow hold.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Status.IsValid() || input.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"status": input.Status})
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.SellerID != input.ActorUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to seller")
		}
		if order.Status == input.Status {
			updated = order
			return nil
		}
		if !order.Status.CanTransitionTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
				WithDetails(map[string]any{"from": order.Status, "to": input.Status})
		}

		ok, err := repo.UpdateOrderStatus(ctx, order.ID, order.Status, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		now := s.now().UTC()
		if input.Status == enums.OrderStatusCompleted {
			if _, err := repo.SettleHold(ctx, order.ID, enums.EscrowHoldReleased, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release escrow hold")
			}
		}

		from := order.Status
		order.Status = input.Status
		updated = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				GroupID:   order.GroupID,
				SellerID:  order.SellerID,
				From:      from,
				To:        input.Status,
				ChangedAt: now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel is allowed until the order is delivered. The order is soft-deleted
// and its escrow hold marked refunded.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.BuyerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.BuyerUserID != input.BuyerUserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status == enums.OrderStatusCancelled {
			cancelled = order
			return nil
		}

		now := s.now().UTC()
		ok, err := repo.CancelOrder(ctx, order.ID, cancellableStatuses, input.Reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}
		if _, err := repo.SettleHold(ctx, order.ID, enums.EscrowHoldRefunded, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund escrow hold")
		}

		order.Status = enums.OrderStatusCancelled
		if input.Reason != "" {
			reason := input.Reason
			order.CancelReason = &reason
		}
		cancelled = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.BuyerUserID},
			Data: payloads.OrderCancelledEvent{
				OrderID:       order.ID,
				GroupID:       order.GroupID,
				SellerID:      order.SellerID,
				RefundedMinor: order.TotalMinor,
				Currency:      order.Currency,
				Reason:        input.Reason,
				CancelledAt:   now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": cancelled.ID.String(),
		"status":   cancelled.Status,
	})
	s.logg.Info(logCtx, "order cancelled")
	return cancelled, nil
}

func findOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}
