package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/types"
)

// OrderView is the buyer- and seller-facing representation of one seller order.
type OrderView struct {
	ID                 uuid.UUID         `json:"id"`
	GroupID            uuid.UUID         `json:"group_id"`
	SellerID           uuid.UUID         `json:"seller_id"`
	Status             enums.OrderStatus `json:"status"`
	LineItems          types.LineItems   `json:"line_items"`
	MerchSubtotalMinor int64             `json:"merch_subtotal_minor"`
	DeliveryMinor      int64             `json:"delivery_minor"`
	AbattoirMinor      int64             `json:"abattoir_minor"`
	ProcessingFeeMinor int64             `json:"buyer_processing_fee_minor"`
	EscrowFeeMinor     int64             `json:"escrow_service_fee_minor"`
	TotalMinor         int64             `json:"total_minor"`
	Currency           string            `json:"currency"`
	CancelReason       *string           `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// GroupView lists every order produced by one checkout session.
type GroupView struct {
	ID                uuid.UUID   `json:"id"`
	CheckoutSessionID uuid.UUID   `json:"checkout_session_id"`
	TotalMinor        int64       `json:"total_minor"`
	Currency          string      `json:"currency"`
	Orders            []OrderView `json:"orders"`
	CreatedAt         time.Time   `json:"created_at"`
}

// UpdateStatusInput moves an order along its fulfilment path.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	Status      enums.OrderStatus
}

// CancelInput cancels an order on behalf of its buyer.
type CancelInput struct {
	OrderID     uuid.UUID
	BuyerUserID uuid.UUID
	Reason      string
}

func NewOrderView(order models.Order) OrderView {
	return OrderView{
		ID:                 order.ID,
		GroupID:            order.GroupID,
		SellerID:           order.SellerID,
		Status:             order.Status,
		LineItems:          order.LineItems,
		MerchSubtotalMinor: order.MerchSubtotalMinor,
		DeliveryMinor:      order.DeliveryMinor,
		AbattoirMinor:      order.AbattoirMinor,
		ProcessingFeeMinor: order.ProcessingFeeMinor,
		EscrowFeeMinor:     order.EscrowFeeMinor,
		TotalMinor:         order.TotalMinor,
		Currency:           order.Currency,
		CancelReason:       order.CancelReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func NewGroupView(group *models.OrderGroup) *GroupView {
	if group == nil {
		return nil
	}
	view := &GroupView{
		ID:                group.ID,
		CheckoutSessionID: group.CheckoutSessionID,
		Orders:            make([]OrderView, 0, len(group.Orders)),
		CreatedAt:         group.CreatedAt,
	}
	for _, order := range group.Orders {
		view.Orders = append(view.Orders, NewOrderView(order))
		view.TotalMinor += order.TotalMinor
		view.Currency = order.Currency
	}
	return view
}
