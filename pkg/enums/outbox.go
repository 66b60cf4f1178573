package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregateOrderGroup      OutboxAggregateType = "order_group"
	AggregateOrder           OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCheckoutSession,
	AggregateOrderGroup,
	AggregateOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return oneOf(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseAs("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCheckoutSessionCreated OutboxEventType = "checkout_session_created"
	EventPaymentInitiated       OutboxEventType = "payment_initiated"
	EventCheckoutSessionExpired OutboxEventType = "checkout_session_expired"
	EventCheckoutSessionPaid    OutboxEventType = "checkout_session_paid"
	EventCheckoutSessionFailed  OutboxEventType = "checkout_session_failed"
	EventSettlementReview       OutboxEventType = "settlement_review_required"
	EventOrderGroupCreated      OutboxEventType = "order_group_created"
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCheckoutSessionCreated,
	EventPaymentInitiated,
	EventCheckoutSessionExpired,
	EventCheckoutSessionPaid,
	EventCheckoutSessionFailed,
	EventSettlementReview,
	EventOrderGroupCreated,
	EventOrderStatusChanged,
	EventOrderCancelled,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return oneOf(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseAs("event type", value, validOutboxEventTypes)
}
