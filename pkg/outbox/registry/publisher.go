// Package registry maps outbox event types to their aggregate, topic and
// payload type, for the relay on the way out and for consumers on the way in.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/config"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
)

// EventDescriptor links an event type to the aggregate that owns it, the
// topic it is published on and the decoder for its data section.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	Decode        DecoderFunc
}

// ResolvedEvent is an outbox row that passed validation, with its envelope
// and typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a failure that will not go away on retry, such as
// a malformed row or a payload that no longer decodes.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so IsPermanent reports true for it.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is non-retryable.
func IsPermanent(err error) bool {
	var nonRetry NonRetryableError
	return errors.As(err, &nonRetry)
}

func permanentf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func bind[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{EventType: eventType, AggregateType: aggregate, Decode: JSONDecoder[T]()}
}

// EventRegistry resolves outbox rows for the relay.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every checkout event to the domain topic; consumers
// filter on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.DomainTopic)
	if topic == "" {
		return nil, errors.New("domain topic is required")
	}
	descriptors := []EventDescriptor{
		bind[payloads.CheckoutSessionCreatedEvent](enums.EventCheckoutSessionCreated, enums.AggregateCheckoutSession),
		bind[payloads.PaymentInitiatedEvent](enums.EventPaymentInitiated, enums.AggregateCheckoutSession),
		bind[payloads.CheckoutSessionExpiredEvent](enums.EventCheckoutSessionExpired, enums.AggregateCheckoutSession),
		bind[payloads.SettlementEvent](enums.EventCheckoutSessionPaid, enums.AggregateCheckoutSession),
		bind[payloads.SettlementEvent](enums.EventCheckoutSessionFailed, enums.AggregateCheckoutSession),
		bind[payloads.SettlementEvent](enums.EventSettlementReview, enums.AggregateCheckoutSession),
		bind[payloads.OrderGroupCreatedEvent](enums.EventOrderGroupCreated, enums.AggregateOrderGroup),
		bind[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
		bind[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every error it returns is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanentf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanentf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanentf("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, permanentf("decode envelope: %w", err)
	}
	payload, err := desc.Decode(envelope.Data)
	if err != nil {
		return nil, permanentf("%s: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func isBlank(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
