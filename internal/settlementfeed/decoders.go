package settlementfeed

import (
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/registry"
)

const payloadVersion = 1

// NewDecoders registers the payload decoders for every event the feed records.
// Events without a decoder are acknowledged and skipped.
func NewDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	settlement := registry.JSONDecoder[payloads.SettlementEvent]()
	for _, eventType := range []enums.OutboxEventType{
		enums.EventCheckoutSessionPaid,
		enums.EventCheckoutSessionFailed,
		enums.EventSettlementReview,
	} {
		decoders.Register(eventType, payloadVersion, settlement)
	}
	decoders.Register(enums.EventOrderCancelled, payloadVersion, registry.JSONDecoder[payloads.OrderCancelledEvent]())
	return decoders
}
