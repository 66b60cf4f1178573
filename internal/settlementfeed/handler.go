package settlementfeed

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/registry"
)

// ErrUnsupportedEvent marks envelopes the feed does not record.
var ErrUnsupportedEvent = errors.New("unsupported settlement event")

type rowWriter interface {
	Write(ctx context.Context, rows ...SettlementRow) error
}

// Handler turns settlement envelopes into BigQuery rows.
type Handler struct {
	decoders *registry.DecoderRegistry
	writer   rowWriter
}

func NewHandler(decoders *registry.DecoderRegistry, writer rowWriter) (*Handler, error) {
	if decoders == nil {
		return nil, errors.New("decoder registry required")
	}
	if writer == nil {
		return nil, errors.New("row writer required")
	}
	return &Handler{decoders: decoders, writer: writer}, nil
}

// Handles reports whether the envelope type is recorded by the feed.
func (h *Handler) Handles(env Envelope) bool {
	return h.decoders.Handles(env.EventType)
}

func (h *Handler) Handle(ctx context.Context, env Envelope) error {
	if !h.Handles(env) {
		return ErrUnsupportedEvent
	}
	version := env.Version
	if version == 0 {
		version = payloadVersion
	}
	decoded, err := h.decoders.Decode(env.EventType, version, env.Payload)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}
	row, err := buildRow(env, decoded)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}
	return h.writer.Write(ctx, row)
}

func buildRow(env Envelope, decoded any) (SettlementRow, error) {
	row := SettlementRow{
		EventID:    env.EventID.String(),
		EventType:  string(env.EventType),
		OccurredAt: env.OccurredAt.UTC(),
		Payload:    encodeJSON(env.Payload),
	}
	switch event := decoded.(type) {
	case *payloads.SettlementEvent:
		row.SessionID = uuidPtr(event.SessionID)
		if event.OrderGroupID != nil {
			row.OrderGroupID = uuidPtr(*event.OrderGroupID)
		}
		row.BuyerUserID = uuidPtr(event.BuyerUserID)
		row.Provider = strPtr(string(event.Provider))
		row.Reference = strPtr(event.Reference)
		row.PaymentStatus = strPtr(string(event.Status))
		row.AmountMinor = event.AmountMinor
		row.ExpectedMinor = int64Ptr(event.ExpectedMinor)
		row.Currency = event.Currency
		row.ReviewRequired = event.ReviewRequired
		row.Reason = strPtr(event.Reason)
		if !event.SettledAt.IsZero() {
			row.OccurredAt = event.SettledAt.UTC()
		}
	case *payloads.OrderCancelledEvent:
		row.OrderID = uuidPtr(event.OrderID)
		row.OrderGroupID = uuidPtr(event.GroupID)
		row.SellerID = uuidPtr(event.SellerID)
		row.AmountMinor = -event.RefundedMinor
		row.RefundedMinor = int64Ptr(event.RefundedMinor)
		row.Currency = event.Currency
		row.Reason = strPtr(event.Reason)
		if !event.CancelledAt.IsZero() {
			row.OccurredAt = event.CancelledAt.UTC()
		}
	default:
		return SettlementRow{}, fmt.Errorf("unexpected payload %T for %s", decoded, env.EventType)
	}
	return row, nil
}
