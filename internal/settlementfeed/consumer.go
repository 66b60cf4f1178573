package settlementfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/logger"
	"github.com/angelmondragon/checkout-engine/pkg/outbox"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/idempotency"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/registry"
)

const consumerName = "settlement-feed"

type envelopeHandler interface {
	Handles(env Envelope) bool
	Handle(ctx context.Context, env Envelope) error
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Outcome, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Service consumes domain events from Pub/Sub and records settlement outcomes
// in BigQuery exactly once per event id.
type Service struct {
	subscription receiver
	handler      envelopeHandler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewService(subscription receiver, handler envelopeHandler, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("settlement subscription is required")
	}
	if handler == nil {
		return nil, errors.New("settlement handler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: subscription,
		handler:      handler,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	env, err := buildEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid settlement envelope")
		return processResult{}
	}
	fields["event_id"] = env.EventID.String()
	fields["event_type"] = string(env.EventType)
	fields["aggregate_id"] = env.AggregateID
	logCtx = s.logg.WithFields(ctx, fields)

	if !s.handler.Handles(*env) {
		s.logg.Debug(logCtx, "event not recorded by settlement feed")
		return processResult{}
	}

	outcome, err := s.manager.Claim(logCtx, consumerName, env.EventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency claim failed", err)
		return processResult{nack: true}
	}
	switch outcome {
	case idempotency.Processed:
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	case idempotency.InFlight:
		s.logg.Info(logCtx, "event claimed by another worker")
		return processResult{nack: true}
	}

	if err := s.handler.Handle(logCtx, *env); err != nil {
		if registry.IsPermanent(err) || errors.Is(err, ErrUnsupportedEvent) {
			s.logg.Error(logCtx, "dropping settlement event", err)
			s.complete(logCtx, env.EventID)
			return processResult{}
		}
		s.logg.Error(logCtx, "settlement feed write failed", err)
		if relErr := s.manager.Release(logCtx, consumerName, env.EventID); relErr != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", relErr.Error()), "release idempotency claim")
		}
		return processResult{nack: true}
	}

	s.complete(logCtx, env.EventID)
	s.logg.Info(logCtx, "settlement event recorded")
	return processResult{}
}

// complete failures are logged only; the row is already written.
func (s *Service) complete(ctx context.Context, eventID uuid.UUID) {
	if err := s.manager.Complete(ctx, consumerName, eventID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "mark event processed")
	}
}

func buildEnvelope(msg *gcppubsub.Message) (*Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if rawID == "" {
		return nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	return &Envelope{
		EventID:     eventID,
		EventType:   eventType,
		Version:     stored.Version,
		AggregateID: strings.TrimSpace(msg.Attributes["aggregate_id"]),
		OccurredAt:  occurredAt.UTC(),
		Payload:     stored.Data,
	}, nil
}
