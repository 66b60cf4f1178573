// Package idempotency lets Pub/Sub consumers process each outbox event id
// once, even when messages are redelivered or two workers race.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/checkout-engine/pkg/redis"
)

// DefaultLease bounds how long a claim survives a worker that dies before
// completing or releasing it.
const DefaultLease = 5 * time.Minute

const (
	markerProcessing = "processing"
	markerDone       = "done"
)

// Outcome is the result of a claim attempt.
type Outcome int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota
	// Processed means the event was handled before; ack and move on.
	Processed
	// InFlight means another worker holds the claim; retry later.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Processed:
		return "processed"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Manager stores one key per consumer and event id under
// checkout:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

// NewManager remembers completed events for ttl. A zero ttl keeps them until
// evicted.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency: store required")
	}
	if ttl < 0 {
		return nil, errors.New("idempotency: negative ttl")
	}
	return &Manager{store: store, ttl: ttl, lease: DefaultLease}, nil
}

// Claim reserves eventID for consumer.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	won, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil {
		return 0, fmt.Errorf("claim %s: %w", key, err)
	}
	if won {
		return Claimed, nil
	}
	current, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// the lease lapsed between the two calls; let the redelivery claim it
		return InFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read %s: %w", key, err)
	case current == markerDone:
		return Processed, nil
	default:
		return InFlight, nil
	}
}

// Complete marks a claimed event as processed for the manager's ttl.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Release gives up a claim so a redelivery can retry. Completed events are
// left alone.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	_, err = m.store.CompareAndDelete(ctx, key, markerProcessing)
	return err
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("idempotency: consumer name required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("idempotency: event id required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
