package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WebhookStore is the redis surface used to short-circuit replayed deliveries.
type WebhookStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	WebhookEventKey(provider, eventID string) string
}

// Guard remembers provider event ids whose reconciliation has committed. A
// marker is written only after the payment_events row exists, so a marker
// never stands in for work that did not happen; the unique index stays the
// authority.
type Guard struct {
	store WebhookStore
	ttl   time.Duration
}

func NewGuard(store WebhookStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("webhook store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Seen reports whether a committed delivery left a marker for the event.
func (g *Guard) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	ok, err := g.store.Exists(ctx, g.store.WebhookEventKey(provider, eventID))
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return ok, nil
}

// Mark records that the event's reconciliation committed.
func (g *Guard) Mark(ctx context.Context, provider, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.store.WebhookEventKey(provider, eventID), "1", g.ttl); err != nil {
		return fmt.Errorf("mark webhook event: %w", err)
	}
	return nil
}
