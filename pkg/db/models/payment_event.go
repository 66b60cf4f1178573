package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// PaymentEvent is the append-only log of webhook deliveries. Verified rows are
// unique per (provider, event_id) and per raw payload hash.
type PaymentEvent struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Provider         enums.PaymentProvider     `gorm:"column:provider;type:text;not null;uniqueIndex:ux_payment_events_provider_event,where:verified"`
	EventID          string                    `gorm:"column:event_id;not null;uniqueIndex:ux_payment_events_provider_event,where:verified"`
	PaymentReference string                    `gorm:"column:payment_reference;not null;default:'';index"`
	RawPayloadHash   string                    `gorm:"column:raw_payload_hash;not null;uniqueIndex:ux_payment_events_payload_hash,where:verified"`
	Status           enums.PaymentStatus       `gorm:"column:status;type:text;not null;default:'pending'"`
	AmountMinor      int64                     `gorm:"column:amount_minor;not null;default:0"`
	Verified         bool                      `gorm:"column:verified;not null"`
	Outcome          enums.PaymentEventOutcome `gorm:"column:outcome;type:text;not null"`
	Detail           *string                   `gorm:"column:detail"`
	ReceivedAt       time.Time                 `gorm:"column:received_at;not null"`
	ProcessedAt      *time.Time                `gorm:"column:processed_at"`
}

func (p *PaymentEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
