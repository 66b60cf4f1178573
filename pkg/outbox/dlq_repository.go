package outbox

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

// maxDLQErrorRunes caps the stored error text; gRPC errors can carry whole
// request dumps.
const maxDLQErrorRunes = 1024

// DLQRepository keeps outbox rows that will never be published, for an
// operator to inspect or replay by hand.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// NewDLQEntry copies event into a dead-letter row stamped at failedAt.
func NewDLQEntry(event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) models.OutboxDLQ {
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt.UTC(),
	}
	if cause != nil {
		msg := cause.Error()
		entry.ErrorMessage = &msg
	}
	return entry
}

// InsertTx stores entry in tx. An event already dead-lettered is left as is.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("outbox dlq: transaction required")
	}
	if entry.EventID == uuid.Nil {
		return errors.New("outbox dlq: event id required")
	}
	if !entry.ErrorReason.IsValid() {
		return fmt.Errorf("outbox dlq: unknown reason %q", entry.ErrorReason)
	}
	if entry.ErrorMessage != nil {
		clipped := clipRunes(*entry.ErrorMessage, maxDLQErrorRunes)
		entry.ErrorMessage = &clipped
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&entry).Error
}

// clipRunes shortens s to at most limit runes without splitting a UTF-8
// sequence.
func clipRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
