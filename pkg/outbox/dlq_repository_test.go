package outbox

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/dbtest"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
)

func TestDLQInsertIgnoresRepeatedEvent(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	repo := NewDLQRepository(conn)
	event := seedEvent(t, conn, 5)
	failedAt := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		entry := NewDLQEntry(event, enums.OutboxDLQReasonMaxAttempts, errors.New("topic unavailable"), failedAt)
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return repo.InsertTx(tx, entry)
		}))
	}

	var rows []models.OutboxDLQ
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, event.ID, rows[0].EventID)
	require.Equal(t, 5, rows[0].AttemptCount)
	require.Equal(t, "topic unavailable", *rows[0].ErrorMessage)
}

func TestDLQInsertValidates(t *testing.T) {
	t.Parallel()
	repo := NewDLQRepository(nil)
	entry := NewDLQEntry(models.OutboxEvent{ID: uuid.New()}, enums.OutboxDLQReasonNonRetryable, nil, time.Now())

	require.Error(t, repo.InsertTx(nil, entry))

	conn := dbtest.Open(t)
	entry.ErrorReason = "gave_up"
	require.Error(t, repo.InsertTx(conn, entry))
	require.Error(t, repo.InsertTx(conn, models.OutboxDLQ{ErrorReason: enums.OutboxDLQReasonNonRetryable}))
}

func TestClipRunesKeepsValidUTF8(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("é", maxDLQErrorRunes+10)

	clipped := clipRunes(long, maxDLQErrorRunes)
	require.True(t, utf8.ValidString(clipped))
	require.Equal(t, maxDLQErrorRunes, utf8.RuneCountInString(clipped))
	require.Equal(t, "short", clipRunes("short", maxDLQErrorRunes))
}
