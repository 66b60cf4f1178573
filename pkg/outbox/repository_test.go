package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/checkout-engine/pkg/db/dbtest"
	"github.com/angelmondragon/checkout-engine/pkg/db/models"
	"github.com/angelmondragon/checkout-engine/pkg/enums"
	"github.com/angelmondragon/checkout-engine/pkg/outbox/payloads"
)

func TestEmitStoresEnvelope(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	sessionID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCheckoutSessionExpired,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   sessionID,
			Actor:         SystemActor("cron"),
			Data:          payloads.CheckoutSessionExpiredEvent{SessionID: sessionID},
		})
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	require.Equal(t, sessionID, row.AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "cron", envelope.Actor.System)

	var data payloads.CheckoutSessionExpiredEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, sessionID, data.SessionID)
}

func TestEmitRequiresTransaction(t *testing.T) {
	t.Parallel()
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCancelled})
	require.Error(t, err)
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	groupID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderGroupCreated,
		AggregateType: enums.AggregateOrderGroup,
		AggregateID:   groupID,
		Data:          payloads.OrderGroupCreatedEvent{OrderGroupID: groupID},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestPublishLifecycle(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	first := seedEvent(t, conn, 0)
	second := seedEvent(t, conn, 0)
	exhausted := seedEvent(t, conn, 3)

	var fetched []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, fetched, 2)
	ids := []uuid.UUID{fetched[0].ID, fetched[1].ID}
	require.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, ids)
	require.NotContains(t, ids, exhausted.ID)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkPublishedTx(tx, first.ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, second.ID, errors.New("unavailable")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, exhausted.ID, errors.New("bad payload"), 3)
	}))

	var published models.OutboxEvent
	require.NoError(t, conn.First(&published, "id = ?", first.ID).Error)
	require.NotNil(t, published.PublishedAt)

	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", second.ID).Error)
	require.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	require.Equal(t, "unavailable", *failed.LastError)
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)

	oldPublished := seedEvent(t, conn, 0)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", oldPublished.ID).
		Updates(map[string]any{"published_at": old, "created_at": old}).Error)
	oldDead := seedEvent(t, conn, 5)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", oldDead.ID).
		Update("created_at", old).Error)
	oldPending := seedEvent(t, conn, 1)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", oldPending.ID).
		Update("created_at", old).Error)
	freshPublished := seedEvent(t, conn, 0)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", freshPublished.ID).
		Update("published_at", now).Error)

	var deleted int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeleteExpired(context.Background(), tx, now.Add(-24*time.Hour), 5, 100)
		return err
	}))
	require.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	left := make([]uuid.UUID, 0, len(remaining))
	for _, row := range remaining {
		left = append(left, row.ID)
	}
	require.ElementsMatch(t, []uuid.UUID{oldPending.ID, freshPublished.ID}, left)
}

func seedEvent(t *testing.T, conn *gorm.DB, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventCheckoutSessionCreated,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1,"eventId":"x","data":{}}`),
		AttemptCount:  attempts,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}
