package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/trailmarks/gamification-backend/pkg/db/models"
	"github.com/trailmarks/gamification-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	outboxDLQ := `
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  outbox_event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  reason TEXT NOT NULL,
  payload TEXT NOT NULL,
  last_error TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(outboxEvents).Error)
	require.NoError(t, db.Exec(outboxDLQ).Error)

	return db
}

func seedEvent(t *testing.T, db *gorm.DB, createdAt time.Time, attempts int) models.OutboxEvent {
	t.Helper()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPointsAppended,
		AggregateType: enums.AggregateUserStats,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func TestFetchUnpublishedOrdersAndFilters(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := seedEvent(t, db, base.Add(time.Minute), 0)
	first := seedEvent(t, db, base, 0)
	exhausted := seedEvent(t, db, base.Add(2*time.Minute), 5)

	published := seedEvent(t, db, base.Add(3*time.Minute), 0)
	require.NoError(t, repo.MarkPublished(published.ID))

	rows, err := repo.FetchUnpublished(10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)
	for _, row := range rows {
		assert.NotEqual(t, exhausted.ID, row.ID)
		assert.NotEqual(t, published.ID, row.ID)
	}
}

func TestFetchUnpublishedRespectsLimit(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedEvent(t, db, base.Add(time.Duration(i)*time.Second), 0)
	}

	rows, err := repo.FetchUnpublished(2, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMarkFailedIncrementsAttempts(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	event := seedEvent(t, db, time.Now().UTC(), 0)
	require.NoError(t, repo.MarkFailed(event.ID, errors.New("publish timeout")))
	require.NoError(t, repo.MarkFailed(event.ID, errors.New("publish timeout")))

	var row models.OutboxEvent
	require.NoError(t, db.First(&row, "id = ?", event.ID).Error)
	assert.Equal(t, 2, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "publish timeout", *row.LastError)
	assert.Nil(t, row.PublishedAt)
}

func TestMarkTerminalTxPinsAttemptCeiling(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)
	dlq := NewDLQRepository(db)

	event := seedEvent(t, db, time.Now().UTC(), 4)
	reason := "unsupported event type"

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := dlq.InsertTx(tx, models.OutboxDLQ{
			ID:            uuid.New(),
			OutboxEventID: event.ID,
			EventType:     event.EventType,
			Reason:        enums.OutboxDLQReasonNonRetryable,
			Payload:       event.Payload,
			LastError:     &reason,
		}); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, event.ID, errors.New(reason), 5)
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var entries []models.OutboxDLQ
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, event.ID, entries[0].OutboxEventID)
}

func TestMarkTerminalTxRequiresTransaction(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	err := repo.MarkTerminalTx(nil, uuid.New(), errors.New("boom"), 5)
	assert.Error(t, err)
}

func TestDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	old := seedEvent(t, db, time.Now().UTC().Add(-48*time.Hour), 0)
	fresh := seedEvent(t, db, time.Now().UTC(), 0)
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("id = ?", old.ID).
		Update("published_at", time.Now().UTC().Add(-48*time.Hour)).Error)
	require.NoError(t, repo.MarkPublished(fresh.ID))

	deleted, err := repo.DeletePublishedBefore(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
