package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func TestOutboxRetentionJobDeletesOnlyOldPublishedRows(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	insert := func(publishedAt *time.Time) uuid.UUID {
		row := models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			PublishedAt:   publishedAt,
		}
		require.NoError(t, conn.Create(&row).Error)
		return row.ID
	}
	oldID := insert(&old)
	recentID := insert(&recent)
	pendingID := insert(nil)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:         db.FromGorm(conn),
		Repository: outbox.NewRepository(),
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{recentID, pendingID}, remaining)
	assert.NotContains(t, remaining, oldID)
}
