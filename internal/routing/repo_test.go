package routing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handoffdesk-backend/internal/routing"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
	"github.com/angelmondragon/handoffdesk-backend/pkg/pagination"
)

func TestListItemsPagesInEnqueueOrder(t *testing.T) {
	conn := dbtest.Open(t).DB()
	queue := dbtest.SeedQueue(t, conn, "general", true)
	base := time.Now().UTC().Add(-time.Hour)

	var want []uuid.UUID
	for i := 0; i < 5; i++ {
		conv := dbtest.SeedConversation(t, conn, enums.ConversationQueued)
		item := dbtest.SeedQueueItem(t, conn, queue.ID, conv.ID, enums.QueueItemQueued)
		require.NoError(t, conn.Model(&models.QueueItem{}).Where("id = ?", item.ID).
			Update("enqueued_at", base.Add(time.Duration(i)*time.Minute)).Error)
		want = append(want, item.ID)
	}
	done := dbtest.SeedConversation(t, conn, enums.ConversationResolved)
	dbtest.SeedQueueItem(t, conn, queue.ID, done.ID, enums.QueueItemCompleted)

	repo := routing.NewRepository(conn)
	filter := routing.ItemFilter{QueueID: queue.ID, State: enums.QueueItemQueued, Params: pagination.Params{Limit: 2}}

	var got []uuid.UUID
	for pages := 0; pages < 5; pages++ {
		page, err := repo.ListItems(context.Background(), filter)
		require.NoError(t, err)
		for _, it := range page.Items {
			got = append(got, it.ID)
		}
		if page.NextCursor == "" {
			break
		}
		filter.Cursor = page.NextCursor
	}
	assert.Equal(t, want, got)

	page, err := repo.ListItems(context.Background(), routing.ItemFilter{QueueID: queue.ID})
	require.NoError(t, err)
	assert.Len(t, page.Items, 6)
}

func TestListItemsRejectsBadCursor(t *testing.T) {
	conn := dbtest.Open(t).DB()
	_, err := routing.NewRepository(conn).ListItems(context.Background(), routing.ItemFilter{
		QueueID: uuid.New(),
		Params:  pagination.Params{Cursor: "not-a-cursor"},
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestGetQueueNotFound(t *testing.T) {
	conn := dbtest.Open(t).DB()
	_, err := routing.NewRepository(conn).GetQueue(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
