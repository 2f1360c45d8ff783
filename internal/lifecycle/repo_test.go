package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/handoffdesk-backend/internal/lifecycle"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/handoffdesk-backend/pkg/errors"
)

func TestCreateQueueItemDuplicateActiveIsConflict(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := lifecycle.NewRepository(conn)
	conv := dbtest.SeedConversation(t, conn, enums.ConversationQueued)
	queue := dbtest.SeedQueue(t, conn, "general", true)
	dbtest.SeedQueueItem(t, conn, queue.ID, conv.ID, enums.QueueItemQueued)

	err := repo.CreateQueueItem(context.Background(), &models.QueueItem{
		QueueID:        queue.ID,
		ConversationID: conv.ID,
		State:          enums.QueueItemQueued,
		EnqueuedAt:     time.Now().UTC(),
		Metadata:       dbtypes.JSONMap{},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestCreateQueueItemAfterCompletionSucceeds(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := lifecycle.NewRepository(conn)
	conv := dbtest.SeedConversation(t, conn, enums.ConversationQueued)
	queue := dbtest.SeedQueue(t, conn, "general", true)
	dbtest.SeedQueueItem(t, conn, queue.ID, conv.ID, enums.QueueItemCompleted)

	item := &models.QueueItem{
		QueueID:        queue.ID,
		ConversationID: conv.ID,
		State:          enums.QueueItemQueued,
		EnqueuedAt:     time.Now().UTC(),
		Metadata:       dbtypes.JSONMap{},
	}
	require.NoError(t, repo.CreateQueueItem(context.Background(), item))
	assert.NotEqual(t, uuid.Nil, item.ID)
}

func TestCreateAssignmentDuplicateCurrentIsConflict(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := lifecycle.NewRepository(conn)
	conv := dbtest.SeedConversation(t, conn, enums.ConversationAssigned)
	queue := dbtest.SeedQueue(t, conn, "tier-2", false)
	dbtest.SeedAssignment(t, conn, conv.ID, queue.ID, nil, uuid.New(), enums.AssignmentAssigned)

	err := repo.CreateAssignment(context.Background(), &models.Assignment{
		ConversationID: conv.ID,
		QueueID:        queue.ID,
		UserID:         uuid.New(),
		Status:         enums.AssignmentAssigned,
		AssignedAt:     time.Now().UTC(),
		Metadata:       dbtypes.JSONMap{},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}
