// Package dbtest opens isolated sqlite databases carrying the full schema.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/handoffdesk-backend/pkg/db"
	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
	"github.com/angelmondragon/handoffdesk-backend/pkg/migrate"
)

// Open returns a client bound to a private in-memory database.
func Open(t *testing.T) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrate.ApplySQLiteSchema(context.Background(), conn))
	return db.NewFromConn(conn)
}

// SeedConversation inserts a conversation already sitting in status.
func SeedConversation(t *testing.T, conn *gorm.DB, status enums.ConversationStatus) models.Conversation {
	t.Helper()
	conv := models.Conversation{
		ID:             uuid.New(),
		Status:         status,
		RequesterID:    "cust-" + uuid.NewString()[:6],
		RequesterType:  enums.RequesterCustomer,
		Channel:        "web",
		Metadata:       dbtypes.JSONMap{},
		LastActivityAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, conn.Create(&conv).Error)
	return conv
}

// SeedQueue inserts an active queue.
func SeedQueue(t *testing.T, conn *gorm.DB, name string, isDefault bool, skills ...string) models.Queue {
	t.Helper()
	queue := models.Queue{
		ID:             uuid.New(),
		Name:           name,
		Skills:         dbtypes.StringList(skills).Normalized(),
		IsDefault:      isDefault,
		PriorityPolicy: enums.PriorityPolicyFIFO,
		Active:         true,
	}
	require.NoError(t, conn.Create(&queue).Error)
	return queue
}

// SeedQueueItem places conv in queue with the given state.
func SeedQueueItem(t *testing.T, conn *gorm.DB, queueID, convID uuid.UUID, state enums.QueueItemState) models.QueueItem {
	t.Helper()
	item := models.QueueItem{
		ID:             uuid.New(),
		QueueID:        queueID,
		ConversationID: convID,
		State:          state,
		EnqueuedAt:     time.Now().UTC().Add(-30 * time.Second),
		Metadata:       dbtypes.JSONMap{},
	}
	require.NoError(t, conn.Create(&item).Error)
	return item
}

// SeedAssignment inserts an assignment for conv held by userID.
func SeedAssignment(t *testing.T, conn *gorm.DB, convID, queueID uuid.UUID, itemID *uuid.UUID, userID uuid.UUID, status enums.AssignmentStatus) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		ID:             uuid.New(),
		ConversationID: convID,
		QueueID:        queueID,
		QueueItemID:    itemID,
		UserID:         userID,
		Status:         status,
		AssignedAt:     time.Now().UTC().Add(-20 * time.Second),
		Metadata:       dbtypes.JSONMap{},
	}
	require.NoError(t, conn.Create(&assignment).Error)
	return assignment
}
