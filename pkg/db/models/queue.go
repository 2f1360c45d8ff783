package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// Queue is a named routing target for escalated conversations.
type Queue struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string               `gorm:"column:name;not null;uniqueIndex"`
	Skills         dbtypes.StringList   `gorm:"column:skills;type:jsonb;not null"`
	IsDefault      bool                 `gorm:"column:is_default;not null;default:false"`
	PriorityPolicy enums.PriorityPolicy `gorm:"column:priority_policy;not null;default:fifo"`
	Active         bool                 `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// QueueItem places a conversation in a queue. At most one queued or hot row
// exists per (queue, conversation).
type QueueItem struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QueueID        uuid.UUID            `gorm:"column:queue_id;type:uuid;not null"`
	ConversationID uuid.UUID            `gorm:"column:conversation_id;type:uuid;not null"`
	State          enums.QueueItemState `gorm:"column:state;not null"`
	EnqueuedAt     time.Time            `gorm:"column:enqueued_at;not null"`
	DequeuedAt     *time.Time           `gorm:"column:dequeued_at"`
	Metadata       dbtypes.JSONMap      `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
