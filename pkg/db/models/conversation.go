package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// Conversation is a single customer interaction and its routing state.
// Status changes only through lifecycle.Machine.
type Conversation struct {
	ID                    uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status                enums.ConversationStatus `gorm:"column:status;not null;default:new"`
	Priority              int                      `gorm:"column:priority;not null;default:0"`
	RequesterID           string                   `gorm:"column:requester_id;not null"`
	RequesterType         enums.RequesterType      `gorm:"column:requester_type;not null"`
	Channel               string                   `gorm:"column:channel;not null"`
	Metadata              dbtypes.JSONMap          `gorm:"column:metadata;type:jsonb;not null"`
	LastActivityAt        time.Time                `gorm:"column:last_activity_at;not null"`
	SLAFirstResponseDueAt *time.Time               `gorm:"column:sla_first_response_due_at"`
	SLAResolutionDueAt    *time.Time               `gorm:"column:sla_resolution_due_at"`
	ArchivedAt            *time.Time               `gorm:"column:archived_at"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// Message is an append-only transcript entry.
type Message struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID uuid.UUID        `gorm:"column:conversation_id;type:uuid;not null"`
	SenderType     enums.SenderType `gorm:"column:sender_type;not null"`
	AuthorID       *string          `gorm:"column:author_id"`
	Content        string           `gorm:"column:content;not null"`
	Confidence     *float64         `gorm:"column:confidence"`
	Metadata       dbtypes.JSONMap  `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
}
