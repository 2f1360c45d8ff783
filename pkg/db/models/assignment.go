package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// Assignment records a human operator's custody of a conversation.
type Assignment struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID uuid.UUID              `gorm:"column:conversation_id;type:uuid;not null"`
	QueueID        uuid.UUID              `gorm:"column:queue_id;type:uuid;not null"`
	QueueItemID    *uuid.UUID             `gorm:"column:queue_item_id;type:uuid"`
	UserID         uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Status         enums.AssignmentStatus `gorm:"column:status;not null"`
	AssignedAt     time.Time              `gorm:"column:assigned_at;not null"`
	AcceptedAt     *time.Time             `gorm:"column:accepted_at"`
	ReleasedAt     *time.Time             `gorm:"column:released_at"`
	ResolvedAt     *time.Time             `gorm:"column:resolved_at"`
	Metadata       dbtypes.JSONMap        `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// Handoff is one escalation record, unique per (conversation, reason_code).
type Handoff struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID uuid.UUID          `gorm:"column:conversation_id;type:uuid;not null"`
	ReasonCode     string             `gorm:"column:reason_code;not null"`
	Confidence     *float64           `gorm:"column:confidence"`
	PolicyHits     dbtypes.StringList `gorm:"column:policy_hits;type:jsonb;not null"`
	RequiredSkills dbtypes.StringList `gorm:"column:required_skills;type:jsonb;not null"`
	Metadata       dbtypes.JSONMap    `gorm:"column:metadata;type:jsonb;not null"`
	OccurredAt     time.Time          `gorm:"column:occurred_at;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// AuditEvent is an append-only log entry written for every applied transition.
type AuditEvent struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID uuid.UUID       `gorm:"column:conversation_id;type:uuid;not null"`
	EventType      string          `gorm:"column:event_type;not null"`
	ActorID        *uuid.UUID      `gorm:"column:actor_id;type:uuid"`
	Payload        dbtypes.JSONMap `gorm:"column:payload;type:jsonb;not null"`
	Channel        string          `gorm:"column:channel;not null"`
	OccurredAt     time.Time       `gorm:"column:occurred_at;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
