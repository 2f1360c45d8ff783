package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/handoffdesk-backend/pkg/db/types"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// HandoffPolicy groups rules that share a reason code and required skills.
type HandoffPolicy struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string             `gorm:"column:name;not null"`
	ReasonCode     string             `gorm:"column:reason_code;not null"`
	RequiredSkills dbtypes.StringList `gorm:"column:required_skills;type:jsonb;not null"`
	Active         bool               `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// PolicyRule is a single trigger; Criteria holds threshold, flags and retryable.
type PolicyRule struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PolicyID    uuid.UUID         `gorm:"column:policy_id;type:uuid;not null"`
	TriggerType enums.TriggerType `gorm:"column:trigger_type;not null"`
	Priority    int               `gorm:"column:priority;not null;default:0"`
	Criteria    dbtypes.JSONMap   `gorm:"column:criteria;type:jsonb;not null"`
	Active      bool              `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
