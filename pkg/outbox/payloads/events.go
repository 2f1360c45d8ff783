package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// ConversationTransitionedEvent is the "transition occurred" fact consumed by
// webhook and notification dispatchers.
type ConversationTransitionedEvent struct {
	ConversationID uuid.UUID                `json:"conversation_id"`
	Transition     enums.Transition         `json:"transition"`
	From           enums.ConversationStatus `json:"from"`
	To             enums.ConversationStatus `json:"to"`
	ActorID        *uuid.UUID               `json:"actor_id,omitempty"`
	Channel        string                   `json:"channel"`
	AuditEventID   uuid.UUID                `json:"audit_event_id"`
	QueueID        *uuid.UUID               `json:"queue_id,omitempty"`
	QueueItemID    *uuid.UUID               `json:"queue_item_id,omitempty"`
	AssignmentID   *uuid.UUID               `json:"assignment_id,omitempty"`
	ReasonCode     string                   `json:"reason_code,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at"`
}
