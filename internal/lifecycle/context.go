package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/handoffdesk-backend/pkg/db/models"
	"github.com/angelmondragon/handoffdesk-backend/pkg/enums"
)

// Context keys a side-effect handler may require.
const (
	KeyReasonCode = "reason_code"
	KeyQueueID    = "queue_id"
	KeyAssigneeID = "assignee_id"
)

// Timestamp names accepted in Context.Timestamps.
const (
	TimestampHandoffAt  = "handoff_at"
	TimestampEnqueuedAt = "enqueued_at"
	TimestampDequeuedAt = "dequeued_at"
	TimestampAssignedAt = "assigned_at"
	TimestampAcceptedAt = "accepted_at"
	TimestampReleasedAt = "released_at"
	TimestampResolvedAt = "resolved_at"
	TimestampArchivedAt = "archived_at"
)

// Context carries the caller-supplied facts a transition needs.
type Context struct {
	ReasonCode     string
	Confidence     *float64
	PolicyHits     []string
	RequiredSkills []string
	QueueID        *uuid.UUID
	QueueItemID    *uuid.UUID
	AssigneeID     *uuid.UUID
	ActorID        *uuid.UUID
	Summary        string
	Reason         string
	Channel        string
	Metadata       map[string]any

	// Timestamps overrides the machine clock per effect, keyed by the Timestamp* names.
	Timestamps map[string]time.Time
	// OccurredAt stamps the audit event. It defaults to now and never falls back to Timestamps.
	OccurredAt *time.Time
}

func (c Context) has(key string) bool {
	switch key {
	case KeyReasonCode:
		return c.ReasonCode != ""
	case KeyQueueID:
		return c.QueueID != nil && *c.QueueID != uuid.Nil
	case KeyAssigneeID:
		return c.AssigneeID != nil && *c.AssigneeID != uuid.Nil
	}
	return false
}

func (c Context) at(name string, now time.Time) time.Time {
	if ts, ok := c.Timestamps[name]; ok && !ts.IsZero() {
		return ts.UTC()
	}
	return now
}

func (c Context) occurredAt(now time.Time) time.Time {
	if c.OccurredAt != nil && !c.OccurredAt.IsZero() {
		return c.OccurredAt.UTC()
	}
	return now
}

// Result is what an applied transition produced.
type Result struct {
	Transition   enums.Transition
	From         enums.ConversationStatus
	Conversation *models.Conversation
	Handoff      *models.Handoff
	QueueItem    *models.QueueItem
	Assignment   *models.Assignment
	// CompletedItems lists queue items closed by return_to_agent or resolve.
	CompletedItems []models.QueueItem
	AuditEvent     *models.AuditEvent
}
